package nanorelay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nanorelay/client-go/wire"
)

// StoredMessage is one delivered or sent message in the local ledger.
type StoredMessage struct {
	ID             string    `json:"id"`
	FromPubKey     string    `json:"from_pubkey"`
	ToPubKey       string    `json:"to_pubkey"`
	Content        string    `json:"content"`
	Room           string    `json:"room,omitempty"`
	Mode           Mode      `json:"crypto_mode"`
	Timestamp      time.Time `json:"timestamp"`
	ReceivedAt     time.Time `json:"received_at"`
	IsOutgoing     bool      `json:"is_outgoing"`
	ConversationID string    `json:"conversation_id"`
	Counter        uint64    `json:"counter"`
}

// newStoredMessage builds a ledger record from a verified payload.
// The conversation id concatenates sender and recipient keys in
// send-order, so the same exchange yields a different id on each side.
func newStoredMessage(p *wire.Payload, toPubKey string, receivedAt time.Time, outgoing bool) *StoredMessage {
	conversationID := p.FromPubKey + ":" + toPubKey
	return &StoredMessage{
		ID:             fmt.Sprintf("%s:%d:%d", conversationID, p.Counter, p.Timestamp),
		FromPubKey:     p.FromPubKey,
		ToPubKey:       toPubKey,
		Content:        p.Body,
		Room:           p.Room,
		Mode:           p.Mode(),
		Timestamp:      time.Unix(p.Timestamp, 0).UTC(),
		ReceivedAt:     receivedAt.UTC(),
		IsOutgoing:     outgoing,
		ConversationID: conversationID,
		Counter:        p.Counter,
	}
}

// ConversationSummary describes one conversation for listing.
type ConversationSummary struct {
	ID            string
	OtherPubKey   string
	LastMessage   string
	LastTimestamp time.Time
	UnreadCount   int
	MessageCount  int
}

// Ledger is the in-memory message store: deduplicated by message id,
// indexed per conversation in timestamp order. It provides no internal
// locking; the owning client serializes access.
type Ledger struct {
	messages      map[string]*StoredMessage
	conversations map[string][]string // conversation id -> message ids, sorted
	lastRead      map[string]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		messages:      make(map[string]*StoredMessage),
		conversations: make(map[string][]string),
		lastRead:      make(map[string]time.Time),
	}
}

// Store inserts a message and reports whether it was new. Duplicates
// (same id) leave the ledger untouched.
func (l *Ledger) Store(msg *StoredMessage) bool {
	if _, exists := l.messages[msg.ID]; exists {
		return false
	}
	l.messages[msg.ID] = msg
	l.conversations[msg.ConversationID] = append(l.conversations[msg.ConversationID], msg.ID)
	l.sortConversation(msg.ConversationID)
	return true
}

func (l *Ledger) sortConversation(conversationID string) {
	ids := l.conversations[conversationID]
	sort.SliceStable(ids, func(i, j int) bool {
		return l.messages[ids[i]].Timestamp.Before(l.messages[ids[j]].Timestamp)
	})
}

// ConversationMessages returns a conversation's messages oldest-first.
// A positive limit keeps only the most recent messages.
func (l *Ledger) ConversationMessages(conversationID string, limit int) []*StoredMessage {
	ids := l.conversations[conversationID]
	msgs := make([]*StoredMessage, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, l.messages[id])
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// MessagesFrom returns messages from one sender, oldest-first.
func (l *Ledger) MessagesFrom(fromPubKey string, limit int) []*StoredMessage {
	var msgs []*StoredMessage
	for _, msg := range l.messages {
		if msg.FromPubKey == fromPubKey {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// AllMessages returns every message newest-first, truncated to limit
// when positive.
func (l *Ledger) AllMessages(limit int) []*StoredMessage {
	msgs := make([]*StoredMessage, 0, len(l.messages))
	for _, msg := range l.messages {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.After(msgs[j].Timestamp) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

// Summaries lists every conversation newest-first, with unread counts
// relative to the per-conversation read watermark. Self-sent messages
// never count as unread.
func (l *Ledger) Summaries() []ConversationSummary {
	summaries := make([]ConversationSummary, 0, len(l.conversations))
	for conversationID, ids := range l.conversations {
		if len(ids) == 0 {
			continue
		}
		last := l.messages[ids[len(ids)-1]]
		lastRead := l.lastRead[conversationID]

		unread := 0
		for _, id := range ids {
			msg := l.messages[id]
			if msg.Timestamp.After(lastRead) && !msg.IsOutgoing {
				unread++
			}
		}

		summaries = append(summaries, ConversationSummary{
			ID:            conversationID,
			OtherPubKey:   otherParty(last),
			LastMessage:   last.Content,
			LastTimestamp: last.Timestamp,
			UnreadCount:   unread,
			MessageCount:  len(ids),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp.After(summaries[j].LastTimestamp)
	})
	return summaries
}

// otherParty returns the remote key of a message. Key strings carry
// prefixes containing colons, so the conversation id cannot simply be
// split; the message's direction already identifies the peer.
func otherParty(msg *StoredMessage) string {
	if msg.IsOutgoing {
		return msg.ToPubKey
	}
	return msg.FromPubKey
}

// MarkRead moves a conversation's read watermark to now.
func (l *Ledger) MarkRead(conversationID string) {
	l.lastRead[conversationID] = time.Now().UTC()
}

// Search returns messages whose content contains the query,
// case-insensitively, newest-first.
func (l *Ledger) Search(query string) []*StoredMessage {
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)
	var msgs []*StoredMessage
	for _, msg := range l.messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.After(msgs[j].Timestamp) })
	return msgs
}

// MessageCount reports the total number of stored messages.
func (l *Ledger) MessageCount() int {
	return len(l.messages)
}

// ConversationCount reports the number of known conversations.
func (l *Ledger) ConversationCount() int {
	return len(l.conversations)
}

// Export copies the message map for backup or sync.
func (l *Ledger) Export() map[string]*StoredMessage {
	out := make(map[string]*StoredMessage, len(l.messages))
	for id, msg := range l.messages {
		clone := *msg
		out[id] = &clone
	}
	return out
}

// Import bulk-loads messages, rebuilding and re-sorting every
// conversation index afterwards. Existing messages with the same id
// are overwritten.
func (l *Ledger) Import(messages map[string]*StoredMessage) {
	for id, msg := range messages {
		if _, exists := l.messages[id]; !exists {
			l.conversations[msg.ConversationID] = append(l.conversations[msg.ConversationID], id)
		}
		l.messages[id] = msg
	}
	for conversationID := range l.conversations {
		l.sortConversation(conversationID)
	}
}
