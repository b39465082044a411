package nanorelay

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/nanorelay/client-go/internal/crypto"
)

// DefaultLookahead is how many counter-derived inboxes a receiver
// polls ahead of the last accepted counter.
const DefaultLookahead = 10

// FirstContactInbox derives the mailbox id a sender uses before any
// shared secret exists: SHA-256 over a fixed tag and the recipient's
// long-term contact key. Anyone holding the public key can compute it.
func FirstContactInbox(contactKey []byte) string {
	data := make([]byte, 0, len("first_contact:")+len(contactKey))
	data = append(data, "first_contact:"...)
	data = append(data, contactKey...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ConversationInbox derives the mailbox id for one message of an
// established conversation: SHA-256 over the shared secret and the
// big-endian counter.
func ConversationInbox(sharedSecret []byte, counter uint64) string {
	data := make([]byte, 0, len(sharedSecret)+8)
	data = append(data, sharedSecret...)
	data = binary.BigEndian.AppendUint64(data, counter)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ConversationState tracks the addressing state for one remote party.
// Counter 0 is the first-contact message, so outgoing counters start
// at 1. It provides no internal locking; the owning client serializes
// access.
type ConversationState struct {
	TheirKey     string `json:"their_key"` // prefixed public key string
	SharedSecret []byte `json:"shared_secret"`
	OurCounter   uint64 `json:"our_counter"`
	TheirCounter uint64 `json:"their_counter"` // highest accepted so far
}

func newConversationState(theirKey string, sharedSecret []byte) *ConversationState {
	return &ConversationState{
		TheirKey:     theirKey,
		SharedSecret: sharedSecret,
		OurCounter:   1,
	}
}

// PeekCounter returns the counter the next outgoing message will
// carry, without consuming it.
func (s *ConversationState) PeekCounter() uint64 {
	return s.OurCounter
}

// CommitOutgoing derives the inbox for the current counter and
// advances it, as one step. The returned counter is the value the
// outgoing payload must embed.
func (s *ConversationState) CommitOutgoing() (inboxID string, counter uint64) {
	counter = s.OurCounter
	inboxID = ConversationInbox(s.SharedSecret, counter)
	s.OurCounter++
	return inboxID, counter
}

// IncomingInboxes returns the lookahead window of candidate inboxes
// for the peer's next messages: counters TheirCounter+1 through
// TheirCounter+n.
func (s *ConversationState) IncomingInboxes(n int) []string {
	if n <= 0 {
		n = DefaultLookahead
	}
	inboxes := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		inboxes = append(inboxes, ConversationInbox(s.SharedSecret, s.TheirCounter+uint64(i)))
	}
	return inboxes
}

// ObserveCounter records an accepted incoming counter. The high-water
// mark only moves forward, so out-of-order delivery cannot regress it.
func (s *ConversationState) ObserveCounter(c uint64) {
	if c > s.TheirCounter {
		s.TheirCounter = c
	}
}

// conversationManager tracks conversation state per remote party,
// keyed by the peer's prefixed public key string.
type conversationManager struct {
	conversations map[string]*ConversationState
}

func newConversationManager() *conversationManager {
	return &conversationManager{conversations: make(map[string]*ConversationState)}
}

// getOrCreate returns the conversation for a peer, establishing the
// shared secret on first use. Both parties need X25519 exchange keys;
// quantum-only identities stay on first-contact addressing and get
// (nil, false).
func (m *conversationManager) getOrCreate(ourKeys *crypto.KeyPair, their *crypto.PublicIdentity) (*ConversationState, bool) {
	theirKey := their.String()
	if conv, ok := m.conversations[theirKey]; ok {
		return conv, true
	}
	if len(ourKeys.ExchangeKey) == 0 || len(their.ExchangeKey) == 0 {
		return nil, false
	}
	secret, err := crypto.SharedSecret(ourKeys.ExchangeKey, their.ExchangeKey)
	if err != nil {
		return nil, false
	}
	conv := newConversationState(theirKey, secret)
	m.conversations[theirKey] = conv
	return conv, true
}

// get returns an existing conversation, if any.
func (m *conversationManager) get(theirKey string) (*ConversationState, bool) {
	conv, ok := m.conversations[theirKey]
	return conv, ok
}

// all returns the conversations in arbitrary order.
func (m *conversationManager) all() []*ConversationState {
	out := make([]*ConversationState, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}
	return out
}

// snapshot copies the conversation map for persistence.
func (m *conversationManager) snapshot() map[string]*ConversationState {
	out := make(map[string]*ConversationState, len(m.conversations))
	for k, v := range m.conversations {
		clone := *v
		clone.SharedSecret = append([]byte(nil), v.SharedSecret...)
		out[k] = &clone
	}
	return out
}

// restore replaces the conversation map from a persisted snapshot.
func (m *conversationManager) restore(convs map[string]*ConversationState) {
	m.conversations = make(map[string]*ConversationState, len(convs))
	for k, v := range convs {
		m.conversations[k] = v
	}
}
