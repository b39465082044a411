package nanorelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nanorelay/client-go/adaptive"
	"github.com/nanorelay/client-go/internal/crypto"
	"github.com/nanorelay/client-go/internal/delivery"
	"github.com/nanorelay/client-go/internal/relay"
	"github.com/nanorelay/client-go/wire"
)

// Contact is the resolved key material of a username.
type Contact struct {
	Username  string
	Mode      Mode
	PublicKey string
}

// Client is a NanoRelay messaging client bound to one identity. It
// tracks conversation state and the message ledger in memory; use
// SaveState/LoadState to persist them across runs.
//
// All exported methods are safe for concurrent use.
type Client struct {
	cfg      clientConfig
	identity *Identity
	relay    *relay.Client
	ledger   *Ledger
	convs    *conversationManager
	advisor  *adaptive.Advisor
	subs     *subscriptionManager
	poller   *delivery.Poller
	logger   *zap.Logger

	pollCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// New creates a client for the given identity. By default the client
// talks to a relay on localhost, sends in the identity's native mode
// and does not poll; see the With* options.
func New(identity *Identity, opts ...Option) (*Client, error) {
	if identity == nil {
		return nil, fmt.Errorf("nanorelay: identity must not be nil")
	}
	cfg := clientConfig{
		relayAddr:      defaultRelayAddr,
		connectTimeout: defaultConnectTimeout,
		minMode:        ModeClassical,
		lookahead:      DefaultLookahead,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rc, err := relay.New(cfg.relayAddr, relay.WithTimeout(cfg.connectTimeout))
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		identity: identity,
		relay:    rc,
		ledger:   NewLedger(),
		convs:    newConversationManager(),
		subs:     newSubscriptionManager(),
		logger:   cfg.logger.Named("nanorelay"),
	}
	if cfg.adaptiveMode {
		c.advisor = adaptive.New(cfg.advisorConfig)
	}
	if cfg.autoFetch {
		c.poller = delivery.NewPoller(func(ctx context.Context) (int, error) {
			msgs, err := c.Fetch(ctx)
			return len(msgs), err
		}, c.logger)
		pollCtx, cancel := context.WithCancel(context.Background())
		c.pollCancel = cancel
		c.poller.Start(pollCtx)
	}
	return c, nil
}

// Identity returns the identity this client sends and receives as.
func (c *Client) Identity() *Identity {
	return c.identity
}

// PublicKey returns the client identity's prefixed public key string.
func (c *Client) PublicKey() string {
	return c.identity.PublicKey()
}

// Close stops background polling and releases subscriptions. The
// client must not be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.poller != nil {
		c.poller.Stop()
		c.pollCancel()
	}
	c.subs.clear()
	return nil
}

// supportedModes returns the crypto modes an identity can take part
// in, given its key material.
func supportedModes(mode Mode) []Mode {
	switch mode {
	case ModeHybrid:
		return []Mode{ModeClassical, ModeHybrid, ModeQuantum}
	case ModeQuantum:
		return []Mode{ModeQuantum}
	default:
		return []Mode{ModeClassical}
	}
}

func modeSupported(modes []Mode, mode Mode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// selectMode picks the crypto mode for an outgoing message: the fixed
// WithMode choice, else the adaptive recommendation, else the
// identity's native mode; then clamped to what both parties' key
// material supports and checked against the minimum-mode policy.
func (c *Client) selectMode(their *crypto.PublicIdentity) (Mode, error) {
	mode := c.identity.Mode()
	if c.cfg.modeSet {
		mode = c.cfg.mode
	} else if c.advisor != nil {
		rec := c.advisor.Recommend(adaptive.MeasureNetwork(), adaptive.MeasureDevice())
		c.logger.Debug("adaptive mode recommendation",
			zap.Stringer("mode", rec.Mode),
			zap.Float64("confidence", rec.Confidence),
			zap.Strings("reasoning", rec.Reasoning))
		mode = rec.Mode
	}

	ours := supportedModes(c.identity.Mode())
	theirs := supportedModes(their.Mode)
	var common []Mode
	for _, m := range ours {
		if modeSupported(theirs, m) {
			common = append(common, m)
		}
	}
	if len(common) == 0 {
		return 0, fmt.Errorf("%w: we are %s, recipient is %s",
			ErrIncompatibleRecipient, c.identity.Mode(), their.Mode)
	}
	if !modeSupported(common, mode) {
		// Prefer the strongest mode both sides support.
		mode = common[len(common)-1]
	}
	if !c.cfg.minMode.CanTransitionTo(mode) {
		return 0, fmt.Errorf("%w: %s is below the configured minimum %s",
			ErrModeRejected, mode, c.cfg.minMode)
	}
	return mode, nil
}

// Send encrypts body for the recipient and delivers it via the relay.
// The first message to a peer travels through their public
// first-contact inbox; once both sides hold X25519 keys, later
// messages use rotating per-conversation inboxes that outside
// observers cannot link together.
func (c *Client) Send(ctx context.Context, recipientKey, body string) (*StoredMessage, error) {
	return c.send(ctx, recipientKey, body, "")
}

// SendToRoom is Send with a room tag carried inside the encrypted
// payload.
func (c *Client) SendToRoom(ctx context.Context, recipientKey, room, body string) (*StoredMessage, error) {
	return c.send(ctx, recipientKey, body, room)
}

func (c *Client) send(ctx context.Context, recipientKey, body, room string) (*StoredMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	their, err := crypto.ParsePublicKeyString(recipientKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	mode, err := c.selectMode(their)
	if err != nil {
		return nil, err
	}

	var (
		inboxID string
		counter uint64
	)
	conv, established := c.convs.get(their.String())
	if established {
		inboxID, counter = conv.CommitOutgoing()
	} else {
		inboxID = FirstContactInbox(their.ContactKey())
		counter = 0
	}

	payload := wire.NewPayloadWithMode(c.PublicKey(), body, counter, room, mode)
	if err := payload.Sign(c.identity); err != nil {
		return nil, err
	}
	plain, err := payload.Encode()
	if err != nil {
		return nil, err
	}

	var sealed, kemCT []byte
	if established {
		sealed, err = crypto.EncryptSymmetric(conv.SharedSecret, plain)
	} else {
		switch mode {
		case ModeHybrid:
			kemCT, sealed, err = crypto.EncryptAsymmetricHybrid(their.ExchangeKey, their.PQEncapsKey, plain)
		case ModeQuantum:
			kemCT, sealed, err = crypto.EncryptAsymmetricQuantum(their.PQEncapsKey, plain)
		default:
			sealed, err = crypto.EncryptAsymmetric(their.ExchangeKey, plain)
		}
	}
	if err != nil {
		return nil, err
	}

	if mode == ModeClassical {
		env := wire.NewEnvelope(inboxID, sealed)
		if c.cfg.messageTTL > 0 {
			env.WithExpiry(time.Now().Add(c.cfg.messageTTL))
		}
		err = c.relay.SendEnvelope(ctx, env)
	} else {
		env := wire.NewQuantumEnvelope(mode, inboxID, sealed).WithPQData(kemCT, nil)
		if c.cfg.messageTTL > 0 {
			env.WithExpiry(time.Now().Add(c.cfg.messageTTL))
		}
		err = c.relay.SendQuantumEnvelope(ctx, env)
	}
	if err != nil {
		return nil, err
	}

	if !established {
		c.convs.getOrCreate(c.identity.keys, their)
	}

	stored := newStoredMessage(payload, their.String(), time.Now(), true)
	c.ledger.Store(stored)
	c.logger.Debug("message sent",
		zap.String("to", their.String()),
		zap.Stringer("mode", mode),
		zap.Uint64("counter", counter),
		zap.Bool("first_contact", !established))
	return stored, nil
}

// Fetch polls the identity's first-contact inbox and the lookahead
// window of every known conversation, decrypts and verifies what it
// finds, and returns the messages not seen before, oldest first.
// Envelopes that are expired, undecryptable, badly signed or below the
// minimum-mode policy are skipped. A relay error aborts the poll but
// messages already collected are still returned alongside it.
func (c *Client) Fetch(ctx context.Context) ([]*StoredMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	var delivered []*StoredMessage

	own := FirstContactInbox(c.identity.public().ContactKey())
	envs, err := c.relay.FetchQuantumInbox(ctx, own)
	if err != nil {
		return delivered, err
	}
	for _, env := range envs {
		if msg := c.acceptFirstContact(env); msg != nil {
			delivered = append(delivered, msg)
		}
	}

	for _, conv := range c.convs.all() {
		for _, inboxID := range conv.IncomingInboxes(c.cfg.lookahead) {
			envs, err := c.relay.FetchQuantumInbox(ctx, inboxID)
			if err != nil {
				return delivered, err
			}
			for _, env := range envs {
				if msg := c.acceptConversation(conv, env); msg != nil {
					delivered = append(delivered, msg)
				}
			}
		}
	}

	for _, msg := range delivered {
		c.subs.notify(msg)
	}
	return delivered, nil
}

// acceptFirstContact handles an envelope from our public first-contact
// inbox. Returns the stored message, or nil if the envelope was
// skipped for any reason.
func (c *Client) acceptFirstContact(env *wire.QuantumEnvelope) *StoredMessage {
	if env.IsExpired() {
		c.logger.Debug("dropping expired envelope", zap.String("nonce", env.Nonce))
		return nil
	}
	sealed, err := env.PayloadBytes()
	if err != nil {
		c.logger.Warn("malformed envelope payload", zap.Error(err))
		return nil
	}

	keys := c.identity.keys
	var plain []byte
	switch env.CryptoMode {
	case ModeHybrid:
		kemCT, ctErr := env.PQCiphertextBytes()
		if ctErr != nil {
			c.logger.Warn("malformed KEM ciphertext", zap.Error(ctErr))
			return nil
		}
		plain, err = crypto.DecryptAsymmetricHybrid(keys.ExchangeKey, keys.PQDecapsKey, kemCT, sealed)
	case ModeQuantum:
		kemCT, ctErr := env.PQCiphertextBytes()
		if ctErr != nil {
			c.logger.Warn("malformed KEM ciphertext", zap.Error(ctErr))
			return nil
		}
		plain, err = crypto.DecryptAsymmetricQuantum(keys.PQDecapsKey, kemCT, sealed)
	default:
		plain, err = crypto.DecryptAsymmetric(keys.ExchangeKey, sealed)
	}
	if err != nil {
		c.logger.Warn("first-contact decryption failed", zap.Error(err))
		return nil
	}
	return c.acceptPayload(plain, nil)
}

// acceptConversation handles an envelope from one of a conversation's
// rotating inboxes.
func (c *Client) acceptConversation(conv *ConversationState, env *wire.QuantumEnvelope) *StoredMessage {
	if env.IsExpired() {
		c.logger.Debug("dropping expired envelope", zap.String("nonce", env.Nonce))
		return nil
	}
	sealed, err := env.PayloadBytes()
	if err != nil {
		c.logger.Warn("malformed envelope payload", zap.Error(err))
		return nil
	}
	plain, err := crypto.DecryptSymmetric(conv.SharedSecret, sealed)
	if err != nil {
		c.logger.Warn("conversation decryption failed", zap.Error(err))
		return nil
	}
	return c.acceptPayload(plain, conv)
}

// acceptPayload decodes, verifies and records a decrypted payload.
// conv is nil for first-contact traffic.
func (c *Client) acceptPayload(plain []byte, conv *ConversationState) *StoredMessage {
	payload, err := wire.DecodePayload(plain)
	if err != nil {
		c.logger.Warn("undecodable payload", zap.Error(err))
		return nil
	}
	if payload.FromPubKey == c.PublicKey() {
		// Both directions share the conversation secret, so the
		// lookahead window can surface our own sent messages when the
		// relay does not drain inboxes.
		c.logger.Debug("skipping own message", zap.Uint64("counter", payload.Counter))
		return nil
	}
	sender, err := crypto.ParsePublicKeyString(payload.FromPubKey)
	if err != nil {
		c.logger.Warn("unparseable sender key", zap.Error(err))
		return nil
	}
	if err := payload.Verify(sender); err != nil {
		c.logger.Warn("signature verification failed",
			zap.String("from", payload.FromPubKey), zap.Error(err))
		return nil
	}
	mode := payload.Mode()
	if !c.cfg.minMode.CanTransitionTo(mode) {
		c.logger.Warn("message below minimum crypto mode",
			zap.Stringer("mode", mode), zap.Stringer("minimum", c.cfg.minMode))
		return nil
	}

	stored := newStoredMessage(payload, c.PublicKey(), time.Now(), false)
	if !c.ledger.Store(stored) {
		c.logger.Debug("duplicate message skipped", zap.String("id", stored.ID))
		return nil
	}

	if conv != nil {
		conv.ObserveCounter(payload.Counter)
	} else {
		// First contact from a new peer: establish the conversation
		// so replies use rotating inboxes.
		c.convs.getOrCreate(c.identity.keys, sender)
	}
	c.logger.Debug("message received",
		zap.String("from", payload.FromPubKey),
		zap.Stringer("mode", mode),
		zap.Uint64("counter", payload.Counter))
	return stored
}

// RegisterUsername publishes a signed claim binding the username to
// this client's keys. The relay registry is first-writer-wins: a name
// claimed under another key stays theirs.
func (c *Client) RegisterUsername(ctx context.Context, username string) error {
	if err := wire.ValidateUsername(username); err != nil {
		return err
	}
	claim := wire.NewUsernameClaim(username, c.identity.unifiedKeys())
	if err := claim.Sign(c.identity); err != nil {
		return err
	}
	return c.relay.PublishClaim(ctx, claim)
}

// ResolveUsername looks a username up on the relay and returns the
// owner's key material, or ErrUnknownUsername.
func (c *Client) ResolveUsername(ctx context.Context, username string) (*Contact, error) {
	keys, err := c.relay.LookupUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUsername, username)
	}
	pub, err := crypto.FromUnifiedKeys(keys)
	if err != nil {
		return nil, err
	}
	return &Contact{Username: username, Mode: pub.Mode, PublicKey: pub.String()}, nil
}

// Watch returns a channel receiving every newly fetched message in the
// given conversations, or in all conversations when none are named.
// The channel is buffered; messages are dropped rather than blocking a
// slow consumer. It is never closed; stop reading once ctx is done.
func (c *Client) Watch(ctx context.Context, conversationIDs ...string) <-chan *StoredMessage {
	ch := make(chan *StoredMessage, 16)
	unsub := c.WatchFunc(func(msg *StoredMessage) {
		select {
		case ch <- msg:
		default:
		}
	}, conversationIDs...)
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return ch
}

// WatchFunc registers a callback for newly fetched messages and
// returns a function that removes the subscription. Callbacks run on
// the fetching goroutine and must not call back into the client.
func (c *Client) WatchFunc(callback func(*StoredMessage), conversationIDs ...string) func() {
	keys := conversationIDs
	if len(keys) == 0 {
		keys = []string{watchAll}
	}
	unsubs := make([]func(), 0, len(keys))
	for _, key := range keys {
		unsubs = append(unsubs, c.subs.subscribe(key, callback))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Summaries lists the client's conversations, newest activity first.
func (c *Client) Summaries() []ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Summaries()
}

// ConversationMessages returns up to limit messages of one
// conversation, oldest first. limit <= 0 returns everything.
func (c *Client) ConversationMessages(conversationID string, limit int) []*StoredMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.ConversationMessages(conversationID, limit)
}

// AllMessages returns up to limit messages across all conversations,
// newest first.
func (c *Client) AllMessages(limit int) []*StoredMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.AllMessages(limit)
}

// MarkRead moves the conversation's read watermark to now.
func (c *Client) MarkRead(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.MarkRead(conversationID)
}

// Search returns messages whose content contains the query,
// case-insensitively, newest first.
func (c *Client) Search(query string) []*StoredMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Search(query)
}

// RecordPerformance feeds an encryption timing sample to the adaptive
// advisor. It is a no-op unless WithAdaptiveMode is set.
func (c *Client) RecordPerformance(network adaptive.NetworkConditions, device adaptive.DeviceConstraints, mode Mode, metrics adaptive.PerformanceMetrics) {
	if c.advisor == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advisor.RecordPerformance(network, device, mode, metrics)
}

// PerformanceTrends reports per-mode encryption timing trends. The
// result is empty unless WithAdaptiveMode is set and enough samples
// have been recorded.
func (c *Client) PerformanceTrends() adaptive.PerformanceTrends {
	if c.advisor == nil {
		return adaptive.PerformanceTrends{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advisor.Trends()
}
