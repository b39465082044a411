package nanorelay

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nanorelay/client-go/internal/crypto"
	"github.com/nanorelay/client-go/wire"
)

// fakeRelay is an in-process relay speaking the newline-delimited JSON
// protocol. Envelopes are kept across fetches; the client's ledger is
// responsible for deduplication.
type fakeRelay struct {
	t    *testing.T
	ln   net.Listener
	addr string

	mu      sync.Mutex
	inboxes map[string][]json.RawMessage
	claims  map[string]json.RawMessage
}

type fakeRequest struct {
	Type     string          `json:"type"`
	Envelope json.RawMessage `json:"envelope"`
	InboxID  string          `json:"inbox_id"`
	Claim    json.RawMessage `json:"claim"`
	Username string          `json:"username"`
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	r := &fakeRelay{
		t:       t,
		ln:      ln,
		addr:    ln.Addr().String(),
		inboxes: make(map[string][]json.RawMessage),
		claims:  make(map[string]json.RawMessage),
	}
	go r.serve()
	t.Cleanup(func() { ln.Close() })
	return r
}

func (r *fakeRelay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(conn)
	}
}

func (r *fakeRelay) handle(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}
	var req fakeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return
	}

	var resp []byte
	switch req.Type {
	case "send_message":
		env, err := wire.DecodeEnvelope(req.Envelope)
		if err != nil {
			r.t.Errorf("fake relay: bad legacy envelope: %v", err)
			return
		}
		upgraded, _ := wire.FromLegacy(env).Encode()
		r.store(env.InboxID, upgraded)
		resp = []byte(`{"type":"success","message":"stored"}`)
	case "send_quantum_message":
		env, err := wire.DecodeQuantumEnvelope(req.Envelope)
		if err != nil {
			r.t.Errorf("fake relay: bad quantum envelope: %v", err)
			return
		}
		r.store(env.InboxID, req.Envelope)
		resp = []byte(`{"type":"success","message":"stored"}`)
	case "fetch_inbox":
		r.mu.Lock()
		msgs := r.inboxes[req.InboxID]
		r.mu.Unlock()
		resp, _ = json.Marshal(map[string]any{
			"type":     "quantum_inbox_messages",
			"messages": msgs,
		})
	case "publish_claim":
		claim, err := wire.DecodeUsernameClaim(req.Claim)
		if err != nil {
			r.t.Errorf("fake relay: bad claim: %v", err)
			return
		}
		keys, _ := json.Marshal(claim.PublicKeys)
		r.mu.Lock()
		r.claims[claim.Username] = keys
		r.mu.Unlock()
		resp = []byte(`{"type":"success","message":"claimed"}`)
	case "lookup_username":
		r.mu.Lock()
		keys := r.claims[req.Username]
		r.mu.Unlock()
		result := map[string]any{"type": "quantum_username_result", "username": req.Username}
		if keys != nil {
			result["public_keys"] = json.RawMessage(keys)
		}
		resp, _ = json.Marshal(result)
	default:
		resp = []byte(`{"type":"error","message":"unknown request"}`)
	}
	conn.Write(append(resp, '\n'))
}

func (r *fakeRelay) store(inboxID string, raw json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inboxes[inboxID] = append(r.inboxes[inboxID], raw)
}

// expireAll rewrites every stored envelope with an expiry in the past.
func (r *fakeRelay) expireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for inboxID, msgs := range r.inboxes {
		for i, raw := range msgs {
			env, err := wire.DecodeQuantumEnvelope(raw)
			if err != nil {
				r.t.Fatalf("expireAll: %v", err)
			}
			env.Expiry = 1
			rewritten, err := env.Encode()
			if err != nil {
				r.t.Fatalf("expireAll: %v", err)
			}
			r.inboxes[inboxID][i] = rewritten
		}
	}
}

func newTestClient(t *testing.T, relay *fakeRelay, mode Mode, opts ...Option) *Client {
	t.Helper()
	id, err := NewIdentity(mode)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithRelayAddress(relay.addr)}, opts...)
	c, err := New(id, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFirstContactThenConversation(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	sent, err := alice.Send(ctx, bob.PublicKey(), "hello bob")
	if err != nil {
		t.Fatal(err)
	}
	if sent.Counter != 0 {
		t.Fatalf("first contact should carry counter 0, got %d", sent.Counter)
	}

	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("bob expected 1 message, got %d", len(got))
	}
	if got[0].Content != "hello bob" || got[0].FromPubKey != alice.PublicKey() || got[0].IsOutgoing {
		t.Fatalf("unexpected message: %+v", got[0])
	}

	// Bob's reply rides a rotating conversation inbox.
	reply, err := bob.Send(ctx, alice.PublicKey(), "hi alice")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Counter != 1 {
		t.Fatalf("first conversation message should carry counter 1, got %d", reply.Counter)
	}

	got, err = alice.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "hi alice" {
		t.Fatalf("alice expected bob's reply, got %v", got)
	}

	// Both sides should have converged on the same conversation secret.
	aliceConv, ok := alice.convs.get(bob.PublicKey())
	if !ok {
		t.Fatal("alice has no conversation with bob")
	}
	bobConv, ok := bob.convs.get(alice.PublicKey())
	if !ok {
		t.Fatal("bob has no conversation with alice")
	}
	if aliceConv.TheirCounter != 1 {
		t.Fatalf("alice should have observed counter 1, got %d", aliceConv.TheirCounter)
	}
	if bobConv.PeekCounter() != 2 {
		t.Fatalf("bob's next counter should be 2, got %d", bobConv.PeekCounter())
	}

	// Second fetch finds nothing new: everything deduplicates.
	got, err = alice.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("refetch should deliver nothing, got %d messages", len(got))
	}
}

func TestClassicalSendUsesLegacyEnvelope(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeClassical)
	bob := newTestClient(t, relay, ModeClassical)

	if _, err := alice.Send(ctx, bob.PublicKey(), "plain old crypto"); err != nil {
		t.Fatal(err)
	}
	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Mode != ModeClassical {
		t.Fatalf("expected one classical message, got %v", got)
	}
}

func TestQuantumOnlyPeersStayOnFirstContact(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeQuantum)
	bob := newTestClient(t, relay, ModeQuantum)

	for i, body := range []string{"one", "two"} {
		if i > 0 {
			// Message ids include a second-resolution timestamp;
			// space the sends out so they stay distinct.
			time.Sleep(1100 * time.Millisecond)
		}
		sent, err := alice.Send(ctx, bob.PublicKey(), body)
		if err != nil {
			t.Fatal(err)
		}
		// Without X25519 material no conversation can form, so every
		// message goes through the first-contact inbox at counter 0.
		if sent.Counter != 0 {
			t.Fatalf("quantum-only send should stay at counter 0, got %d", sent.Counter)
		}
	}

	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("bob expected 2 messages, got %d", len(got))
	}
}

func TestSendRejectsBelowMinimumMode(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeHybrid, WithMode(ModeClassical), WithMinimumMode(ModeHybrid))
	bob := newTestClient(t, relay, ModeHybrid)

	_, err := alice.Send(context.Background(), bob.PublicKey(), "too weak")
	if !errors.Is(err, ErrModeRejected) {
		t.Fatalf("expected ErrModeRejected, got %v", err)
	}
}

func TestSendIncompatibleRecipient(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)
	bob := newTestClient(t, relay, ModeQuantum)

	_, err := alice.Send(context.Background(), bob.PublicKey(), "no common mode")
	if !errors.Is(err, ErrIncompatibleRecipient) {
		t.Fatalf("expected ErrIncompatibleRecipient, got %v", err)
	}
}

func TestSendRejectsGarbageRecipient(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)

	_, err := alice.Send(context.Background(), "not-a-key", "hello")
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestFetchSkipsExpiredEnvelopes(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	if _, err := alice.Send(ctx, bob.PublicKey(), "too late"); err != nil {
		t.Fatal(err)
	}
	relay.expireAll()

	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expired envelopes must not be processed, got %d messages", len(got))
	}
}

func TestFetchSkipsOwnSentMessages(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	if _, err := alice.Send(ctx, bob.PublicKey(), "hello bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Send(ctx, alice.PublicKey(), "hi alice"); err != nil {
		t.Fatal(err)
	}

	// Bob's reply sits at conversation counter 1, inside his own
	// lookahead window; the relay keeps envelopes, so a refetch sees
	// it again. It must not come back as an incoming message.
	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("bob refetched his own message: %v", got)
	}
	for _, s := range bob.Summaries() {
		if s.OtherPubKey == bob.PublicKey() {
			t.Fatalf("ledger grew a self conversation: %+v", s)
		}
	}
}

func TestRegisterAndResolveUsername(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeClassical)

	if err := alice.RegisterUsername(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	contact, err := bob.ResolveUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if contact.PublicKey != alice.PublicKey() {
		t.Fatalf("resolved key %q, want %q", contact.PublicKey, alice.PublicKey())
	}
	if contact.Mode != ModeHybrid {
		t.Fatalf("resolved mode %s, want hybrid", contact.Mode)
	}

	if _, err := bob.ResolveUsername(ctx, "nobody"); !errors.Is(err, ErrUnknownUsername) {
		t.Fatalf("expected ErrUnknownUsername, got %v", err)
	}

	if err := alice.RegisterUsername(ctx, "NOT VALID"); err == nil {
		t.Fatal("invalid username should be rejected before hitting the relay")
	}
}

func TestWatchFuncDeliversFetchedMessages(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	var mu sync.Mutex
	var seen []*StoredMessage
	unsub := bob.WatchFunc(func(msg *StoredMessage) {
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
	})

	if _, err := alice.Send(ctx, bob.PublicKey(), "watched"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Fetch(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	if len(seen) != 1 || seen[0].Content != "watched" {
		mu.Unlock()
		t.Fatalf("watcher did not see the sent message: %v", seen)
	}
	mu.Unlock()

	unsub()
	if _, err := alice.Send(ctx, bob.PublicKey(), "unwatched"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("unsubscribed watcher still received messages: %d", len(seen))
	}
}

func TestWatchChannel(t *testing.T) {
	relay := newFakeRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	ch := bob.Watch(ctx)
	if _, err := alice.Send(ctx, bob.PublicKey(), "over the channel"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Fetch(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		if msg.Content != "over the channel" {
			t.Fatalf("unexpected message %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on the watch channel")
	}
}

func TestClosedClientRefusesWork(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)
	bob := newTestClient(t, relay, ModeClassical)

	if err := alice.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.Send(context.Background(), bob.PublicKey(), "x"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed from Send, got %v", err)
	}
	if _, err := alice.Fetch(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed from Fetch, got %v", err)
	}
	if err := alice.Close(); err != nil {
		t.Fatalf("Close should be idempotent, got %v", err)
	}
}

func TestFetchIgnoresTamperedSignatures(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	bob := newTestClient(t, relay, ModeClassical)

	// Hand-build a first-contact envelope whose payload signature is
	// made with a key that does not match the claimed sender.
	mallory, err := crypto.GenerateKeyPair(wire.ModeClassical)
	if err != nil {
		t.Fatal(err)
	}
	impersonated, err := NewIdentity(ModeClassical)
	if err != nil {
		t.Fatal(err)
	}
	payload := wire.NewPayload(impersonated.PublicKey(), "trust me", 0, "")
	data, err := payload.SignableBytes()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := mallory.Sign(data)
	if err != nil {
		t.Fatal(err)
	}
	payload.Sig = base64.StdEncoding.EncodeToString(sig)

	plain, err := payload.Encode()
	if err != nil {
		t.Fatal(err)
	}
	bobPub, err := crypto.ParsePublicKeyString(bob.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := crypto.EncryptAsymmetric(bobPub.ExchangeKey, plain)
	if err != nil {
		t.Fatal(err)
	}
	env := wire.NewEnvelope(FirstContactInbox(bobPub.ContactKey()), sealed)
	raw, err := wire.FromLegacy(env).Encode()
	if err != nil {
		t.Fatal(err)
	}
	relay.store(env.InboxID, raw)

	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("forged message must be dropped, got %d messages", len(got))
	}
}
