package nanorelay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadState(t *testing.T) {
	relay := newFakeRelay(t)
	ctx := context.Background()
	alice := newTestClient(t, relay, ModeHybrid)
	bob := newTestClient(t, relay, ModeHybrid)

	if _, err := alice.Send(ctx, bob.PublicKey(), "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Send(ctx, alice.PublicKey(), "hi back"); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.Fetch(ctx); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "state.json")
	if err := alice.SaveState(path); err != nil {
		t.Fatal(err)
	}

	// A fresh client resuming from the same file picks up the identity,
	// the ledger and the conversation counters.
	id, err := LoadIdentity(path)
	if err != nil {
		t.Fatal(err)
	}
	if id == nil || id.PublicKey() != alice.PublicKey() {
		t.Fatal("loaded identity does not match the saved one")
	}
	resumed, err := New(id, WithRelayAddress(relay.addr))
	if err != nil {
		t.Fatal(err)
	}
	defer resumed.Close()
	if err := resumed.LoadState(path); err != nil {
		t.Fatal(err)
	}

	if got := resumed.AllMessages(0); len(got) != 2 {
		t.Fatalf("resumed client expected 2 ledger messages, got %d", len(got))
	}
	conv, ok := resumed.convs.get(bob.PublicKey())
	if !ok {
		t.Fatal("resumed client lost the conversation with bob")
	}
	// Each direction counts independently: alice's only send so far was
	// the first-contact message (counter 0), so her conversation
	// counter is still at its starting value. Receiving bob's reply
	// advanced only the peer-side high-water mark.
	if conv.PeekCounter() != 1 {
		t.Fatalf("resumed next counter should be 1, got %d", conv.PeekCounter())
	}
	if conv.TheirCounter != 1 {
		t.Fatalf("resumed peer counter should be 1, got %d", conv.TheirCounter)
	}

	// The resumed client keeps the counter sequence going.
	sent, err := resumed.Send(ctx, bob.PublicKey(), "continuing")
	if err != nil {
		t.Fatal(err)
	}
	if sent.Counter != 1 {
		t.Fatalf("resumed send should carry counter 1, got %d", sent.Counter)
	}
	got, err := bob.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "continuing" {
		t.Fatalf("bob should receive the resumed message, got %v", got)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)

	if err := alice.LoadState(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing state file should not be an error, got %v", err)
	}

	id, err := LoadIdentity(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || id != nil {
		t.Fatalf("missing file should yield (nil, nil), got (%v, %v)", id, err)
	}
}

func TestLoadStateCorruptFile(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)

	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := alice.LoadState(path); err != nil {
		t.Fatalf("corrupt state should be ignored, got %v", err)
	}
	if got := alice.AllMessages(0); len(got) != 0 {
		t.Fatalf("corrupt state should leave the ledger empty, got %d", len(got))
	}
}

func TestLoadStateWrongIdentity(t *testing.T) {
	relay := newFakeRelay(t)
	alice := newTestClient(t, relay, ModeClassical)
	eve := newTestClient(t, relay, ModeClassical)

	path := filepath.Join(t.TempDir(), "state.json")
	if err := alice.SaveState(path); err != nil {
		t.Fatal(err)
	}
	if err := eve.LoadState(path); err == nil {
		t.Fatal("loading another identity's state should fail")
	}
}
