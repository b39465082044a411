package nanorelay

import (
	"bytes"
	"testing"

	"github.com/nanorelay/client-go/internal/crypto"
	"github.com/nanorelay/client-go/wire"
)

func TestFirstContactInboxDeterministic(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	a := FirstContactInbox(key)
	b := FirstContactInbox(key)
	if a != b {
		t.Fatalf("same key produced different inboxes: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("inbox id should be 64 hex chars, got %d: %s", len(a), a)
	}

	other := FirstContactInbox(bytes.Repeat([]byte{0x43}, 32))
	if a == other {
		t.Fatal("different keys produced the same inbox")
	}
}

func TestConversationInboxDependsOnCounter(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, 32)
	seen := make(map[string]uint64)
	for c := uint64(0); c < 20; c++ {
		id := ConversationInbox(secret, c)
		if prev, dup := seen[id]; dup {
			t.Fatalf("counters %d and %d derived the same inbox %s", prev, c, id)
		}
		seen[id] = c
	}

	otherSecret := bytes.Repeat([]byte{0x02}, 32)
	if ConversationInbox(secret, 5) == ConversationInbox(otherSecret, 5) {
		t.Fatal("different secrets derived the same inbox")
	}
}

func TestCommitOutgoingAdvancesCounter(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, 32)
	conv := newConversationState("pubkey:peer", secret)

	if got := conv.PeekCounter(); got != 1 {
		t.Fatalf("fresh conversation should start at counter 1, got %d", got)
	}

	inboxID, counter := conv.CommitOutgoing()
	if counter != 1 {
		t.Fatalf("first commit should carry counter 1, got %d", counter)
	}
	if want := ConversationInbox(secret, 1); inboxID != want {
		t.Fatalf("commit derived %s, want %s", inboxID, want)
	}
	if got := conv.PeekCounter(); got != 2 {
		t.Fatalf("counter should advance to 2 after commit, got %d", got)
	}

	_, counter = conv.CommitOutgoing()
	if counter != 2 {
		t.Fatalf("second commit should carry counter 2, got %d", counter)
	}
}

func TestIncomingInboxesWindow(t *testing.T) {
	secret := bytes.Repeat([]byte{0x01}, 32)
	conv := newConversationState("pubkey:peer", secret)
	conv.TheirCounter = 4

	inboxes := conv.IncomingInboxes(5)
	if len(inboxes) != 5 {
		t.Fatalf("expected a window of 5 inboxes, got %d", len(inboxes))
	}
	for i, id := range inboxes {
		want := ConversationInbox(secret, uint64(5+i))
		if id != want {
			t.Fatalf("inbox %d = %s, want %s", i, id, want)
		}
	}

	if got := conv.IncomingInboxes(0); len(got) != DefaultLookahead {
		t.Fatalf("n<=0 should fall back to the default lookahead, got %d", len(got))
	}
}

func TestObserveCounterNeverRegresses(t *testing.T) {
	conv := newConversationState("pubkey:peer", bytes.Repeat([]byte{0x01}, 32))
	for _, c := range []uint64{3, 5, 4} {
		conv.ObserveCounter(c)
	}
	if conv.TheirCounter != 5 {
		t.Fatalf("high-water mark should be 5, got %d", conv.TheirCounter)
	}
}

func TestGetOrCreateDerivesMatchingSecrets(t *testing.T) {
	alice, err := crypto.GenerateKeyPair(wire.ModeClassical)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := crypto.GenerateKeyPair(wire.ModeClassical)
	if err != nil {
		t.Fatal(err)
	}

	aliceSide := newConversationManager()
	bobSide := newConversationManager()

	convA, ok := aliceSide.getOrCreate(alice, bob.Public())
	if !ok {
		t.Fatal("alice could not establish a conversation with bob")
	}
	convB, ok := bobSide.getOrCreate(bob, alice.Public())
	if !ok {
		t.Fatal("bob could not establish a conversation with alice")
	}
	if !bytes.Equal(convA.SharedSecret, convB.SharedSecret) {
		t.Fatal("both sides should derive the same shared secret")
	}

	again, ok := aliceSide.getOrCreate(alice, bob.Public())
	if !ok || again != convA {
		t.Fatal("getOrCreate should return the existing conversation")
	}
}

func TestGetOrCreateQuantumOnlyStaysFirstContact(t *testing.T) {
	alice, err := crypto.GenerateKeyPair(wire.ModeQuantum)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := crypto.GenerateKeyPair(wire.ModeHybrid)
	if err != nil {
		t.Fatal(err)
	}

	m := newConversationManager()
	if conv, ok := m.getOrCreate(alice, bob.Public()); ok || conv != nil {
		t.Fatal("quantum-only identity has no exchange key; no conversation should form")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, 32)
	m := newConversationManager()
	m.conversations["pubkey:peer"] = &ConversationState{
		TheirKey:     "pubkey:peer",
		SharedSecret: secret,
		OurCounter:   9,
		TheirCounter: 4,
	}

	snap := m.snapshot()
	snap["pubkey:peer"].OurCounter = 100 // must not leak back
	if m.conversations["pubkey:peer"].OurCounter != 9 {
		t.Fatal("snapshot should deep-copy conversation state")
	}

	restored := newConversationManager()
	restored.restore(m.snapshot())
	conv, ok := restored.get("pubkey:peer")
	if !ok {
		t.Fatal("restored manager is missing the conversation")
	}
	if conv.OurCounter != 9 || conv.TheirCounter != 4 || !bytes.Equal(conv.SharedSecret, secret) {
		t.Fatalf("restored conversation differs: %+v", conv)
	}
}
