package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nanorelay/client-go/wire"
)

// fakeRelay serves one connection at a time, answering each request
// with handler's response.
func fakeRelay(t *testing.T, handler func(req message) message) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}
				var req message
				if err := json.Unmarshal(line, &req); err != nil {
					return
				}
				resp, _ := json.Marshal(handler(req))
				conn.Write(append(resp, '\n'))
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestSendEnvelope(t *testing.T) {
	var got message
	addr := fakeRelay(t, func(req message) message {
		got = req
		return message{Type: typeSuccess, Message: "stored"}
	})

	c, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env := wire.NewEnvelope("abc123", []byte("sealed"))
	if err := c.SendEnvelope(context.Background(), env); err != nil {
		t.Fatalf("SendEnvelope: %v", err)
	}

	if got.Type != typeSendMessage {
		t.Errorf("request type = %q, want %q", got.Type, typeSendMessage)
	}
	sent, err := wire.DecodeEnvelope(got.Envelope)
	if err != nil {
		t.Fatalf("decode sent envelope: %v", err)
	}
	if sent.InboxID != "abc123" {
		t.Errorf("inbox id = %q, want abc123", sent.InboxID)
	}
}

func TestFetchInbox(t *testing.T) {
	env := wire.NewEnvelope("inbox-1", []byte("hello"))
	raw, _ := json.Marshal(env)

	addr := fakeRelay(t, func(req message) message {
		if req.Type != typeFetchInbox || req.InboxID != "inbox-1" {
			return message{Type: typeError, Message: "bad request"}
		}
		return message{Type: typeInboxMessages, Messages: []json.RawMessage{raw}}
	})

	c, _ := New(addr)
	envelopes, err := c.FetchInbox(context.Background(), "inbox-1")
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(envelopes) != 1 || envelopes[0].InboxID != "inbox-1" {
		t.Fatalf("unexpected envelopes: %+v", envelopes)
	}
}

func TestFetchQuantumInboxUpgradesLegacy(t *testing.T) {
	env := wire.NewEnvelope("inbox-2", []byte("old style"))
	raw, _ := json.Marshal(env)

	addr := fakeRelay(t, func(req message) message {
		return message{Type: typeInboxMessages, Messages: []json.RawMessage{raw}}
	})

	c, _ := New(addr)
	envelopes, err := c.FetchQuantumInbox(context.Background(), "inbox-2")
	if err != nil {
		t.Fatalf("FetchQuantumInbox: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envelopes))
	}
	if envelopes[0].CryptoMode != wire.ModeClassical {
		t.Errorf("upgraded mode = %v, want classical", envelopes[0].CryptoMode)
	}
	if !envelopes[0].LegacyCompat {
		t.Error("upgraded envelope should be marked legacy-compatible")
	}
}

func TestRelayErrorResponse(t *testing.T) {
	addr := fakeRelay(t, func(req message) message {
		return message{Type: typeError, Message: "inbox unknown"}
	})

	c, _ := New(addr)
	_, err := c.FetchInbox(context.Background(), "nope")
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if relayErr.Message != "inbox unknown" {
		t.Errorf("message = %q", relayErr.Message)
	}
}

func TestUnexpectedResponseType(t *testing.T) {
	addr := fakeRelay(t, func(req message) message {
		return message{Type: typeSuccess, Message: "ok"}
	})

	c, _ := New(addr)
	_, err := c.FetchInbox(context.Background(), "inbox")
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestLookupUsername(t *testing.T) {
	bundle := wire.UnifiedPublicKeys{
		Mode:         wire.ModeClassical,
		VerifyingKey: "dmVyaWZ5",
		ExchangeKey:  "ZXhjaGFuZ2U=",
	}
	rawBundle, _ := json.Marshal(bundle)

	addr := fakeRelay(t, func(req message) message {
		switch req.Username {
		case "alice":
			return message{Type: typeQuantumUsername, Username: "alice", PublicKeys: rawBundle}
		default:
			return message{Type: typeQuantumUsername, Username: req.Username}
		}
	})

	c, _ := New(addr)

	keys, err := c.LookupUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("LookupUsername: %v", err)
	}
	if keys == nil || keys.VerifyingKey != bundle.VerifyingKey {
		t.Fatalf("unexpected bundle: %+v", keys)
	}

	keys, err = c.LookupUsername(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("LookupUsername(absent): %v", err)
	}
	if keys != nil {
		t.Fatalf("expected nil bundle for unclaimed name, got %+v", keys)
	}
}

func TestLookupUsernameLegacyResult(t *testing.T) {
	legacy := wire.PublicKeys{VerifyingKey: "dmVyaWZ5", ExchangeKey: "ZXhjaGFuZ2U="}
	rawLegacy, _ := json.Marshal(legacy)

	addr := fakeRelay(t, func(req message) message {
		return message{Type: typeUsernameResult, Username: req.Username, PublicKeys: rawLegacy}
	})

	c, _ := New(addr)
	keys, err := c.LookupUsername(context.Background(), "bob")
	if err != nil {
		t.Fatalf("LookupUsername: %v", err)
	}
	if keys.Mode != wire.ModeClassical {
		t.Errorf("legacy result mode = %v, want classical", keys.Mode)
	}
	if keys.ExchangeKey != legacy.ExchangeKey {
		t.Errorf("exchange key = %q", keys.ExchangeKey)
	}
}

func TestConnectTimeout(t *testing.T) {
	// A listener that never accepts: dial succeeds but the read stalls
	// until the deadline fires.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	c, err := New(ln.Addr().String(), WithTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env := wire.NewEnvelope("inbox", []byte("x"))
	start := time.Now()
	sendErr := c.SendEnvelope(context.Background(), env)
	if !errors.Is(sendErr, ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", sendErr)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}
