package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Signer produces a detached signature over a byte string.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Verifier checks a detached signature over a byte string.
type Verifier interface {
	Verify(data, sig []byte) error
}

// Payload is the decrypted inner content of a message. The signature
// covers every field except itself; see SignableBytes.
type Payload struct {
	FromPubKey string `json:"from_pubkey"`
	Timestamp  int64  `json:"timestamp"`
	Body       string `json:"body"`
	Room       string `json:"room,omitempty"`
	Counter    uint64 `json:"counter"`
	Sig        string `json:"sig"` // base64
	CryptoMode *Mode  `json:"crypto_mode,omitempty"`
}

// NewPayload creates an unsigned payload stamped with the current time.
func NewPayload(fromPubKey, body string, counter uint64, room string) *Payload {
	return &Payload{
		FromPubKey: fromPubKey,
		Timestamp:  time.Now().Unix(),
		Body:       body,
		Room:       room,
		Counter:    counter,
	}
}

// NewPayloadWithMode creates an unsigned payload tagged with an
// explicit crypto mode.
func NewPayloadWithMode(fromPubKey, body string, counter uint64, room string, mode Mode) *Payload {
	p := NewPayload(fromPubKey, body, counter, room)
	p.CryptoMode = &mode
	return p
}

// SignableBytes returns the canonical encoding of every field except
// the signature. The field order here is part of the wire contract;
// reordering it breaks cross-implementation compatibility.
func (p *Payload) SignableBytes() ([]byte, error) {
	signable := struct {
		FromPubKey string `json:"from_pubkey"`
		Timestamp  int64  `json:"timestamp"`
		Body       string `json:"body"`
		Room       string `json:"room,omitempty"`
		Counter    uint64 `json:"counter"`
		CryptoMode *Mode  `json:"crypto_mode,omitempty"`
	}{
		FromPubKey: p.FromPubKey,
		Timestamp:  p.Timestamp,
		Body:       p.Body,
		Room:       p.Room,
		Counter:    p.Counter,
		CryptoMode: p.CryptoMode,
	}
	return json.Marshal(signable)
}

// Sign fills in the signature field using the given signer.
func (p *Payload) Sign(signer Signer) error {
	data, err := p.SignableBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(data)
	if err != nil {
		return fmt.Errorf("sign payload: %w", err)
	}
	p.Sig = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify checks the signature using the given verifier. It fails with
// ErrSignatureInvalid if any signed field or the signature itself was
// altered after signing.
func (p *Payload) Verify(verifier Verifier) error {
	if p.Sig == "" {
		return ErrNotSigned
	}
	data, err := p.SignableBytes()
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(p.Sig)
	if err != nil {
		return fmt.Errorf("%w: payload signature: %v", ErrDecode, err)
	}
	if err := verifier.Verify(data, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// Encode serializes the payload to its JSON wire form.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a payload from its JSON wire form.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}
	return &p, nil
}

// Mode returns the payload's crypto mode, inferring it from the public
// key prefix for legacy payloads that omit the explicit field.
func (p *Payload) Mode() Mode {
	if p.CryptoMode != nil {
		return *p.CryptoMode
	}
	switch {
	case strings.HasPrefix(p.FromPubKey, "pq-pubkey:"):
		return ModeQuantum
	case strings.HasPrefix(p.FromPubKey, "hybrid-pubkey:"):
		return ModeHybrid
	default:
		return ModeClassical
	}
}
