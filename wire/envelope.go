package wire

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// EnvelopeVersion is the wire version of legacy envelopes.
	EnvelopeVersion = "1.1"
	// QuantumEnvelopeVersion is the wire version of mode-tagged envelopes.
	QuantumEnvelopeVersion = "2.0-quantum"

	// NonceSize is the size of the random dedup nonce in bytes.
	NonceSize = 16
)

// Envelope is the outer message container a relay holds for retrieval.
// The payload is opaque encrypted bytes; only the inbox id routes it.
type Envelope struct {
	Version string `json:"version"`
	InboxID string `json:"inbox_id"`
	Payload string `json:"payload"` // base64
	Expiry  int64  `json:"expiry,omitempty"`
	Nonce   string `json:"nonce"`
}

// NewEnvelope creates a legacy envelope with a fresh random nonce.
func NewEnvelope(inboxID string, encryptedPayload []byte) *Envelope {
	return &Envelope{
		Version: EnvelopeVersion,
		InboxID: inboxID,
		Payload: base64.StdEncoding.EncodeToString(encryptedPayload),
		Nonce:   newNonce(),
	}
}

// WithExpiry sets the expiry instant and returns the envelope.
func (e *Envelope) WithExpiry(t time.Time) *Envelope {
	e.Expiry = t.Unix()
	return e
}

// IsExpired reports whether the envelope is logically dead.
// A zero expiry means the envelope never expires.
func (e *Envelope) IsExpired() bool {
	return e.Expiry != 0 && time.Now().Unix() > e.Expiry
}

// PayloadBytes decodes the base64 payload.
func (e *Envelope) PayloadBytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope payload: %v", ErrDecode, err)
	}
	return b, nil
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a legacy envelope from its JSON wire form.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrDecode, err)
	}
	return &e, nil
}

// QuantumEnvelope is the mode-tagged envelope. It carries the crypto
// mode explicitly plus optional post-quantum key material: the ML-KEM
// ciphertext used to establish the payload key, and a detached ML-DSA
// signature where the inner payload signature alone is not enough.
type QuantumEnvelope struct {
	Version      string `json:"version"`
	CryptoMode   Mode   `json:"crypto_mode"`
	InboxID      string `json:"inbox_id"`
	Payload      string `json:"payload"` // base64
	PQCiphertext string `json:"pq_ciphertext,omitempty"`
	PQSignature  string `json:"pq_signature,omitempty"`
	Expiry       int64  `json:"expiry,omitempty"`
	Nonce        string `json:"nonce"`
	LegacyCompat bool   `json:"legacy_compat,omitempty"`
}

// NewQuantumEnvelope creates a mode-tagged envelope with a fresh nonce.
func NewQuantumEnvelope(mode Mode, inboxID string, encryptedPayload []byte) *QuantumEnvelope {
	return &QuantumEnvelope{
		Version:    QuantumEnvelopeVersion,
		CryptoMode: mode,
		InboxID:    inboxID,
		Payload:    base64.StdEncoding.EncodeToString(encryptedPayload),
		Nonce:      newNonce(),
	}
}

// WithExpiry sets the expiry instant and returns the envelope.
func (e *QuantumEnvelope) WithExpiry(t time.Time) *QuantumEnvelope {
	e.Expiry = t.Unix()
	return e
}

// WithPQData attaches post-quantum ciphertext and/or signature bytes.
func (e *QuantumEnvelope) WithPQData(ciphertext, signature []byte) *QuantumEnvelope {
	if len(ciphertext) > 0 {
		e.PQCiphertext = base64.StdEncoding.EncodeToString(ciphertext)
	}
	if len(signature) > 0 {
		e.PQSignature = base64.StdEncoding.EncodeToString(signature)
	}
	return e
}

// WithLegacyCompat marks the envelope as needing legacy format support.
func (e *QuantumEnvelope) WithLegacyCompat() *QuantumEnvelope {
	e.LegacyCompat = true
	return e
}

// IsExpired reports whether the envelope is logically dead.
func (e *QuantumEnvelope) IsExpired() bool {
	return e.Expiry != 0 && time.Now().Unix() > e.Expiry
}

// PayloadBytes decodes the base64 payload.
func (e *QuantumEnvelope) PayloadBytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope payload: %v", ErrDecode, err)
	}
	return b, nil
}

// PQCiphertextBytes decodes the optional KEM ciphertext.
// Returns nil when the field is absent.
func (e *QuantumEnvelope) PQCiphertextBytes() ([]byte, error) {
	if e.PQCiphertext == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(e.PQCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: pq ciphertext: %v", ErrDecode, err)
	}
	return b, nil
}

// PQSignatureBytes decodes the optional detached PQ signature.
// Returns nil when the field is absent.
func (e *QuantumEnvelope) PQSignatureBytes() ([]byte, error) {
	if e.PQSignature == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(e.PQSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: pq signature: %v", ErrDecode, err)
	}
	return b, nil
}

// Encode serializes the envelope to its JSON wire form.
func (e *QuantumEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeQuantumEnvelope parses a mode-tagged envelope from JSON.
func DecodeQuantumEnvelope(data []byte) (*QuantumEnvelope, error) {
	var e QuantumEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: quantum envelope: %v", ErrDecode, err)
	}
	return &e, nil
}

// ToLegacy converts to the legacy envelope shape, dropping the PQ
// fields. Callers must only do this for classical-mode envelopes.
func (e *QuantumEnvelope) ToLegacy() *Envelope {
	return &Envelope{
		Version: EnvelopeVersion,
		InboxID: e.InboxID,
		Payload: e.Payload,
		Expiry:  e.Expiry,
		Nonce:   e.Nonce,
	}
}

// FromLegacy upgrades a legacy envelope into the mode-tagged shape.
// Legacy traffic is always classical.
func FromLegacy(legacy *Envelope) *QuantumEnvelope {
	return &QuantumEnvelope{
		Version:      QuantumEnvelopeVersion,
		CryptoMode:   ModeClassical,
		InboxID:      legacy.InboxID,
		Payload:      legacy.Payload,
		Expiry:       legacy.Expiry,
		Nonce:        legacy.Nonce,
		LegacyCompat: true,
	}
}

// newNonce returns a fresh random nonce, independent of any payload.
func newNonce() string {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("wire: rand.Read: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(b)
}
