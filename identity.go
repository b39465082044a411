package nanorelay

import (
	"encoding/base64"
	"fmt"

	"github.com/nanorelay/client-go/internal/crypto"
	"github.com/nanorelay/client-go/wire"
)

// Identity is a user's long-term key material for one crypto mode.
type Identity struct {
	keys *crypto.KeyPair
}

// NewIdentity generates fresh key material for the given mode.
func NewIdentity(mode Mode) (*Identity, error) {
	keys, err := crypto.GenerateKeyPair(mode)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return &Identity{keys: keys}, nil
}

// Mode returns the identity's crypto mode.
func (id *Identity) Mode() Mode {
	return id.keys.Mode
}

// PublicKey returns the identity's prefixed public key string, the
// form peers use to address it.
func (id *Identity) PublicKey() string {
	return id.keys.Public().String()
}

// Sign signs data with the identity's mode-appropriate key material,
// satisfying wire.Signer.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	return id.keys.Sign(data)
}

// ExportedIdentity is the serializable form of an identity. It holds
// secret key material; persist it only through trusted storage.
type ExportedIdentity struct {
	Mode         Mode   `json:"mode"`
	SigningKey   string `json:"signing_key,omitempty"`
	ExchangeKey  string `json:"exchange_key,omitempty"`
	PQSigningKey string `json:"pq_signing_key,omitempty"`
	PQDecapsKey  string `json:"pq_decaps_key,omitempty"`
}

// Export serializes the identity's secret key material.
func (id *Identity) Export() *ExportedIdentity {
	exp := &ExportedIdentity{Mode: id.keys.Mode}
	if id.keys.SigningKey != nil {
		exp.SigningKey = base64.StdEncoding.EncodeToString(id.keys.SigningKey)
	}
	if id.keys.ExchangeKey != nil {
		exp.ExchangeKey = base64.StdEncoding.EncodeToString(id.keys.ExchangeKey)
	}
	if id.keys.PQSigningKey != nil {
		exp.PQSigningKey = base64.StdEncoding.EncodeToString(id.keys.PQSigningKey)
	}
	if id.keys.PQDecapsKey != nil {
		exp.PQDecapsKey = base64.StdEncoding.EncodeToString(id.keys.PQDecapsKey)
	}
	return exp
}

// ImportIdentity rebuilds an identity from its exported form.
func ImportIdentity(exp *ExportedIdentity) (*Identity, error) {
	if exp == nil {
		return nil, fmt.Errorf("exported identity is nil")
	}

	keys, err := crypto.RebuildKeyPair(exp.Mode,
		mustDecode(exp.SigningKey),
		mustDecode(exp.ExchangeKey),
		mustDecode(exp.PQSigningKey),
		mustDecode(exp.PQDecapsKey))
	if err != nil {
		return nil, fmt.Errorf("import identity: %w", err)
	}
	return &Identity{keys: keys}, nil
}

func mustDecode(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// unifiedKeys returns the identity's public key bundle for claims.
func (id *Identity) unifiedKeys() wire.UnifiedPublicKeys {
	return id.keys.Public().UnifiedKeys()
}

// public returns the parsed public half of the identity's keys.
func (id *Identity) public() *crypto.PublicIdentity {
	return id.keys.Public()
}

var _ wire.Signer = (*Identity)(nil)
