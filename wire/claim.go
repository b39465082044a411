package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ClaimType is the fixed claim_type discriminator of username claims.
const ClaimType = "username_claim"

// usernamePattern bounds claims to lowercase alphanumerics, dots,
// underscores and hyphens, 3-32 characters.
var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// PublicKeys is a user's classical long-term key material as carried
// by legacy username lookup results.
type PublicKeys struct {
	VerifyingKey string `json:"verifying_key"` // base64 Ed25519
	ExchangeKey  string `json:"x25519_key"`    // base64 X25519
}

// UnifiedPublicKeys is the mode-aware key bundle carried by
// quantum_username_result responses and published in claims.
type UnifiedPublicKeys struct {
	Mode           Mode   `json:"mode"`
	VerifyingKey   string `json:"verifying_key,omitempty"`    // base64 Ed25519
	ExchangeKey    string `json:"x25519_key,omitempty"`       // base64 X25519
	PQVerifyingKey string `json:"pq_verifying_key,omitempty"` // base64 ML-DSA-65
	PQEncapsKey    string `json:"pq_kem_key,omitempty"`       // base64 ML-KEM-768
}

// FromLegacyKeys upgrades a legacy key bundle; legacy keys are always
// classical.
func FromLegacyKeys(legacy *PublicKeys) *UnifiedPublicKeys {
	return &UnifiedPublicKeys{
		Mode:         ModeClassical,
		VerifyingKey: legacy.VerifyingKey,
		ExchangeKey:  legacy.ExchangeKey,
	}
}

// UsernameClaim binds a username to public key material. The relay-side
// registry enforces first-writer-wins, same-key updates only, and a
// strictly increasing timestamp.
type UsernameClaim struct {
	ClaimType  string            `json:"claim_type"`
	Username   string            `json:"username"`
	PublicKeys UnifiedPublicKeys `json:"public_keys"`
	Timestamp  int64             `json:"timestamp"`
	Sig        string            `json:"sig"` // base64
}

// NewUsernameClaim creates an unsigned claim stamped with the current time.
func NewUsernameClaim(username string, keys UnifiedPublicKeys) *UsernameClaim {
	return &UsernameClaim{
		ClaimType:  ClaimType,
		Username:   username,
		PublicKeys: keys,
		Timestamp:  time.Now().Unix(),
	}
}

// ValidateUsername reports whether a username is acceptable for claims.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q: 3-32 lowercase letters, digits, '.', '_' or '-', starting with a letter or digit", username)
	}
	return nil
}

// SignableBytes returns the canonical encoding of every field except
// the signature.
func (c *UsernameClaim) SignableBytes() ([]byte, error) {
	signable := struct {
		ClaimType  string            `json:"claim_type"`
		Username   string            `json:"username"`
		PublicKeys UnifiedPublicKeys `json:"public_keys"`
		Timestamp  int64             `json:"timestamp"`
	}{
		ClaimType:  c.ClaimType,
		Username:   c.Username,
		PublicKeys: c.PublicKeys,
		Timestamp:  c.Timestamp,
	}
	return json.Marshal(signable)
}

// Sign fills in the signature field using the given signer.
func (c *UsernameClaim) Sign(signer Signer) error {
	data, err := c.SignableBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(data)
	if err != nil {
		return fmt.Errorf("sign claim: %w", err)
	}
	c.Sig = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify checks the claim signature using the given verifier.
func (c *UsernameClaim) Verify(verifier Verifier) error {
	if c.Sig == "" {
		return ErrNotSigned
	}
	data, err := c.SignableBytes()
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(c.Sig)
	if err != nil {
		return fmt.Errorf("%w: claim signature: %v", ErrDecode, err)
	}
	if err := verifier.Verify(data, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// Encode serializes the claim to its JSON wire form.
func (c *UsernameClaim) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeUsernameClaim parses a claim from its JSON wire form.
func DecodeUsernameClaim(data []byte) (*UsernameClaim, error) {
	var c UsernameClaim
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: username claim: %v", ErrDecode, err)
	}
	if c.ClaimType != ClaimType {
		return nil, fmt.Errorf("%w: unexpected claim_type %q", ErrDecode, c.ClaimType)
	}
	return &c, nil
}
