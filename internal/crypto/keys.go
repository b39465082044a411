package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/curve25519"

	"github.com/nanorelay/client-go/wire"
)

// KeyPair holds a user's long-term secret key material for one crypto
// mode. Classical keys are present for classical and hybrid modes;
// post-quantum keys for hybrid and quantum modes. All key fields are
// raw bytes in the underlying algorithms' binary encodings.
type KeyPair struct {
	Mode wire.Mode

	SigningKey   ed25519.PrivateKey
	VerifyingKey ed25519.PublicKey
	ExchangeKey  []byte // X25519 private scalar
	ExchangePub  []byte // X25519 public key

	PQSigningKey   []byte // ML-DSA-65 private key
	PQVerifyingKey []byte // ML-DSA-65 public key
	PQDecapsKey    []byte // ML-KEM-768 secret key
	PQEncapsKey    []byte // ML-KEM-768 public key
}

// GenerateKeyPair creates fresh key material for the given mode.
func GenerateKeyPair(mode wire.Mode) (*KeyPair, error) {
	kp := &KeyPair{Mode: mode}

	if mode == wire.ModeClassical || mode == wire.ModeHybrid {
		pub, priv, err := ed25519.GenerateKey(randSource())
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		kp.SigningKey = priv
		kp.VerifyingKey = pub

		scalar := make([]byte, X25519KeySize)
		if _, err := randSource().Read(scalar); err != nil {
			return nil, fmt.Errorf("generate x25519 key: %w", err)
		}
		exchangePub, err := curve25519.X25519(scalar, curve25519.Basepoint)
		if err != nil {
			return nil, fmt.Errorf("x25519: %w", err)
		}
		kp.ExchangeKey = scalar
		kp.ExchangePub = exchangePub
	}

	if mode == wire.ModeHybrid || mode == wire.ModeQuantum {
		sigPub, sigPriv, err := mldsa65.GenerateKey(randSource())
		if err != nil {
			return nil, fmt.Errorf("generate ml-dsa key: %w", err)
		}
		// MarshalBinary never fails for freshly generated keys
		kp.PQSigningKey, _ = sigPriv.MarshalBinary()
		kp.PQVerifyingKey, _ = sigPub.MarshalBinary()

		kemPub, kemPriv, err := mlkem768.GenerateKeyPair(randSource())
		if err != nil {
			return nil, fmt.Errorf("generate ml-kem key: %w", err)
		}
		kp.PQDecapsKey, _ = kemPriv.MarshalBinary()
		kp.PQEncapsKey, _ = kemPub.MarshalBinary()
	}

	return kp, nil
}

// RebuildKeyPair reconstructs a keypair from persisted secret key
// material, rederiving the public halves. Fields not used by the mode
// may be nil.
func RebuildKeyPair(mode wire.Mode, signingKey, exchangeKey, pqSigningKey, pqDecapsKey []byte) (*KeyPair, error) {
	kp := &KeyPair{Mode: mode}

	if mode == wire.ModeClassical || mode == wire.ModeHybrid {
		if len(signingKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: ed25519 private key", ErrInvalidKeySize)
		}
		kp.SigningKey = ed25519.PrivateKey(signingKey)
		kp.VerifyingKey = kp.SigningKey.Public().(ed25519.PublicKey)

		if len(exchangeKey) != X25519KeySize {
			return nil, fmt.Errorf("%w: x25519 private key", ErrInvalidKeySize)
		}
		exchangePub, err := curve25519.X25519(exchangeKey, curve25519.Basepoint)
		if err != nil {
			return nil, fmt.Errorf("x25519: %w", err)
		}
		kp.ExchangeKey = exchangeKey
		kp.ExchangePub = exchangePub
	}

	if mode == wire.ModeHybrid || mode == wire.ModeQuantum {
		var sigPriv mldsa65.PrivateKey
		if err := sigPriv.UnmarshalBinary(pqSigningKey); err != nil {
			return nil, fmt.Errorf("%w: ml-dsa private key", ErrInvalidKeySize)
		}
		kp.PQSigningKey = pqSigningKey
		kp.PQVerifyingKey, _ = sigPriv.Public().(*mldsa65.PublicKey).MarshalBinary()

		kemPriv, err := mlkem768.Scheme().UnmarshalBinaryPrivateKey(pqDecapsKey)
		if err != nil {
			return nil, fmt.Errorf("%w: ml-kem private key", ErrInvalidKeySize)
		}
		kp.PQDecapsKey = pqDecapsKey
		kp.PQEncapsKey, _ = kemPriv.Public().MarshalBinary()
	}

	return kp, nil
}

// Sign signs data according to the keypair's mode, satisfying
// wire.Signer.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	switch k.Mode {
	case wire.ModeClassical:
		return ed25519.Sign(k.SigningKey, data), nil
	case wire.ModeHybrid:
		return SignHybrid(k.SigningKey, k.PQSigningKey, data)
	case wire.ModeQuantum:
		return SignQuantum(k.PQSigningKey, data)
	default:
		return nil, ErrModeMismatch
	}
}

// Public returns the public half of the keypair.
func (k *KeyPair) Public() *PublicIdentity {
	return &PublicIdentity{
		Mode:           k.Mode,
		VerifyingKey:   append(ed25519.PublicKey(nil), k.VerifyingKey...),
		ExchangeKey:    append([]byte(nil), k.ExchangePub...),
		PQVerifyingKey: append([]byte(nil), k.PQVerifyingKey...),
		PQEncapsKey:    append([]byte(nil), k.PQEncapsKey...),
	}
}

// PublicIdentity is a peer's long-term public key material.
type PublicIdentity struct {
	Mode           wire.Mode
	VerifyingKey   ed25519.PublicKey
	ExchangeKey    []byte // X25519 public key
	PQVerifyingKey []byte // ML-DSA-65 public key
	PQEncapsKey    []byte // ML-KEM-768 public key
}

// Verify checks a detached signature according to the identity's mode,
// satisfying wire.Verifier.
func (p *PublicIdentity) Verify(data, sig []byte) error {
	switch p.Mode {
	case wire.ModeClassical:
		if len(sig) != Ed25519SignatureSize {
			return ErrInvalidSignatureSize
		}
		if !ed25519.Verify(p.VerifyingKey, data, sig) {
			return ErrSignatureVerificationFailed
		}
		return nil
	case wire.ModeHybrid:
		return VerifyHybrid(p.VerifyingKey, p.PQVerifyingKey, data, sig)
	case wire.ModeQuantum:
		return VerifyQuantum(p.PQVerifyingKey, data, sig)
	default:
		return ErrModeMismatch
	}
}

// ContactKey returns the key material a sender hashes to derive this
// identity's first-contact inbox: the X25519 key where one exists, the
// ML-KEM key for quantum-only identities.
func (p *PublicIdentity) ContactKey() []byte {
	if len(p.ExchangeKey) > 0 {
		return p.ExchangeKey
	}
	return p.PQEncapsKey
}

// String encodes the identity as a prefixed public key string:
// "pubkey:", "pq-pubkey:" or "hybrid-pubkey:" followed by the base64
// concatenation of the mode's key material.
func (p *PublicIdentity) String() string {
	var prefix string
	var material []byte
	switch p.Mode {
	case wire.ModeClassical:
		prefix = ClassicalKeyPrefix
		material = append(append([]byte{}, p.VerifyingKey...), p.ExchangeKey...)
	case wire.ModeHybrid:
		prefix = HybridKeyPrefix
		material = append(append([]byte{}, p.VerifyingKey...), p.ExchangeKey...)
		material = append(material, p.PQVerifyingKey...)
		material = append(material, p.PQEncapsKey...)
	case wire.ModeQuantum:
		prefix = QuantumKeyPrefix
		material = append(append([]byte{}, p.PQVerifyingKey...), p.PQEncapsKey...)
	default:
		return ""
	}
	return prefix + base64.StdEncoding.EncodeToString(material)
}

// Equal reports whether two identities carry the same key material.
func (p *PublicIdentity) Equal(other *PublicIdentity) bool {
	if other == nil {
		return false
	}
	return p.Mode == other.Mode &&
		bytes.Equal(p.VerifyingKey, other.VerifyingKey) &&
		bytes.Equal(p.ExchangeKey, other.ExchangeKey) &&
		bytes.Equal(p.PQVerifyingKey, other.PQVerifyingKey) &&
		bytes.Equal(p.PQEncapsKey, other.PQEncapsKey)
}

// ParsePublicKeyString decodes a prefixed public key string.
func ParsePublicKeyString(s string) (*PublicIdentity, error) {
	var mode wire.Mode
	var encoded string
	switch {
	case strings.HasPrefix(s, ClassicalKeyPrefix):
		mode = wire.ModeClassical
		encoded = s[len(ClassicalKeyPrefix):]
	case strings.HasPrefix(s, HybridKeyPrefix):
		mode = wire.ModeHybrid
		encoded = s[len(HybridKeyPrefix):]
	case strings.HasPrefix(s, QuantumKeyPrefix):
		mode = wire.ModeQuantum
		encoded = s[len(QuantumKeyPrefix):]
	default:
		return nil, fmt.Errorf("%w: unknown prefix", ErrInvalidPublicKeyString)
	}

	material, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKeyString, err)
	}

	p := &PublicIdentity{Mode: mode}
	switch mode {
	case wire.ModeClassical:
		if len(material) != ed25519.PublicKeySize+X25519KeySize {
			return nil, fmt.Errorf("%w: bad classical key length %d", ErrInvalidPublicKeyString, len(material))
		}
		p.VerifyingKey = ed25519.PublicKey(material[:ed25519.PublicKeySize])
		p.ExchangeKey = material[ed25519.PublicKeySize:]
	case wire.ModeHybrid:
		want := ed25519.PublicKeySize + X25519KeySize + MLDSAPublicKeySize + MLKEMPublicKeySize
		if len(material) != want {
			return nil, fmt.Errorf("%w: bad hybrid key length %d", ErrInvalidPublicKeyString, len(material))
		}
		off := 0
		p.VerifyingKey = ed25519.PublicKey(material[off : off+ed25519.PublicKeySize])
		off += ed25519.PublicKeySize
		p.ExchangeKey = material[off : off+X25519KeySize]
		off += X25519KeySize
		p.PQVerifyingKey = material[off : off+MLDSAPublicKeySize]
		off += MLDSAPublicKeySize
		p.PQEncapsKey = material[off:]
	case wire.ModeQuantum:
		if len(material) != MLDSAPublicKeySize+MLKEMPublicKeySize {
			return nil, fmt.Errorf("%w: bad quantum key length %d", ErrInvalidPublicKeyString, len(material))
		}
		p.PQVerifyingKey = material[:MLDSAPublicKeySize]
		p.PQEncapsKey = material[MLDSAPublicKeySize:]
	}
	return p, nil
}

// UnifiedKeys converts the identity to its wire key bundle.
func (p *PublicIdentity) UnifiedKeys() wire.UnifiedPublicKeys {
	keys := wire.UnifiedPublicKeys{Mode: p.Mode}
	if len(p.VerifyingKey) > 0 {
		keys.VerifyingKey = base64.StdEncoding.EncodeToString(p.VerifyingKey)
	}
	if len(p.ExchangeKey) > 0 {
		keys.ExchangeKey = base64.StdEncoding.EncodeToString(p.ExchangeKey)
	}
	if len(p.PQVerifyingKey) > 0 {
		keys.PQVerifyingKey = base64.StdEncoding.EncodeToString(p.PQVerifyingKey)
	}
	if len(p.PQEncapsKey) > 0 {
		keys.PQEncapsKey = base64.StdEncoding.EncodeToString(p.PQEncapsKey)
	}
	return keys
}

// FromUnifiedKeys builds an identity from a wire key bundle.
func FromUnifiedKeys(keys *wire.UnifiedPublicKeys) (*PublicIdentity, error) {
	decode := func(field, s string, want int) ([]byte, error) {
		if s == "" {
			return nil, nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPublicKeyString, field, err)
		}
		if len(b) != want {
			return nil, fmt.Errorf("%w: %s length %d", ErrInvalidPublicKeyString, field, len(b))
		}
		return b, nil
	}

	p := &PublicIdentity{Mode: keys.Mode}
	var err error
	if p.VerifyingKey, err = decode("verifying_key", keys.VerifyingKey, ed25519.PublicKeySize); err != nil {
		return nil, err
	}
	if p.ExchangeKey, err = decode("x25519_key", keys.ExchangeKey, X25519KeySize); err != nil {
		return nil, err
	}
	if p.PQVerifyingKey, err = decode("pq_verifying_key", keys.PQVerifyingKey, MLDSAPublicKeySize); err != nil {
		return nil, err
	}
	if p.PQEncapsKey, err = decode("pq_kem_key", keys.PQEncapsKey, MLKEMPublicKeySize); err != nil {
		return nil, err
	}

	switch keys.Mode {
	case wire.ModeClassical:
		if p.VerifyingKey == nil || p.ExchangeKey == nil {
			return nil, fmt.Errorf("%w: classical bundle missing keys", ErrInvalidPublicKeyString)
		}
	case wire.ModeHybrid:
		if p.VerifyingKey == nil || p.ExchangeKey == nil || p.PQVerifyingKey == nil || p.PQEncapsKey == nil {
			return nil, fmt.Errorf("%w: hybrid bundle missing keys", ErrInvalidPublicKeyString)
		}
	case wire.ModeQuantum:
		if p.PQVerifyingKey == nil || p.PQEncapsKey == nil {
			return nil, fmt.Errorf("%w: quantum bundle missing keys", ErrInvalidPublicKeyString)
		}
	default:
		return nil, ErrModeMismatch
	}
	return p, nil
}
