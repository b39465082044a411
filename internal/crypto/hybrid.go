package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// SignHybrid signs data with both the Ed25519 and ML-DSA-65 keys.
// Output: Ed25519 signature (64 bytes) || ML-DSA-65 signature.
func SignHybrid(edKey ed25519.PrivateKey, pqKey, data []byte) ([]byte, error) {
	edSig := ed25519.Sign(edKey, data)
	pqSig, err := SignQuantum(pqKey, data)
	if err != nil {
		return nil, err
	}
	return append(edSig, pqSig...), nil
}

// VerifyHybrid verifies a hybrid signature. Both component signatures
// must verify.
func VerifyHybrid(edPublic ed25519.PublicKey, pqPublic, data, sig []byte) error {
	if len(sig) != HybridSignatureSize {
		return ErrInvalidSignatureSize
	}
	edSig, pqSig := sig[:Ed25519SignatureSize], sig[Ed25519SignatureSize:]
	if !ed25519.Verify(edPublic, data, edSig) {
		return ErrSignatureVerificationFailed
	}
	return VerifyQuantum(pqPublic, data, pqSig)
}

// combineSecrets mixes the classical and post-quantum shared secrets
// into one AEAD secret. Security holds as long as either input does.
func combineSecrets(classical, postQuantum []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, append(append([]byte{}, classical...), postQuantum...), nil, []byte(hybridContext))
	secret := make([]byte, SharedSecretSize)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, fmt.Errorf("combine secrets: %w", err)
	}
	return secret, nil
}

// EncryptAsymmetricHybrid seals plaintext to a recipient holding both
// an X25519 and an ML-KEM-768 public key. The KEM ciphertext travels
// in the envelope's pq_ciphertext field; the sealed payload (ephemeral
// X25519 public key || nonce || ciphertext || tag) is returned second.
func EncryptAsymmetricHybrid(theirX25519, theirKEM, plaintext []byte) (kemCiphertext, sealed []byte, err error) {
	if len(theirX25519) != X25519KeySize {
		return nil, nil, ErrInvalidKeySize
	}
	kemCT, kemSecret, err := Encapsulate(theirKEM)
	if err != nil {
		return nil, nil, err
	}
	ephPrivate := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(randSource(), ephPrivate); err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	ephPublic, err := curve25519.X25519(ephPrivate, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519: %w", err)
	}
	classicalSecret, err := curve25519.X25519(ephPrivate, theirX25519)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519: %w", err)
	}
	secret, err := combineSecrets(classicalSecret, kemSecret)
	if err != nil {
		return nil, nil, err
	}
	box, err := seal(secret, firstContactContext, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return kemCT, append(ephPublic, box...), nil
}

// DecryptAsymmetricHybrid opens a message sealed by
// EncryptAsymmetricHybrid.
func DecryptAsymmetricHybrid(ourX25519, ourKEM, kemCiphertext, sealed []byte) ([]byte, error) {
	if len(ourX25519) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(sealed) < X25519KeySize {
		return nil, ErrInvalidCiphertext
	}
	kemSecret, err := Decapsulate(ourKEM, kemCiphertext)
	if err != nil {
		return nil, err
	}
	ephPublic, box := sealed[:X25519KeySize], sealed[X25519KeySize:]
	classicalSecret, err := curve25519.X25519(ourX25519, ephPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	secret, err := combineSecrets(classicalSecret, kemSecret)
	if err != nil {
		return nil, err
	}
	return open(secret, firstContactContext, box)
}
