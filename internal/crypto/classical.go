package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// randReader is the random source used for key generation and nonces.
// It defaults to nil (which uses crypto/rand) but can be overridden for
// testing.
var randReader io.Reader

func randSource() io.Reader {
	if randReader != nil {
		return randReader
	}
	return rand.Reader
}

// SharedSecret computes the X25519 shared secret between our private
// scalar and their public key.
func SharedSecret(ourPrivate, theirPublic []byte) ([]byte, error) {
	if len(ourPrivate) != X25519KeySize || len(theirPublic) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	secret, err := curve25519.X25519(ourPrivate, theirPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	return secret, nil
}

// deriveKey derives an AEAD key from a secret using HKDF-SHA-256.
func deriveKey(secret []byte, context string) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(context))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext with ChaCha20-Poly1305 under a key derived
// from secret. Output: nonce (12 bytes) || ciphertext || tag.
func seal(secret []byte, context string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(secret, context)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(randSource(), nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed message produced by seal.
func open(secret []byte, context string, sealed []byte) ([]byte, error) {
	key, err := deriveKey(secret, context)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptSymmetric encrypts plaintext under a conversation shared secret.
func EncryptSymmetric(sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, ErrInvalidKeySize
	}
	return seal(sharedSecret, conversationContext, plaintext)
}

// DecryptSymmetric decrypts a message sealed under a conversation
// shared secret.
func DecryptSymmetric(sharedSecret, sealed []byte) ([]byte, error) {
	if len(sharedSecret) != SharedSecretSize {
		return nil, ErrInvalidKeySize
	}
	return open(sharedSecret, conversationContext, sealed)
}

// EncryptAsymmetric seals plaintext to a recipient's X25519 public key
// using an ephemeral keypair. Output: ephemeral public key (32 bytes)
// || nonce || ciphertext || tag.
func EncryptAsymmetric(theirPublic, plaintext []byte) ([]byte, error) {
	if len(theirPublic) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	ephPrivate := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(randSource(), ephPrivate); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	ephPublic, err := curve25519.X25519(ephPrivate, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	secret, err := curve25519.X25519(ephPrivate, theirPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	sealed, err := seal(secret, firstContactContext, plaintext)
	if err != nil {
		return nil, err
	}
	return append(ephPublic, sealed...), nil
}

// DecryptAsymmetric opens a message sealed by EncryptAsymmetric.
func DecryptAsymmetric(ourPrivate, data []byte) ([]byte, error) {
	if len(ourPrivate) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(data) < X25519KeySize {
		return nil, ErrInvalidCiphertext
	}
	ephPublic, sealed := data[:X25519KeySize], data[X25519KeySize:]
	secret, err := curve25519.X25519(ourPrivate, ephPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	return open(secret, firstContactContext, sealed)
}
