package crypto

import "errors"

var (
	// ErrDecryptionFailed is returned when decryption or authentication
	// of a ciphertext fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSignatureVerificationFailed is returned when a signature does
	// not verify.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrInvalidKeySize is returned when key material has an unexpected size.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidSignatureSize is returned when a signature has an
	// unexpected size for its mode.
	ErrInvalidSignatureSize = errors.New("invalid signature size")

	// ErrInvalidCiphertext is returned when a sealed message is too
	// short or structurally invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrInvalidPublicKeyString is returned when a public key string
	// has an unknown prefix or malformed key material.
	ErrInvalidPublicKeyString = errors.New("invalid public key string")

	// ErrModeMismatch is returned when key material does not support
	// the operation requested for its mode.
	ErrModeMismatch = errors.New("crypto mode mismatch")
)
