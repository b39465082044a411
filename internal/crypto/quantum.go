package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Encapsulate generates a fresh shared secret for the recipient's raw
// ML-KEM-768 public key. Returns the KEM ciphertext and the secret.
func Encapsulate(theirPublic []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(theirPublic) != MLKEMPublicKeySize {
		return nil, nil, ErrInvalidKeySize
	}
	pk, err := mlkem768.Scheme().UnmarshalBinaryPublicKey(theirPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal kem public key: %w", err)
	}
	ct, ss, err := mlkem768.Scheme().Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("encapsulate: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from an ML-KEM-768 ciphertext
// using the raw secret key.
func Decapsulate(ourPrivate, ciphertext []byte) ([]byte, error) {
	if len(ourPrivate) != MLKEMSecretKeySize {
		return nil, ErrInvalidKeySize
	}
	if len(ciphertext) != MLKEMCiphertextSize {
		return nil, ErrInvalidCiphertext
	}
	var sk mlkem768.PrivateKey
	if err := sk.Unpack(ourPrivate); err != nil {
		return nil, fmt.Errorf("unpack kem secret key: %w", err)
	}
	sharedSecret := make([]byte, MLKEMSharedKeySize)
	sk.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}

// SignQuantum signs data with ML-DSA-65 using the raw private key.
func SignQuantum(privateKey, data []byte) ([]byte, error) {
	sk := &mldsa65.PrivateKey{}
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, fmt.Errorf("unmarshal signing key: %w", err)
	}
	sig := make([]byte, MLDSASignatureSize)
	if err := mldsa65.SignTo(sk, data, nil, false, sig); err != nil {
		return nil, fmt.Errorf("ml-dsa sign: %w", err)
	}
	return sig, nil
}

// VerifyQuantum verifies an ML-DSA-65 signature against the raw public key.
func VerifyQuantum(publicKey, data, sig []byte) error {
	pk := &mldsa65.PublicKey{}
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("unmarshal public key: %w", err)
	}
	if len(sig) != MLDSASignatureSize {
		return ErrInvalidSignatureSize
	}
	if !mldsa65.Verify(pk, data, nil, sig) {
		return ErrSignatureVerificationFailed
	}
	return nil
}

// EncryptAsymmetricQuantum seals plaintext for an ML-KEM-768 public
// key. The KEM ciphertext travels separately (in the envelope's
// pq_ciphertext field); the sealed payload is returned second.
func EncryptAsymmetricQuantum(theirPublic, plaintext []byte) (kemCiphertext, sealed []byte, err error) {
	ct, secret, err := Encapsulate(theirPublic)
	if err != nil {
		return nil, nil, err
	}
	sealed, err = seal(secret, firstContactContext, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return ct, sealed, nil
}

// DecryptAsymmetricQuantum opens a message sealed by
// EncryptAsymmetricQuantum.
func DecryptAsymmetricQuantum(ourPrivate, kemCiphertext, sealed []byte) ([]byte, error) {
	secret, err := Decapsulate(ourPrivate, kemCiphertext)
	if err != nil {
		return nil, err
	}
	return open(secret, firstContactContext, sealed)
}
