package crypto

import (
	"crypto/ed25519"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

const (
	// X25519KeySize is the size of X25519 public keys and private
	// scalars in bytes.
	X25519KeySize = 32

	// SharedSecretSize is the size of a conversation shared secret.
	SharedSecretSize = 32

	// Ed25519SignatureSize is the size of an Ed25519 signature.
	Ed25519SignatureSize = ed25519.SignatureSize

	// MLKEMPublicKeySize is the size of an ML-KEM-768 public key.
	MLKEMPublicKeySize = mlkem768.PublicKeySize
	// MLKEMSecretKeySize is the size of an ML-KEM-768 secret key.
	MLKEMSecretKeySize = mlkem768.PrivateKeySize
	// MLKEMCiphertextSize is the size of an ML-KEM-768 ciphertext.
	MLKEMCiphertextSize = mlkem768.CiphertextSize
	// MLKEMSharedKeySize is the size of the ML-KEM-768 shared secret.
	MLKEMSharedKeySize = mlkem768.SharedKeySize

	// MLDSAPublicKeySize is the size of an ML-DSA-65 public key.
	MLDSAPublicKeySize = mldsa65.PublicKeySize
	// MLDSASignatureSize is the size of an ML-DSA-65 signature.
	MLDSASignatureSize = mldsa65.SignatureSize

	// HybridSignatureSize is the size of a hybrid signature: the
	// Ed25519 signature followed by the ML-DSA-65 signature.
	HybridSignatureSize = Ed25519SignatureSize + MLDSASignatureSize
)

const (
	// firstContactContext is the HKDF domain-separation string for
	// first-contact (asymmetric) message keys.
	firstContactContext = "nanorelay:first-contact:v1"

	// conversationContext is the HKDF domain-separation string for
	// established-conversation (symmetric) message keys.
	conversationContext = "nanorelay:conversation:v1"

	// hybridContext is the HKDF domain-separation string combining the
	// classical and post-quantum shared secrets in hybrid mode.
	hybridContext = "nanorelay:hybrid-kem:v1"
)

// Public key string prefixes. The prefix identifies the crypto mode of
// the key material that follows.
const (
	ClassicalKeyPrefix = "pubkey:"
	QuantumKeyPrefix   = "pq-pubkey:"
	HybridKeyPrefix    = "hybrid-pubkey:"
)
