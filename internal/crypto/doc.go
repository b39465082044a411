// Package crypto implements the cryptographic provider consumed by the
// NanoRelay client: classical primitives (X25519, Ed25519,
// ChaCha20-Poly1305), post-quantum primitives (ML-KEM-768, ML-DSA-65),
// and the hybrid combination of both.
//
// The rest of the SDK treats this package as a black box behind the
// wire.Signer and wire.Verifier interfaces plus the symmetric and
// asymmetric sealing functions.
package crypto
