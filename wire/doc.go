// Package wire defines the NanoRelay wire format: message envelopes,
// the signed inner payload, username claims, and the crypto mode
// enumeration carried by mode-tagged envelopes.
//
// All binary fields are base64-encoded in the textual wire form, and
// every type round-trips through JSON without loss. Signing and
// verification are delegated to the Signer and Verifier interfaces so
// the codec never handles key material itself.
package wire
