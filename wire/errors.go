package wire

import "errors"

var (
	// ErrDecode is returned when wire data cannot be parsed.
	ErrDecode = errors.New("malformed wire data")

	// ErrSignatureInvalid is returned when a payload or claim signature
	// does not verify.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrNotSigned is returned when verifying a payload or claim whose
	// signature field is empty.
	ErrNotSigned = errors.New("payload is not signed")
)
