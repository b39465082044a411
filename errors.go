package nanorelay

import (
	"errors"

	"github.com/nanorelay/client-go/internal/crypto"
	"github.com/nanorelay/client-go/internal/relay"
	"github.com/nanorelay/client-go/wire"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrClientClosed is returned when operations are attempted on a
	// closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrModeRejected is returned when a negotiated crypto mode does
	// not satisfy the configured minimum.
	ErrModeRejected = errors.New("crypto mode below configured minimum")

	// ErrUnknownUsername is returned when a username lookup finds no
	// claim.
	ErrUnknownUsername = errors.New("username not registered")

	// ErrInvalidRecipient is returned when a recipient key string
	// cannot be parsed.
	ErrInvalidRecipient = errors.New("invalid recipient public key")

	// ErrIncompatibleRecipient is returned when the recipient's key
	// material cannot satisfy the requested crypto mode.
	ErrIncompatibleRecipient = errors.New("recipient keys incompatible with crypto mode")
)

// Error values surfaced from the lower layers, re-exported so callers
// can match them without importing internal packages.
var (
	// ErrSignatureInvalid is returned when payload or claim signature
	// verification fails.
	ErrSignatureInvalid = wire.ErrSignatureInvalid

	// ErrDecode is returned on malformed wire data.
	ErrDecode = wire.ErrDecode

	// ErrDecryptionFailed is returned when a message cannot be
	// decrypted.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed

	// ErrConnectTimeout is returned when the relay does not answer
	// within the connection timeout.
	ErrConnectTimeout = relay.ErrConnectTimeout
)

// RelayError is an error response produced by the relay itself.
type RelayError = relay.Error
