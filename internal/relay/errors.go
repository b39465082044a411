package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectTimeout reports that the relay did not accept a
	// connection within the configured timeout.
	ErrConnectTimeout = errors.New("relay connection timed out")

	// ErrUnexpectedResponse reports a well-formed response whose type
	// does not match the request.
	ErrUnexpectedResponse = errors.New("unexpected relay response")
)

// Error is an error response returned by the relay itself.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return "relay: " + e.Message
	}
	return "relay error"
}

func unexpectedResponse(got string) error {
	return fmt.Errorf("%w: %q", ErrUnexpectedResponse, got)
}
