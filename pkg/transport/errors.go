package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler is returned when no connection handler is configured.
	ErrNoHandler = errors.New("transport: no connection handler configured")

	// ErrAlreadyStarted is returned when Start is called on an already running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrBufferedPlaintext is returned when a connection is switched to
	// encryption while unread plaintext is still buffered.
	ErrBufferedPlaintext = errors.New("transport: unread data before switching to encryption")

	// ErrBodyTooLarge is returned when a request or response body exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("transport: body too large")
)

// StatusError is returned when a response has a status other than 200 or 204.
type StatusError struct {
	Code   int
	Status string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected HTTP status %s", e.Status)
}
