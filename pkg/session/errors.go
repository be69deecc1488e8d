package session

import "errors"

var (
	// ErrClosed is returned when a cipher or connection is used after Close.
	ErrClosed = errors.New("session: closed")

	// ErrCounterExhausted is returned when the encrypt counter would wrap.
	// The connection must be re-established with a new pair-verify.
	ErrCounterExhausted = errors.New("session: message counter exhausted")
)
