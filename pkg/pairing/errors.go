package pairing

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind classifies a pairing failure.
type Kind int

const (
	// KindInvalidInput: a caller-supplied argument violated a precondition.
	KindInvalidInput Kind = iota + 1
	// KindAllocation: a buffer could not be produced.
	KindAllocation
	// KindCryptoPrimitive: an underlying primitive reported failure.
	KindCryptoPrimitive
	// KindProtocolViolation: a peer message was missing an item or out of order.
	KindProtocolViolation
	// KindAuthentication: a proof, signature or tag did not verify.
	KindAuthentication
	// KindCorruptFraming: a transport frame was malformed.
	KindCorruptFraming
	// KindAccessory: the accessory returned an Error item.
	KindAccessory
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindAllocation:
		return "AllocationFailure"
	case KindCryptoPrimitive:
		return "CryptoPrimitiveFailure"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindAuthentication:
		return "AuthenticationFailure"
	case KindCorruptFraming:
		return "CorruptFraming"
	case KindAccessory:
		return "AccessoryError"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per kind. Every error returned by this module's
// pairing and session packages matches exactly one of these with errors.Is.
var (
	ErrInvalidInput          = errors.New("pairing: invalid input")
	ErrAllocation            = errors.New("pairing: allocation failure")
	ErrCryptoPrimitive       = errors.New("pairing: crypto primitive failure")
	ErrProtocolViolation     = errors.New("pairing: protocol violation")
	ErrAuthenticationFailure = errors.New("pairing: authentication failure")
	ErrCorruptFraming        = errors.New("pairing: corrupt framing")
	ErrAccessory             = errors.New("pairing: accessory error")

	// ErrInvalidState is returned when a session method is called out of
	// order or after the session has failed. It is reported with
	// KindProtocolViolation.
	ErrInvalidState = errors.New("pairing: invalid session state")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindAllocation:
		return ErrAllocation
	case KindCryptoPrimitive:
		return ErrCryptoPrimitive
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindAuthentication:
		return ErrAuthenticationFailure
	case KindCorruptFraming:
		return ErrCorruptFraming
	case KindAccessory:
		return ErrAccessory
	default:
		return nil
	}
}

// Error is a classified pairing failure.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "pair-setup M4".
	Op string
	// Msg is a human-readable description.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

// NewError creates a classified error.
func NewError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *Error) Error() string {
	s := "pairing"
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of err, or 0 if err is not a pairing error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ae *AccessoryError
	if errors.As(err, &ae) {
		return KindAccessory
	}
	return 0
}

// AccessoryErrorCode is the value of an Error item.
type AccessoryErrorCode byte

const (
	ErrorCodeUnknown        AccessoryErrorCode = 0x01
	ErrorCodeAuthentication AccessoryErrorCode = 0x02
	ErrorCodeBackoff        AccessoryErrorCode = 0x03
	ErrorCodeMaxPeers       AccessoryErrorCode = 0x04
	ErrorCodeMaxTries       AccessoryErrorCode = 0x05
	ErrorCodeUnavailable    AccessoryErrorCode = 0x06
	ErrorCodeBusy           AccessoryErrorCode = 0x07
)

// String returns the string representation of the code.
func (c AccessoryErrorCode) String() string {
	switch c {
	case ErrorCodeAuthentication:
		return "Authentication"
	case ErrorCodeBackoff:
		return "Backoff"
	case ErrorCodeMaxPeers:
		return "MaxPeers"
	case ErrorCodeMaxTries:
		return "MaxTries"
	case ErrorCodeUnavailable:
		return "Unavailable"
	case ErrorCodeBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Description returns the message reported to the user for the code.
func (c AccessoryErrorCode) Description() string {
	switch c {
	case ErrorCodeAuthentication:
		return "setup code or signature verification failed"
	case ErrorCodeBackoff:
		return "client must look at the retry delay and try later"
	case ErrorCodeMaxPeers:
		return "server cannot accept any more pairings"
	case ErrorCodeMaxTries:
		return "server reached its maximum number of authentication attempts"
	case ErrorCodeUnavailable:
		return "server pairing method is unavailable"
	case ErrorCodeBusy:
		return "server is busy and cannot accept a pairing request at this time"
	default:
		return "generic error to handle unexpected errors"
	}
}

// AccessoryError is reported when a response carries an Error item. It is
// terminal for the current session.
type AccessoryError struct {
	Code AccessoryErrorCode
	// RetryDelay is the delay in seconds the accessory asked for, or 0.
	RetryDelay int
}

// Error implements error.
func (e *AccessoryError) Error() string {
	s := "pairing: accessory error " + strconv.Itoa(int(e.Code)) + " (" + e.Code.String() + "): " + e.Code.Description()
	if e.RetryDelay > 0 {
		s += ", retry in " + strconv.Itoa(e.RetryDelay) + "s"
	}
	return s
}

// Unwrap returns ErrAccessory.
func (e *AccessoryError) Unwrap() error {
	return ErrAccessory
}
