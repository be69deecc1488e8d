package pairing

import (
	"encoding/binary"

	"github.com/backkem/hap/pkg/tlv8"
)

// ParseResponse decodes a pairing response and checks it is message want.
//
// An Error item is returned as *AccessoryError before the State is looked
// at, since accessories may omit or reuse State on failure. A missing or
// different State is a protocol violation.
func ParseResponse(op string, data []byte, want byte) (tlv8.Container, error) {
	c, err := tlv8.Decode(data)
	if err != nil {
		return nil, NewError(KindProtocolViolation, op, "malformed TLV", err)
	}
	if err := AccessoryErrorFrom(c); err != nil {
		return nil, err
	}
	state, ok := c.Byte(TypeState)
	if !ok {
		return nil, Errorf(KindProtocolViolation, op, "response has no state")
	}
	if state != want {
		return nil, Errorf(KindProtocolViolation, op, "unexpected state M%d, want M%d", state, want)
	}
	return c, nil
}

// AccessoryErrorFrom returns the *AccessoryError carried by c, or nil.
func AccessoryErrorFrom(c tlv8.Container) error {
	v, ok := c.Get(TypeError)
	if !ok {
		return nil
	}
	code := ErrorCodeUnknown
	if len(v) > 0 {
		code = AccessoryErrorCode(v[0])
	}
	ae := &AccessoryError{Code: code}
	if d, ok := c.Get(TypeRetryDelay); ok && len(d) > 0 && len(d) <= 8 {
		var buf [8]byte
		copy(buf[:], d)
		ae.RetryDelay = int(binary.LittleEndian.Uint64(buf[:]))
	}
	return ae
}

// Require returns the value of item t, or a protocol violation naming the
// missing item.
func Require(op string, c tlv8.Container, t tlv8.Type, name string) ([]byte, error) {
	v, ok := c.Get(t)
	if !ok {
		return nil, Errorf(KindProtocolViolation, op, "response has no %s", name)
	}
	return v, nil
}

// RequireLen is Require with an exact length check.
func RequireLen(op string, c tlv8.Container, t tlv8.Type, name string, n int) ([]byte, error) {
	v, err := Require(op, c, t, name)
	if err != nil {
		return nil, err
	}
	if len(v) != n {
		return nil, Errorf(KindProtocolViolation, op, "%s is %d bytes, want %d", name, len(v), n)
	}
	return v, nil
}
