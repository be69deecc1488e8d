// Package tlv8 implements the TLV8 encoding used by HAP pairing messages.
//
// Each item is a one-byte type, a one-byte length and up to 255 bytes of
// value:
//
//	+------+--------+----------------+
//	| Type | Length | Value (0..255) |
//	+------+--------+----------------+
//
// Longer values are carried as consecutive fragments of the same type, each
// 255 bytes except the last. A zero-length separator item (type 0xFF)
// delimits repeated records.
package tlv8

import "fmt"

// MaxFragment is the largest value carried by a single item.
const MaxFragment = 255

// Type is a TLV8 item type.
type Type uint8

// TypeSeparator delimits records.
const TypeSeparator Type = 0xFF

// String implements fmt.Stringer.
func (t Type) String() string {
	if t == TypeSeparator {
		return "Separator"
	}
	return fmt.Sprintf("Type(0x%02x)", uint8(t))
}
