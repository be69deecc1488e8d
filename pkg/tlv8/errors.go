package tlv8

import "errors"

var (
	// ErrTruncated is returned when an item header or value runs past the
	// end of the input.
	ErrTruncated = errors.New("tlv8: truncated item")

	// ErrNoItem is returned when Type or Value is called before Next.
	ErrNoItem = errors.New("tlv8: no current item")
)
