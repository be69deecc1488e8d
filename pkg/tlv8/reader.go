package tlv8

import "io"

// Reader decodes TLV8 items from a byte slice, joining fragmented values.
type Reader struct {
	data []byte
	off  int

	hasItem bool
	typ     Type
	value   []byte
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Next advances to the next item.
// Returns io.EOF when the input is exhausted.
func (r *Reader) Next() error {
	r.hasItem = false
	if r.off == len(r.data) {
		return io.EOF
	}

	t, chunk, err := r.readRaw()
	if err != nil {
		return err
	}
	value := append([]byte(nil), chunk...)

	// A full fragment continues into the next item if it has the same type.
	for len(chunk) == MaxFragment && r.off+1 < len(r.data) && Type(r.data[r.off]) == t {
		if _, chunk, err = r.readRaw(); err != nil {
			return err
		}
		value = append(value, chunk...)
	}

	r.typ = t
	r.value = value
	r.hasItem = true
	return nil
}

func (r *Reader) readRaw() (Type, []byte, error) {
	if len(r.data)-r.off < 2 {
		return 0, nil, ErrTruncated
	}
	t := Type(r.data[r.off])
	n := int(r.data[r.off+1])
	start := r.off + 2
	if len(r.data)-start < n {
		return 0, nil, ErrTruncated
	}
	r.off = start + n
	return t, r.data[start:r.off], nil
}

// Type returns the type of the current item.
func (r *Reader) Type() (Type, error) {
	if !r.hasItem {
		return 0, ErrNoItem
	}
	return r.typ, nil
}

// Value returns the joined value of the current item.
func (r *Reader) Value() ([]byte, error) {
	if !r.hasItem {
		return nil, ErrNoItem
	}
	return r.value, nil
}
