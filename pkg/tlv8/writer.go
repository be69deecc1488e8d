package tlv8

import (
	"bytes"
	"io"
)

// Writer encodes TLV8 items to an io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter creates a new TLV8 Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Put writes value with type t. Values longer than 255 bytes are split into
// consecutive fragments of the same type; every fragment but the last is
// exactly 255 bytes. An empty value is written as a single zero-length item.
func (w *Writer) Put(t Type, value []byte) error {
	for {
		n := len(value)
		if n > MaxFragment {
			n = MaxFragment
		}
		if _, err := w.w.Write([]byte{byte(t), byte(n)}); err != nil {
			return err
		}
		if n > 0 {
			if _, err := w.w.Write(value[:n]); err != nil {
				return err
			}
		}
		value = value[n:]
		if len(value) == 0 {
			return nil
		}
	}
}

// PutByte writes a one-byte value with type t.
func (w *Writer) PutByte(t Type, v byte) error {
	return w.Put(t, []byte{v})
}

// PutString writes a UTF-8 string value with type t.
func (w *Writer) PutString(t Type, s string) error {
	return w.Put(t, []byte(s))
}

// PutSeparator writes an empty separator item. Separators delimit
// consecutive records of the same shape, such as entries in a list.
func (w *Writer) PutSeparator() error {
	return w.Put(TypeSeparator, nil)
}

// Builder accumulates TLV8 items in memory.
type Builder struct {
	buf bytes.Buffer
	w   *Writer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	b.w = NewWriter(&b.buf)
	return b
}

// Put appends an item. See Writer.Put.
func (b *Builder) Put(t Type, value []byte) *Builder {
	_ = b.w.Put(t, value) // bytes.Buffer writes do not fail
	return b
}

// PutByte appends a one-byte item.
func (b *Builder) PutByte(t Type, v byte) *Builder {
	return b.Put(t, []byte{v})
}

// PutString appends a string item.
func (b *Builder) PutString(t Type, s string) *Builder {
	return b.Put(t, []byte(s))
}

// PutSeparator appends a separator.
func (b *Builder) PutSeparator() *Builder {
	return b.Put(TypeSeparator, nil)
}

// Bytes returns the encoded items.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the encoded length in bytes.
func (b *Builder) Len() int {
	return b.buf.Len()
}
