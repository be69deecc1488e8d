package tlv8

import (
	"errors"
	"io"
)

// Item is one decoded TLV8 item with its fragments joined.
type Item struct {
	Type  Type
	Value []byte
}

// Container is an ordered list of decoded items.
type Container []Item

// Decode parses data into a Container.
func Decode(data []byte) (Container, error) {
	r := NewReader(data)
	var c Container
	for {
		err := r.Next()
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		if err != nil {
			return nil, err
		}
		c = append(c, Item{Type: r.typ, Value: r.value})
	}
}

// Get returns the value of the first item of type t.
func (c Container) Get(t Type) ([]byte, bool) {
	for _, it := range c {
		if it.Type == t {
			return it.Value, true
		}
	}
	return nil, false
}

// Has reports whether an item of type t is present.
func (c Container) Has(t Type) bool {
	_, ok := c.Get(t)
	return ok
}

// Byte returns the first item of type t if it is exactly one byte long.
func (c Container) Byte(t Type) (byte, bool) {
	v, ok := c.Get(t)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// Split breaks the container at separator items. Empty groups are dropped.
func (c Container) Split() []Container {
	var out []Container
	var cur Container
	for _, it := range c {
		if it.Type == TypeSeparator {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, it)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Encode re-encodes the container.
func (c Container) Encode() []byte {
	b := NewBuilder()
	for _, it := range c {
		b.Put(it.Type, it.Value)
	}
	return b.Bytes()
}
