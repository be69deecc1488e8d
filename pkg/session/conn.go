package session

import (
	"net"
	"sync"
)

// Conn is a net.Conn that seals everything written and opens everything
// read with a Cipher. Each Write is framed independently; Read returns
// plaintext from at most one frame at a time.
type Conn struct {
	net.Conn
	cipher *Cipher

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

// NewConn wraps conn. The cipher is owned by the returned Conn and is
// closed with it.
func NewConn(conn net.Conn, cipher *Cipher) *Conn {
	return &Conn{Conn: conn, cipher: cipher}
}

// Cipher returns the underlying cipher.
func (c *Conn) Cipher() *Cipher {
	return c.cipher
}

// Read implements net.Conn.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	for len(c.pending) == 0 {
		block, err := c.cipher.ReadBlock(c.Conn)
		if err != nil {
			return 0, err
		}
		c.pending = block
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write implements net.Conn. The returned count is in plaintext bytes.
func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frames, err := c.cipher.Encrypt(p)
	if err != nil {
		return 0, err
	}
	if _, err := c.Conn.Write(frames); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying connection and wipes the keys.
func (c *Conn) Close() error {
	c.cipher.Close()
	return c.Conn.Close()
}
