package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
)

// MaxBodySize bounds pairing request and response bodies.
const MaxBodySize = 64 * 1024

// StatusConnectionAuthorizationRequired is returned by accessories for
// requests that need a verified connection.
const StatusConnectionAuthorizationRequired = 470

// HTTPConn carries HTTP/1.1 pairing exchanges over one persistent
// connection. After pair-verify the same connection is switched to the
// encrypted session with Encrypt; requests and responses keep their HTTP
// form inside the frames.
type HTTPConn struct {
	raw net.Conn

	mu     sync.Mutex
	conn   net.Conn
	br     *bufio.Reader
	host   string
	cipher *session.Cipher
}

// NewHTTPConn wraps conn. host is sent in the Host header of requests.
func NewHTTPConn(conn net.Conn, host string) *HTTPConn {
	return &HTTPConn{
		raw:  conn,
		conn: conn,
		br:   bufio.NewReader(conn),
		host: host,
	}
}

// Post sends body to path and returns the response body.
func (c *HTTPConn) Post(path string, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequest(http.MethodPost, "http://"+c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Host = c.host
	req.Header.Set("Content-Type", pairing.ContentType)

	if err := req.Write(c.conn); err != nil {
		return nil, fmt.Errorf("write %s request: %w", path, err)
	}

	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return data, nil
}

// ReadRequest reads the next request and returns its path and body.
func (c *HTTPConn) ReadRequest() (string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.ReadRequest(c.br)
	if err != nil {
		return "", nil, err
	}
	defer req.Body.Close()

	data, err := readBody(req.Body)
	if err != nil {
		return "", nil, err
	}
	return req.URL.Path, data, nil
}

// WriteResponse writes a response with a pairing body.
func (c *HTTPConn) WriteResponse(status int, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	resp.Header.Set("Content-Type", pairing.ContentType)
	return resp.Write(c.conn)
}

// Encrypt switches the connection to the session cipher. Every later
// request and response is framed and sealed.
func (c *HTTPConn) Encrypt(cipher *session.Cipher) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.br.Buffered() > 0 {
		return ErrBufferedPlaintext
	}
	sc := session.NewConn(c.conn, cipher)
	c.conn = sc
	c.br = bufio.NewReader(sc)
	c.cipher = cipher
	return nil
}

// Encrypted reports whether Encrypt has been called.
func (c *HTTPConn) Encrypted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cipher != nil
}

// Conn returns the current connection, the session.Conn once encrypted.
func (c *HTTPConn) Conn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// SetDeadline sets the deadline of the underlying connection. It may be
// called while a request is in flight.
func (c *HTTPConn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// Close closes the connection and wipes the session keys. It may be called
// while a request is in flight.
func (c *HTTPConn) Close() error {
	err := c.raw.Close()

	c.mu.Lock()
	if c.cipher != nil {
		c.cipher.Close()
	}
	c.mu.Unlock()
	return err
}

func readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}
