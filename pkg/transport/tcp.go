package transport

import (
	"net"
	"sync"

	"github.com/pion/logging"
)

// ConnHandler serves one accepted connection. The connection is closed
// when the handler returns.
type ConnHandler func(conn net.Conn)

// TCP accepts connections on a listener and serves each one in its own
// goroutine.
type TCP struct {
	listener net.Listener
	handler  ConnHandler
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	// Connection tracking
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	mu      sync.RWMutex
	started bool
	closed  bool
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., "127.0.0.1:0").
	// Ignored if Listener is provided.
	ListenAddr string

	// Handler is called for each accepted connection.
	// Required.
	Handler ConnHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewTCP creates a new TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener: config.Listener,
		handler:  config.Handler,
		closeCh:  make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("listening on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP transport")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for conn := range t.conns {
		conn.Close()
	}
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (t *TCP) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// acceptLoop accepts incoming connections.
func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if t.log != nil {
					t.log.Warnf("accept failed: %v", err)
				}
				return
			}
		}

		t.AddConnection(conn)
	}
}

// AddConnection serves an existing connection as if it had been accepted.
// This is useful for testing with net.Pipe().
func (t *TCP) AddConnection(conn net.Conn) {
	// Held across registration so Stop cannot miss the connection.
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		conn.Close()
		return
	}

	t.connsMu.Lock()
	t.conns[conn] = struct{}{}
	t.connsMu.Unlock()

	t.wg.Add(1)
	go t.handleConn(conn)
}

// handleConn runs the handler for a single connection.
func (t *TCP) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		conn.Close()
		t.connsMu.Lock()
		delete(t.conns, conn)
		t.connsMu.Unlock()
	}()

	if t.log != nil {
		t.log.Debugf("connection from %s", conn.RemoteAddr())
	}
	t.handler(conn)
}
