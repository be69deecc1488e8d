package pairtest

import (
	"net"
	"net/http"
	"sync"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
)

// Server serves an Accessory over HTTP/1.1 on TCP. A connection switches
// to the encrypted session as soon as pair-verify completes on it.
type Server struct {
	acc *Accessory
	tcp *transport.TCP
	log logging.LeveledLogger

	mu       sync.Mutex
	handlers []*Handler
}

// NewServer serves acc on listener. A nil listener listens on a loopback
// ephemeral port.
func NewServer(acc *Accessory, listener net.Listener, loggerFactory logging.LoggerFactory) (*Server, error) {
	s := &Server{acc: acc}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("accessory")
	}

	tcp, err := transport.NewTCP(transport.TCPConfig{
		Listener:      listener,
		ListenAddr:    "127.0.0.1:0",
		Handler:       s.serveConn,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}
	if err := tcp.Start(); err != nil {
		return nil, err
	}
	s.tcp = tcp
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.tcp.LocalAddr()
}

// ServeConn serves an existing connection, e.g. one end of net.Pipe.
func (s *Server) ServeConn(conn net.Conn) {
	s.tcp.AddConnection(conn)
}

// Handlers returns the per-connection handlers created so far.
func (s *Server) Handlers() []*Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handler(nil), s.handlers...)
}

// Close stops the listener and closes every connection.
func (s *Server) Close() error {
	return s.tcp.Stop()
}

func (s *Server) serveConn(conn net.Conn) {
	hc := transport.NewHTTPConn(conn, "")
	defer hc.Close()

	h := s.acc.NewHandler()
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()

	for {
		path, body, err := hc.ReadRequest()
		if err != nil {
			return
		}

		status := http.StatusOK
		var resp []byte
		switch path {
		case pairing.PathPairSetup:
			resp, err = h.HandlePairSetup(body)
		case pairing.PathPairVerify:
			resp, err = h.HandlePairVerify(body)
		case pairing.PathPairings:
			if !hc.Encrypted() {
				status = transport.StatusConnectionAuthorizationRequired
				break
			}
			resp, err = h.HandlePairings(body)
		default:
			status = http.StatusNotFound
		}
		if err != nil {
			if s.log != nil {
				s.log.Warnf("%s: %v", path, err)
			}
			status, resp = http.StatusBadRequest, nil
		}

		if err := hc.WriteResponse(status, resp); err != nil {
			return
		}

		if path == pairing.PathPairVerify && !hc.Encrypted() {
			shared, ok := h.SharedSecret()
			if !ok {
				continue
			}
			cipher, err := session.NewAccessoryCipher(shared)
			if err != nil {
				return
			}
			if err := hc.Encrypt(cipher); err != nil {
				return
			}
			if s.log != nil {
				controller, _ := h.VerifiedController()
				s.log.Debugf("connection from %s verified as %s", conn.RemoteAddr(), controller)
			}
		}
	}
}
