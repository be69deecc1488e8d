// Package controller pairs with and connects to HAP accessories over
// HTTP/1.1 on TCP.
//
// Pair runs pair-setup once and stores the result. Connect runs pair-verify
// on a new connection and switches it to the encrypted session, over which
// pairing administration requests are sent.
//
//	ctrl, err := controller.New(controller.Config{Storage: store.NewMemoryStorage()})
//	p, err := ctrl.Pair(ctx, "192.168.1.20:51826", []byte("3939"))
//	conn, err := ctrl.Connect(ctx, p.Accessory.ID, "")
//	peers, err := conn.ListPairings(ctx)
package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/pairing/setup"
	"github.com/backkem/hap/pkg/pairing/verify"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/store"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
)

// DefaultTimeout bounds each request/response exchange if Config.Timeout
// is zero.
const DefaultTimeout = 30 * time.Second

// ErrNoAddress is returned when no address is given and none is stored.
var ErrNoAddress = errors.New("controller: no accessory address")

// Config configures a Controller.
type Config struct {
	// Storage holds the device id and pairings. Required.
	Storage store.Storage

	// Timeout bounds each exchange. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Group is the SRP group for pair-setup. Defaults to srp.Group3072.
	Group *srp.Group

	// Method is the pair-setup method. Defaults to pairing.MethodPairSetup.
	Method pairing.Method

	// DialContext opens connections. Defaults to a net.Dialer.
	// For testing: inject net.Pipe or a loopback listener.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Controller pairs with and connects to accessories.
type Controller struct {
	config   Config
	deviceID string
	log      logging.LeveledLogger
}

// New creates a controller, creating its device id on first use.
func New(config Config) (*Controller, error) {
	if config.Storage == nil {
		return nil, pairing.Errorf(pairing.KindInvalidInput, "controller", "storage is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.DialContext == nil {
		d := &net.Dialer{}
		config.DialContext = d.DialContext
	}

	deviceID, err := store.DeviceID(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}

	c := &Controller{config: config, deviceID: deviceID}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("controller")
	}
	return c, nil
}

// DeviceID returns the controller identifier.
func (c *Controller) DeviceID() string {
	return c.deviceID
}

// Pairings returns the stored pairings.
func (c *Controller) Pairings() ([]*store.Pairing, error) {
	return c.config.Storage.LoadPairings()
}

// Pair runs pair-setup with the accessory at addr and stores the pairing.
func (c *Controller) Pair(ctx context.Context, addr string, pin []byte) (*store.Pairing, error) {
	s, err := setup.NewSession(setup.Config{
		PIN:           pin,
		DeviceID:      c.deviceID,
		Method:        c.config.Method,
		Group:         c.config.Group,
		LoggerFactory: c.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	hc, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer hc.Close()

	msg, err := s.Start()
	if err != nil {
		return nil, err
	}
	for msg != nil {
		resp, err := c.post(ctx, hc, pairing.PathPairSetup, msg)
		if err != nil {
			return nil, err
		}
		if msg, err = s.HandleMessage(resp); err != nil {
			return nil, err
		}
	}

	result, err := s.Result()
	if err != nil {
		return nil, err
	}
	p := &store.Pairing{
		Accessory:        result.Accessory,
		AuthorisationKey: result.AuthorisationKey,
		Address:          addr,
	}
	if err := c.config.Storage.SavePairing(p); err != nil {
		return nil, fmt.Errorf("failed to store pairing: %w", err)
	}

	if c.log != nil {
		c.log.Infof("paired with %s at %s", p.Accessory.ID, addr)
	}
	return p, nil
}

// Connect runs pair-verify with a paired accessory and returns the
// encrypted connection. An empty addr uses the stored address.
func (c *Controller) Connect(ctx context.Context, accessoryID, addr string) (*Conn, error) {
	p, err := c.config.Storage.LoadPairing(accessoryID)
	if err != nil {
		return nil, fmt.Errorf("accessory %s: %w", accessoryID, err)
	}
	if addr == "" {
		addr = p.Address
	}
	if addr == "" {
		return nil, ErrNoAddress
	}

	s, err := verify.NewSession(verify.Config{
		AuthorisationKey: p.AuthorisationKey,
		DeviceID:         c.deviceID,
		Accessory:        p.Accessory,
		LoggerFactory:    c.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	hc, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := c.verify(ctx, hc, s); err != nil {
		hc.Close()
		return nil, err
	}

	if p.Address != addr {
		p.Address = addr
		if err := c.config.Storage.SavePairing(p); err != nil && c.log != nil {
			c.log.Warnf("failed to update address of %s: %v", p.Accessory.ID, err)
		}
	}
	if c.log != nil {
		c.log.Infof("connected to %s at %s", p.Accessory.ID, addr)
	}
	return &Conn{ctrl: c, hc: hc, accessory: p.Accessory}, nil
}

func (c *Controller) verify(ctx context.Context, hc *transport.HTTPConn, s *verify.Session) error {
	msg, err := s.Start()
	if err != nil {
		return err
	}
	for msg != nil {
		resp, err := c.post(ctx, hc, pairing.PathPairVerify, msg)
		if err != nil {
			return err
		}
		if msg, err = s.HandleMessage(resp); err != nil {
			return err
		}
	}

	secret, err := s.SharedSecret()
	if err != nil {
		return err
	}
	cipher, err := session.NewCipher(secret[:])
	for i := range secret {
		secret[i] = 0
	}
	if err != nil {
		return err
	}
	return hc.Encrypt(cipher)
}

// Unpair removes this controller from the accessory and deletes the
// stored pairing.
func (c *Controller) Unpair(ctx context.Context, accessoryID, addr string) error {
	conn, err := c.Connect(ctx, accessoryID, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.RemovePairing(ctx, c.deviceID); err != nil {
		return err
	}
	return c.config.Storage.DeletePairing(accessoryID)
}

func (c *Controller) dial(ctx context.Context, addr string) (*transport.HTTPConn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conn, err := c.config.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if c.log != nil {
		c.log.Debugf("connected to %s", addr)
	}
	return transport.NewHTTPConn(conn, addr), nil
}

// post runs one exchange bounded by ctx and the configured timeout.
func (c *Controller) post(ctx context.Context, hc *transport.HTTPConn, path string, body []byte) ([]byte, error) {
	deadline := time.Now().Add(c.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := hc.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		// Unblock the exchange in flight.
		_ = hc.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	resp, err := hc.Post(path, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The connection deadline can fire just before the context's own timer.
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	return resp, nil
}
