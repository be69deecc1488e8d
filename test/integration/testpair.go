// Package integration provides test infrastructure for end-to-end pairing
// tests against a simulated accessory on loopback TCP.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing/pairtest"
	"github.com/backkem/hap/pkg/store"
	"github.com/pion/logging"
)

// TestPair holds a simulated accessory and a controller that has completed
// pair-setup with it.
//
// Example usage:
//
//	pair := NewTestPair(t)
//	conn := pair.Connect()
//	peers, err := conn.ListPairings(pair.Context())
type TestPair struct {
	// Accessory is the simulated accessory.
	Accessory *pairtest.Accessory

	// Server serves Accessory on loopback.
	Server *pairtest.Server

	// Controller is paired with Accessory.
	Controller *controller.Controller

	// Pairing is the stored result of pair-setup.
	Pairing *store.Pairing

	// StorePath is the controller's pairing file.
	StorePath string

	config TestPairConfig
	t      *testing.T
	ctx    context.Context
}

// TestPairConfig configures the test pair creation.
type TestPairConfig struct {
	// Accessory overrides the simulated accessory options.
	Accessory pairtest.Options

	// Group is the SRP group used by both sides. Defaults to srp.Group2048
	// to keep tests fast.
	Group *srp.Group

	// Timeout bounds the whole test. Defaults to 30 seconds.
	Timeout time.Duration

	// LoggerFactory for logging. If nil, uses DefaultLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// DefaultTestPairConfig returns default configuration for test pairs.
func DefaultTestPairConfig() TestPairConfig {
	return TestPairConfig{
		Group:   srp.Group2048,
		Timeout: 30 * time.Second,
	}
}

// NewTestPair creates an accessory and a paired controller.
func NewTestPair(t *testing.T) *TestPair {
	return NewTestPairWithConfig(t, DefaultTestPairConfig())
}

// NewTestPairWithConfig creates a test pair with custom configuration.
func NewTestPairWithConfig(t *testing.T, config TestPairConfig) *TestPair {
	t.Helper()

	if config.Group == nil {
		config.Group = srp.Group2048
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	config.Accessory.Group = config.Group

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	t.Cleanup(cancel)

	acc, err := pairtest.NewAccessory(config.Accessory)
	if err != nil {
		t.Fatalf("Failed to create accessory: %v", err)
	}
	server, err := pairtest.NewServer(acc, nil, config.LoggerFactory)
	if err != nil {
		t.Fatalf("Failed to start accessory: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	p := &TestPair{
		Accessory: acc,
		Server:    server,
		StorePath: filepath.Join(t.TempDir(), "pairings.yaml"),
		config:    config,
		t:         t,
		ctx:       ctx,
	}
	p.Controller = p.NewController()

	pin := config.Accessory.PIN
	if pin == "" {
		pin = pairtest.DefaultPIN
	}
	p.Pairing, err = p.Controller.Pair(ctx, server.Addr().String(), []byte(pin))
	if err != nil {
		t.Fatalf("Pair-setup failed: %v", err)
	}
	return p
}

// NewController opens the pair's store again and returns a fresh
// controller, as a restarted process would.
func (p *TestPair) NewController() *controller.Controller {
	p.t.Helper()

	fs, err := store.OpenFile(p.StorePath)
	if err != nil {
		p.t.Fatalf("Failed to open store: %v", err)
	}
	ctrl, err := controller.New(controller.Config{
		Storage:       fs,
		Group:         p.config.Group,
		Timeout:       p.config.Timeout,
		LoggerFactory: p.config.LoggerFactory,
	})
	if err != nil {
		p.t.Fatalf("Failed to create controller: %v", err)
	}
	return ctrl
}

// Context returns the test context.
func (p *TestPair) Context() context.Context {
	return p.ctx
}

// Addr returns the accessory address.
func (p *TestPair) Addr() string {
	return p.Server.Addr().String()
}

// Connect runs pair-verify and returns the encrypted connection, closed at
// the end of the test.
func (p *TestPair) Connect() *controller.Conn {
	p.t.Helper()

	conn, err := p.Controller.Connect(p.ctx, p.Pairing.Accessory.ID, "")
	if err != nil {
		p.t.Fatalf("Pair-verify failed: %v", err)
	}
	p.t.Cleanup(func() { conn.Close() })
	return conn
}
