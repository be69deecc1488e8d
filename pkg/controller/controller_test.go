package controller

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/pairing/pairtest"
	"github.com/backkem/hap/pkg/store"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

type testEnv struct {
	acc    *pairtest.Accessory
	server *pairtest.Server
	ctrl   *Controller
	store  *store.MemoryStorage
}

func newTestEnv(t *testing.T, opts pairtest.Options) *testEnv {
	t.Helper()
	opts.Group = srp.Group2048

	acc, err := pairtest.NewAccessory(opts)
	if err != nil {
		t.Fatalf("NewAccessory failed: %v", err)
	}
	server, err := pairtest.NewServer(acc, nil, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	st := store.NewMemoryStorage()
	ctrl, err := New(Config{
		Storage:       st,
		Group:         srp.Group2048,
		Timeout:       5 * time.Second,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testEnv{acc: acc, server: server, ctrl: ctrl, store: st}
}

func (e *testEnv) addr() string {
	return e.server.Addr().String()
}

func TestPairAndConnect(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	env := newTestEnv(t, pairtest.Options{})
	ctx := context.Background()

	p, err := env.ctrl.Pair(ctx, env.addr(), []byte(pairtest.DefaultPIN))
	if err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if p.Accessory.ID != pairtest.DefaultID {
		t.Errorf("accessory id = %q, want %q", p.Accessory.ID, pairtest.DefaultID)
	}
	if !bytes.Equal(p.Accessory.PublicKey, env.acc.Peer().PublicKey) {
		t.Error("stored accessory key mismatch")
	}

	stored, err := env.store.LoadPairing(pairtest.DefaultID)
	if err != nil {
		t.Fatalf("LoadPairing failed: %v", err)
	}
	if stored.Address != env.addr() {
		t.Errorf("stored address = %q, want %q", stored.Address, env.addr())
	}

	conn, err := env.ctrl.Connect(ctx, pairtest.DefaultID, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	peers, err := conn.ListPairings(ctx)
	if err != nil {
		t.Fatalf("ListPairings failed: %v", err)
	}
	if len(peers) != 1 || peers[0].ID != env.ctrl.DeviceID() || peers[0].Permissions != pairing.PermissionAdmin {
		t.Errorf("ListPairings = %+v", peers)
	}

	// The accessory side derived the same secret and switched to the cipher.
	var verified bool
	for _, h := range env.server.Handlers() {
		if id, ok := h.VerifiedController(); ok && id == env.ctrl.DeviceID() {
			verified = true
		}
	}
	if !verified {
		t.Error("accessory has no verified connection")
	}
}

func TestPairingAdministration(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	env := newTestEnv(t, pairtest.Options{})
	ctx := context.Background()

	if _, err := env.ctrl.Pair(ctx, env.addr(), []byte(pairtest.DefaultPIN)); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	conn, err := env.ctrl.Connect(ctx, pairtest.DefaultID, "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	guest, err := crypto.Ed25519GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("Ed25519GenerateKeyPair failed: %v", err)
	}
	peer := pairing.Peer{ID: "FEDCBA9876543210", PublicKey: guest.PublicKey(), Permissions: pairing.PermissionUser}

	if err := conn.AddPairing(ctx, peer); err != nil {
		t.Fatalf("AddPairing failed: %v", err)
	}
	peers, err := conn.ListPairings(ctx)
	if err != nil {
		t.Fatalf("ListPairings failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("ListPairings returned %d peers, want 2", len(peers))
	}

	if err := conn.RemovePairing(ctx, peer.ID); err != nil {
		t.Fatalf("RemovePairing failed: %v", err)
	}
	if _, ok := env.acc.Controller(peer.ID); ok {
		t.Error("peer still registered after RemovePairing")
	}

	if err := conn.AddPairing(ctx, pairing.Peer{ID: "x"}); !errors.Is(err, pairing.ErrInvalidInput) {
		t.Errorf("AddPairing invalid peer = %v, want invalid input", err)
	}
}

func TestUnpair(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	env := newTestEnv(t, pairtest.Options{})
	ctx := context.Background()

	if _, err := env.ctrl.Pair(ctx, env.addr(), []byte(pairtest.DefaultPIN)); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if err := env.ctrl.Unpair(ctx, pairtest.DefaultID, ""); err != nil {
		t.Fatalf("Unpair failed: %v", err)
	}
	if _, ok := env.acc.Controller(env.ctrl.DeviceID()); ok {
		t.Error("controller still registered on the accessory")
	}
	if _, err := env.store.LoadPairing(pairtest.DefaultID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadPairing after Unpair = %v, want ErrNotFound", err)
	}
	if _, err := env.ctrl.Connect(ctx, pairtest.DefaultID, env.addr()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Connect after Unpair = %v, want ErrNotFound", err)
	}
}

func TestPairWrongPIN(t *testing.T) {
	env := newTestEnv(t, pairtest.Options{})

	_, err := env.ctrl.Pair(context.Background(), env.addr(), []byte("1111"))
	var ae *pairing.AccessoryError
	if !errors.As(err, &ae) || ae.Code != pairing.ErrorCodeAuthentication {
		t.Fatalf("Pair error = %v, want accessory authentication error", err)
	}
	if pairings, _ := env.ctrl.Pairings(); len(pairings) != 0 {
		t.Errorf("failed pairing was stored: %+v", pairings)
	}
}

func TestConnectRejectsImpostor(t *testing.T) {
	env := newTestEnv(t, pairtest.Options{})
	ctx := context.Background()

	if _, err := env.ctrl.Pair(ctx, env.addr(), []byte(pairtest.DefaultPIN)); err != nil {
		t.Fatalf("Pair failed: %v", err)
	}

	// Another accessory with the same id but a different identity key.
	impostor := newTestEnv(t, pairtest.Options{})

	_, err := env.ctrl.Connect(ctx, pairtest.DefaultID, impostor.addr())
	if !errors.Is(err, pairing.ErrAuthenticationFailure) {
		t.Errorf("Connect to impostor = %v, want authentication failure", err)
	}
}

func TestConnectNoAddress(t *testing.T) {
	env := newTestEnv(t, pairtest.Options{})
	ctx := context.Background()

	p, err := env.ctrl.Pair(ctx, env.addr(), []byte(pairtest.DefaultPIN))
	if err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	p.Address = ""
	if err := env.store.SavePairing(p); err != nil {
		t.Fatalf("SavePairing failed: %v", err)
	}
	if _, err := env.ctrl.Connect(ctx, pairtest.DefaultID, ""); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Connect = %v, want ErrNoAddress", err)
	}
}

func TestPairingsRequireVerifiedConnection(t *testing.T) {
	env := newTestEnv(t, pairtest.Options{})

	conn, err := net.Dial("tcp", env.addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	hc := transport.NewHTTPConn(conn, env.addr())
	defer hc.Close()

	_, err = hc.Post(pairing.PathPairings, pairing.ListPairingsRequest())
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Code != transport.StatusConnectionAuthorizationRequired {
		t.Errorf("Post = %v, want status 470", err)
	}
}

func TestPairContextCancelled(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	// An accessory that accepts but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctrl, err := New(Config{Storage: store.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = ctrl.Pair(ctx, ln.Addr().String(), []byte(pairtest.DefaultPIN))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pair = %v, want context.DeadlineExceeded", err)
	}

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(time.Second):
	}
}

func TestNewRequiresStorage(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, pairing.ErrInvalidInput) {
		t.Errorf("New without storage = %v, want invalid input", err)
	}
}

func TestDeviceIDPersisted(t *testing.T) {
	st := store.NewMemoryStorage()
	a, err := New(Config{Storage: st})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := New(Config{Storage: st})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.DeviceID() != b.DeviceID() || len(a.DeviceID()) != pairing.DeviceIDSize {
		t.Errorf("device ids %q and %q", a.DeviceID(), b.DeviceID())
	}
}
