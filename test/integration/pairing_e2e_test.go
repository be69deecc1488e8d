package integration

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/pairing/pairtest"
	"github.com/backkem/hap/pkg/pairing/verify"
	"github.com/backkem/hap/pkg/session"
	"github.com/backkem/hap/pkg/store"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/transport/v3/test"
)

// TestE2E_PairSetupAndVerify drives pair-verify by hand over the raw HTTP
// connection and checks both ends derive the same secret before switching
// to the encrypted session.
func TestE2E_PairSetupAndVerify(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)

	if !bytes.Equal(pair.Pairing.Accessory.PublicKey, pair.Accessory.Peer().PublicKey) {
		t.Fatal("stored accessory key does not match the accessory identity")
	}
	registered, ok := pair.Accessory.Controller(pair.Controller.DeviceID())
	if !ok {
		t.Fatal("accessory did not register the controller")
	}
	if registered.Permissions != pairing.PermissionAdmin {
		t.Errorf("controller permissions = %s, want admin", registered.Permissions)
	}

	raw, err := net.Dial("tcp", pair.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	hc := transport.NewHTTPConn(raw, pair.Addr())
	defer hc.Close()

	s, err := verify.NewSession(verify.Config{
		AuthorisationKey: pair.Pairing.AuthorisationKey,
		DeviceID:         pair.Controller.DeviceID(),
		Accessory:        pair.Pairing.Accessory,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer s.Close()

	msg, err := s.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for msg != nil {
		resp, err := hc.Post(pairing.PathPairVerify, msg)
		if err != nil {
			t.Fatalf("Post failed: %v", err)
		}
		if msg, err = s.HandleMessage(resp); err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
	}
	if s.State() != verify.StateDone {
		t.Fatalf("state = %s, want %s", s.State(), verify.StateDone)
	}

	secret, err := s.SharedSecret()
	if err != nil {
		t.Fatalf("SharedSecret failed: %v", err)
	}
	var matched bool
	for _, h := range pair.Server.Handlers() {
		if accSecret, ok := h.SharedSecret(); ok && bytes.Equal(accSecret, secret[:]) {
			matched = true
			if id, _ := h.VerifiedController(); id != pair.Controller.DeviceID() {
				t.Errorf("accessory verified %q, want %q", id, pair.Controller.DeviceID())
			}
		}
	}
	if !matched {
		t.Fatal("no accessory connection derived the controller's shared secret")
	}

	cipher, err := session.NewCipher(secret[:])
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	if err := hc.Encrypt(cipher); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	resp, err := hc.Post(pairing.PathPairings, pairing.ListPairingsRequest())
	if err != nil {
		t.Fatalf("encrypted Post failed: %v", err)
	}
	peers, err := pairing.ParseListPairingsResponse(resp)
	if err != nil {
		t.Fatalf("ParseListPairingsResponse failed: %v", err)
	}
	if len(peers) != 1 || peers[0].ID != pair.Controller.DeviceID() {
		t.Errorf("ListPairings = %+v", peers)
	}

	enc, dec := cipher.Counters()
	if enc == 0 || dec == 0 {
		t.Errorf("counters = %d/%d, want both advanced", enc, dec)
	}
}

func TestE2E_ControllerRestart(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)
	restarted := pair.NewController()

	if restarted.DeviceID() != pair.Controller.DeviceID() {
		t.Fatalf("device id changed across restart: %s != %s", restarted.DeviceID(), pair.Controller.DeviceID())
	}

	conn, err := restarted.Connect(pair.Context(), pair.Pairing.Accessory.ID, "")
	if err != nil {
		t.Fatalf("Connect after restart failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ListPairings(pair.Context()); err != nil {
		t.Fatalf("ListPairings failed: %v", err)
	}
}

func TestE2E_ConcurrentSessions(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)

	const sessions = 4
	var wg sync.WaitGroup
	errs := make(chan error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pair.Controller.Connect(pair.Context(), pair.Pairing.Accessory.ID, "")
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			for j := 0; j < 3; j++ {
				if _, err := conn.ListPairings(pair.Context()); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("session failed: %v", err)
	}
}

func TestE2E_PairingAdministration(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)
	conn := pair.Connect()

	key, err := crypto.Ed25519GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("Ed25519GenerateKeyPair failed: %v", err)
	}
	peer := pairing.Peer{ID: "FEDCBA9876543210", PublicKey: key.PublicKey(), Permissions: pairing.PermissionUser}
	if err := conn.AddPairing(pair.Context(), peer); err != nil {
		t.Fatalf("AddPairing failed: %v", err)
	}

	peers, err := conn.ListPairings(pair.Context())
	if err != nil {
		t.Fatalf("ListPairings failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("ListPairings returned %d peers, want 2", len(peers))
	}

	if err := conn.RemovePairing(pair.Context(), peer.ID); err != nil {
		t.Fatalf("RemovePairing failed: %v", err)
	}
	if _, ok := pair.Accessory.Controller(peer.ID); ok {
		t.Error("removed controller still registered")
	}
}

// TestE2E_TwoControllers pairs a second controller with its own store. Each
// controller gets its own authorisation key and both can verify.
func TestE2E_TwoControllers(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)

	fs, err := store.OpenFile(filepath.Join(t.TempDir(), "second.yaml"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	second, err := controller.New(controller.Config{
		Storage: fs,
		Group:   srp.Group2048,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if second.DeviceID() == pair.Controller.DeviceID() {
		t.Fatal("controllers share a device id")
	}

	p2, err := second.Pair(pair.Context(), pair.Addr(), []byte(pairtest.DefaultPIN))
	if err != nil {
		t.Fatalf("second Pair failed: %v", err)
	}
	if p2.AuthorisationKey == pair.Pairing.AuthorisationKey {
		t.Error("controllers share an authorisation key")
	}
	if len(pair.Accessory.Controllers()) != 2 {
		t.Fatalf("accessory has %d controllers, want 2", len(pair.Accessory.Controllers()))
	}

	first := pair.Connect()
	conn2, err := second.Connect(pair.Context(), p2.Accessory.ID, "")
	if err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	defer conn2.Close()

	for _, c := range []*controller.Conn{first, conn2} {
		peers, err := c.ListPairings(pair.Context())
		if err != nil {
			t.Fatalf("ListPairings failed: %v", err)
		}
		if len(peers) != 2 {
			t.Errorf("ListPairings returned %d peers, want 2", len(peers))
		}
	}
}

func TestE2E_LargeEncryptedExchange(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)
	conn := pair.Connect()

	// Several frames in one request; the accessory answers 404 over the
	// encrypted channel.
	body := bytes.Repeat([]byte{0x5a}, 3*session.MaxBlockSize+17)
	_, err := conn.Post(pair.Context(), "/unknown", body)
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Post error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", statusErr.Code, http.StatusNotFound)
	}

	// The session stays usable afterwards.
	if _, err := conn.ListPairings(pair.Context()); err != nil {
		t.Fatalf("ListPairings after 404 failed: %v", err)
	}
}

func TestE2E_UnverifiedPairingsRejected(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)

	raw, err := net.Dial("tcp", pair.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	hc := transport.NewHTTPConn(raw, pair.Addr())
	defer hc.Close()

	_, err = hc.Post(pairing.PathPairings, pairing.ListPairingsRequest())
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != transport.StatusConnectionAuthorizationRequired {
		t.Fatalf("Post error = %v, want status %d", err, transport.StatusConnectionAuthorizationRequired)
	}
}

func TestE2E_WrongPIN(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()

	pair := NewTestPair(t)
	ctrl := pair.NewController()

	_, err := ctrl.Pair(pair.Context(), pair.Addr(), []byte("0000"))
	var accErr *pairing.AccessoryError
	if !errors.As(err, &accErr) || accErr.Code != pairing.ErrorCodeAuthentication {
		t.Fatalf("Pair error = %v, want accessory authentication error", err)
	}
	pairings, err := ctrl.Pairings()
	if err != nil {
		t.Fatalf("Pairings failed: %v", err)
	}
	if len(pairings) != 1 {
		t.Errorf("store has %d pairings after failed pair-setup, want 1", len(pairings))
	}
}
