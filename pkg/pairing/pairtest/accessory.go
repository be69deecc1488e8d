// Package pairtest provides a simulated HAP accessory for exercising the
// controller side of pair-setup, pair-verify and pairing administration.
//
// The accessory keeps one long-term identity and a table of paired
// controllers. Each connection gets its own Handler carrying the handshake
// state. Faults can be injected through Options to drive the controller's
// failure paths.
package pairtest

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv8"
)

// DefaultPIN is the setup code used when Options.PIN is empty.
const DefaultPIN = "3939"

// DefaultID is the accessory identifier used when Options.ID is empty.
const DefaultID = "AA:BB:CC:DD:EE:FF"

// Options configures a simulated accessory.
type Options struct {
	// PIN is the setup code. Defaults to DefaultPIN.
	PIN string

	// ID is the accessory identifier. Defaults to DefaultID.
	ID string

	// Group is the SRP group. Defaults to srp.Group3072.
	Group *srp.Group

	// Salt fixes the SRP salt. Random if nil.
	Salt []byte

	// Random is the source for keys and SRP secrets. Defaults to crypto/rand.
	Random io.Reader

	// WrongProof corrupts the SRP server proof in pair-setup M4.
	WrongProof bool

	// BadSetupSignature corrupts the accessory signature in pair-setup M6.
	BadSetupSignature bool

	// BadVerifySignature corrupts the accessory signature in pair-verify M2.
	BadVerifySignature bool

	// SetupError, if non-zero, is returned in place of pair-setup M2.
	SetupError pairing.AccessoryErrorCode

	// RetryDelay accompanies SetupError, in seconds.
	RetryDelay int

	// OnChange, if set, is called after a controller is added or removed.
	OnChange func()
}

// Accessory is a simulated accessory. It is safe for concurrent use by
// several connections.
type Accessory struct {
	opts     Options
	identity *crypto.Ed25519KeyPair

	mu          sync.Mutex
	controllers map[string]pairing.Peer
}

// NewAccessory creates an accessory with a fresh long-term identity.
func NewAccessory(opts Options) (*Accessory, error) {
	if opts.PIN == "" {
		opts.PIN = DefaultPIN
	}
	if opts.ID == "" {
		opts.ID = DefaultID
	}
	if opts.Group == nil {
		opts.Group = srp.Group3072
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}

	identity, err := crypto.Ed25519GenerateKeyPair(opts.Random)
	if err != nil {
		return nil, err
	}
	return &Accessory{
		opts:        opts,
		identity:    identity,
		controllers: make(map[string]pairing.Peer),
	}, nil
}

// Peer returns the accessory identity as a controller stores it.
func (a *Accessory) Peer() pairing.Peer {
	return pairing.Peer{
		ID:          a.opts.ID,
		PublicKey:   a.identity.PublicKey(),
		Permissions: pairing.PermissionAdmin,
	}
}

// AddController registers a controller as if it had completed pair-setup.
func (a *Accessory) AddController(p pairing.Peer) {
	a.mu.Lock()
	a.controllers[p.ID] = p
	a.mu.Unlock()
	a.changed()
}

// Controller looks up a paired controller.
func (a *Accessory) Controller(id string) (pairing.Peer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.controllers[id]
	return p, ok
}

// Controllers returns the paired controllers ordered by identifier.
func (a *Accessory) Controllers() []pairing.Peer {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]pairing.Peer, 0, len(a.controllers))
	for _, p := range a.controllers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *Accessory) removeController(id string) {
	a.mu.Lock()
	delete(a.controllers, id)
	a.mu.Unlock()
	a.changed()
}

// Paired reports whether any controller is registered.
func (a *Accessory) Paired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.controllers) > 0
}

func (a *Accessory) changed() {
	if a.opts.OnChange != nil {
		a.opts.OnChange()
	}
}

// NewHandler returns the handshake state for one connection.
func (a *Accessory) NewHandler() *Handler {
	return &Handler{acc: a}
}

// errorResponse builds {State, Error[, RetryDelay]}.
func errorResponse(state byte, code pairing.AccessoryErrorCode, retryDelay int) []byte {
	b := tlv8.NewBuilder().
		PutByte(pairing.TypeState, state).
		PutByte(pairing.TypeError, byte(code))
	if retryDelay > 0 {
		var d [2]byte
		binary.LittleEndian.PutUint16(d[:], uint16(retryDelay))
		b.Put(pairing.TypeRetryDelay, d[:])
	}
	return b.Bytes()
}
