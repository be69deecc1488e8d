// Package store persists controller pairing state: the controller's
// device identifier and, per paired accessory, the accessory identity and
// the controller key pair created for it at pair-setup.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
)

var (
	// ErrNotFound is returned when a device id or pairing is not stored.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidPairing is returned when a pairing record fails validation.
	ErrInvalidPairing = errors.New("store: invalid pairing")
)

// Storage abstracts persistent storage for pairing state.
// Implementations can use files, databases, or in-memory storage.
//
// All methods must be safe for concurrent use.
type Storage interface {
	// Controller identity
	LoadDeviceID() (string, error)
	SaveDeviceID(id string) error

	// Paired accessories, keyed by accessory identifier
	LoadPairings() ([]*Pairing, error)
	LoadPairing(accessoryID string) (*Pairing, error)
	SavePairing(p *Pairing) error
	DeletePairing(accessoryID string) error
}

// Pairing is one paired accessory.
type Pairing struct {
	// Accessory is the accessory identifier and long-term public key.
	Accessory pairing.Peer

	// AuthorisationKey is hex(public || private) of the controller key pair
	// the accessory knows this controller by.
	AuthorisationKey string

	// Address is the last known host:port of the accessory, if any.
	Address string
}

// Validate checks the accessory identity and the key encoding.
func (p *Pairing) Validate() error {
	if err := p.Accessory.Validate(); err != nil {
		return errors.Join(ErrInvalidPairing, err)
	}
	kp, err := crypto.Ed25519KeyPairFromHex(p.AuthorisationKey)
	if err != nil {
		return errors.Join(ErrInvalidPairing, err)
	}
	kp.Close()
	return nil
}

// Clone creates a deep copy of the pairing.
func (p *Pairing) Clone() *Pairing {
	clone := *p
	clone.Accessory.PublicKey = append([]byte(nil), p.Accessory.PublicKey...)
	return &clone
}

// NewDeviceID returns a random 16-character controller identifier.
func NewDeviceID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, pairing.DeviceIDSize/2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// DeviceID returns the stored controller identifier, creating and saving
// one on first use.
func DeviceID(s Storage) (string, error) {
	id, err := s.LoadDeviceID()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id, err = NewDeviceID(nil)
	if err != nil {
		return "", err
	}
	if err := s.SaveDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}

func validateDeviceID(id string) error {
	if len(id) != pairing.DeviceIDSize {
		return pairing.Errorf(pairing.KindInvalidInput, "store", "device id is %d bytes, want %d", len(id), pairing.DeviceIDSize)
	}
	return nil
}
