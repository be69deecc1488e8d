package pairing

import (
	"encoding/hex"

	"github.com/backkem/hap/pkg/crypto"
)

// Peer is a paired device: an identifier and its long-term Ed25519 public
// key. After pair-setup the controller stores the accessory as a Peer, and
// pair-verify checks the accessory's signature against it.
type Peer struct {
	ID          string
	PublicKey   []byte
	Permissions Permission
}

// Validate checks the identifier is present and the key is 32 bytes.
func (p Peer) Validate() error {
	if p.ID == "" {
		return Errorf(KindInvalidInput, "peer", "empty identifier")
	}
	if len(p.ID) > 255 {
		return Errorf(KindInvalidInput, "peer", "identifier is %d bytes, at most 255 allowed", len(p.ID))
	}
	if len(p.PublicKey) != crypto.Ed25519PublicKeySize {
		return Errorf(KindInvalidInput, "peer", "public key is %d bytes, want %d", len(p.PublicKey), crypto.Ed25519PublicKeySize)
	}
	return nil
}

// PublicKeyHex returns the public key as lowercase hex.
func (p Peer) PublicKeyHex() string {
	return hex.EncodeToString(p.PublicKey)
}
