package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519 constants.
const (
	// X25519KeySize is the size of X25519 scalars, points and shared secrets.
	X25519KeySize = curve25519.PointSize
)

// Errors
var (
	ErrInvalidX25519Key = errors.New("x25519: invalid key size, must be 32 bytes")
	ErrLowOrderPoint    = errors.New("x25519: shared secret is all zeros")
)

// X25519KeyPair is an ephemeral Diffie-Hellman key pair.
type X25519KeyPair struct {
	private [X25519KeySize]byte
	public  [X25519KeySize]byte
}

// X25519GenerateKeyPair generates a new X25519 key pair from r.
// A nil reader uses crypto/rand.
func X25519GenerateKeyPair(r io.Reader) (*X25519KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	kp := &X25519KeyPair{}
	if _, err := io.ReadFull(r, kp.private[:]); err != nil {
		return nil, fmt.Errorf("failed to generate X25519 key: %w", err)
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive X25519 public key: %w", err)
	}
	copy(kp.public[:], pub)
	return kp, nil
}

// PublicKey returns a copy of the 32-byte public key.
func (kp *X25519KeyPair) PublicKey() []byte {
	out := make([]byte, X25519KeySize)
	copy(out, kp.public[:])
	return out
}

// SharedSecret computes X25519(private, peerPublic).
// A low-order peer point, which would give an all-zero secret, is rejected.
func (kp *X25519KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != X25519KeySize {
		return nil, ErrInvalidX25519Key
	}
	shared, err := curve25519.X25519(kp.private[:], peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLowOrderPoint, err)
	}
	return shared, nil
}

// Close zeroes the private scalar.
func (kp *X25519KeyPair) Close() {
	Wipe(kp.private[:])
}
