package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Ed25519 constants.
const (
	// Ed25519PublicKeySize is the public key size in bytes.
	Ed25519PublicKeySize = ed25519.PublicKeySize

	// Ed25519PrivateKeySize is the expanded private key size (seed || public key).
	Ed25519PrivateKeySize = ed25519.PrivateKeySize

	// Ed25519SignatureSize is the signature size in bytes.
	Ed25519SignatureSize = ed25519.SignatureSize

	// Ed25519KeyHexLen is the length of a hex encoded public || private key pair.
	Ed25519KeyHexLen = 2 * (Ed25519PublicKeySize + Ed25519PrivateKeySize)
)

// Errors
var (
	ErrInvalidPublicKey   = errors.New("ed25519: invalid public key size, must be 32 bytes")
	ErrInvalidSignature   = errors.New("ed25519: signature verification failed")
	ErrInvalidKeyEncoding = errors.New("ed25519: invalid key pair encoding")
)

// Ed25519KeyPair is a long-term identity key pair.
type Ed25519KeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Ed25519GenerateKeyPair generates a new Ed25519 key pair from r.
// A nil reader uses crypto/rand.
func Ed25519GenerateKeyPair(r io.Reader) (*Ed25519KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}
	return &Ed25519KeyPair{public: pub, private: priv}, nil
}

// Ed25519KeyPairFromHex parses a key pair from the hex encoding of
// public key (32 bytes) || private key (64 bytes), 192 hex characters.
func Ed25519KeyPairFromHex(s string) (*Ed25519KeyPair, error) {
	if len(s) != Ed25519KeyHexLen {
		return nil, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidKeyEncoding, Ed25519KeyHexLen, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	defer Wipe(raw)

	pub := make([]byte, Ed25519PublicKeySize)
	priv := make([]byte, Ed25519PrivateKeySize)
	copy(pub, raw[:Ed25519PublicKeySize])
	copy(priv, raw[Ed25519PublicKeySize:])

	// The expanded private key carries its own public half; both must agree.
	if !ed25519.PublicKey(pub).Equal(ed25519.PrivateKey(priv).Public()) {
		Wipe(priv)
		return nil, fmt.Errorf("%w: public key does not match private key", ErrInvalidKeyEncoding)
	}
	return &Ed25519KeyPair{public: pub, private: priv}, nil
}

// PublicKey returns a copy of the 32-byte public key.
func (kp *Ed25519KeyPair) PublicKey() []byte {
	out := make([]byte, Ed25519PublicKeySize)
	copy(out, kp.public)
	return out
}

// Sign signs message with the private key.
func (kp *Ed25519KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.private, message)
}

// Hex returns hex(public || private), the persisted form of the key pair.
func (kp *Ed25519KeyPair) Hex() string {
	raw := make([]byte, 0, Ed25519PublicKeySize+Ed25519PrivateKeySize)
	raw = append(raw, kp.public...)
	raw = append(raw, kp.private...)
	s := hex.EncodeToString(raw)
	Wipe(raw)
	return s
}

// Close zeroes the private key.
func (kp *Ed25519KeyPair) Close() {
	Wipe(kp.private)
}

// Ed25519Verify verifies signature over message with a 32-byte public key.
func Ed25519Verify(publicKey, message, signature []byte) error {
	if len(publicKey) != Ed25519PublicKeySize {
		return ErrInvalidPublicKey
	}
	if len(signature) != Ed25519SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, signature) {
		return ErrInvalidSignature
	}
	return nil
}
