// ChaCha20-Poly1305 sealing for HAP pairing messages and transport frames.
// This is the RFC 8439 AEAD with a 32-byte key, 12-byte nonce and 16-byte tag.

package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// Errors
var (
	ErrInvalidAEADKeySize = errors.New("chacha20poly1305: invalid key size, must be 32 bytes")
	ErrAuthFailed         = errors.New("chacha20poly1305: message authentication failed")
)

// Seal encrypts and authenticates plaintext with associated data.
//
// Parameters:
//   - key: 32-byte symmetric key
//   - nonce: 12-byte nonce, unique per key
//   - plaintext: data to encrypt (may be empty)
//   - aad: additional authenticated data (may be nil)
//
// Returns the ciphertext (same length as plaintext) and the detached tag.
func Seal(key []byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, [TagSize]byte, error) {
	var tag [TagSize]byte
	if len(key) != SymmetricKeySize {
		return nil, tag, ErrInvalidAEADKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, tag, err
	}

	sealed := aead.Seal(nil, nonce[:], plaintext, aad)
	n := len(sealed) - TagSize
	copy(tag[:], sealed[n:])
	return sealed[:n:n], tag, nil
}

// Open authenticates and decrypts ciphertext with a detached tag.
// Returns ErrAuthFailed if the tag does not verify; no plaintext is released
// in that case.
func Open(key []byte, nonce [NonceSize]byte, ciphertext []byte, tag [TagSize]byte, aad []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrInvalidAEADKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)

	plaintext, err := aead.Open(nil, nonce[:], sealed, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// SealCombined is Seal with the tag appended to the ciphertext, the layout
// carried in a TLV EncryptedData item.
func SealCombined(key []byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	ct, tag, err := Seal(key, nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return append(ct, tag[:]...), nil
}

// OpenCombined opens ciphertext || tag. Input shorter than a tag is
// reported as ErrAuthFailed.
func OpenCombined(key []byte, nonce [NonceSize]byte, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < TagSize {
		return nil, ErrAuthFailed
	}
	n := len(sealed) - TagSize
	var tag [TagSize]byte
	copy(tag[:], sealed[n:])
	return Open(key, nonce, sealed[:n], tag, aad)
}
