// Package crypto provides the cryptographic primitives used by HAP pairing:
// SHA-512 hashing, HMAC and HKDF over SHA-512, ChaCha20-Poly1305 sealing,
// Ed25519 identity signatures and X25519 key agreement.
package crypto

import (
	stdcrypto "crypto"

	"github.com/bytemare/hash"
)

// SHA-512 constants.
const (
	// SHA512LenBits is the SHA-512 output length in bits.
	SHA512LenBits = 512

	// SHA512LenBytes is the SHA-512 output length in bytes.
	SHA512LenBytes = 64
)

// Hash is a one-shot message digest. SRP and the signature transcripts only
// ever hash whole, already assembled buffers, so the capability is kept to a
// single call plus the output size.
type Hash interface {
	// Sum returns the digest of the concatenation of parts.
	Sum(parts ...[]byte) []byte

	// Size returns the digest length in bytes.
	Size() int
}

// sha512Hash implements Hash with SHA-512.
type sha512Hash struct{}

// SHA512Hash is the SHA-512 Hash implementation used by pairing.
var SHA512Hash Hash = sha512Hash{}

func (sha512Hash) Sum(parts ...[]byte) []byte {
	h := hash.FromCrypto(stdcrypto.SHA512).GetHashFunction()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}

func (sha512Hash) Size() int {
	return SHA512LenBytes
}

// SHA512 computes the SHA-512 hash of a message.
//
// Returns a 64-byte digest.
func SHA512(message []byte) [SHA512LenBytes]byte {
	var out [SHA512LenBytes]byte
	copy(out[:], SHA512Hash.Sum(message))
	return out
}

// SHA512Slice computes the SHA-512 hash and returns it as a slice.
func SHA512Slice(message []byte) []byte {
	return SHA512Hash.Sum(message)
}
