// Nonce construction for ChaCha20-Poly1305 as used by HAP pairing.

package crypto

import (
	"encoding/binary"
)

// AEAD constants.
const (
	// NonceSize is the ChaCha20-Poly1305 nonce length.
	NonceSize = 12

	// SymmetricKeySize is the ChaCha20-Poly1305 key length.
	SymmetricKeySize = 32

	// TagSize is the Poly1305 authenticator length.
	TagSize = 16

	// NonceTagSize is the length of an ASCII message tag such as "PS-Msg05".
	NonceTagSize = 8
)

// TagNonce constructs a 12-byte nonce from an 8-byte ASCII message tag.
//
// Format: 0x00000000 || tag (8 bytes)
func TagNonce(tag [NonceTagSize]byte) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[4:], tag[:])
	return nonce
}

// CounterNonce constructs a 12-byte nonce from a transport message counter.
//
// Format: 0x00000000 || counter (8 bytes LE)
func CounterNonce(counter uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}
