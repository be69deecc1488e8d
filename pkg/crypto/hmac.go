package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
)

// HMACSHA512 computes the HMAC-SHA512 of a message using the given key.
//
// Returns a 64-byte MAC.
func HMACSHA512(key, message []byte) [SHA512LenBytes]byte {
	h := hmac.New(sha512.New, key)
	h.Write(message)
	var result [SHA512LenBytes]byte
	copy(result[:], h.Sum(nil))
	return result
}

// HMACEqual compares two MACs for equality in constant time.
// This should be used instead of bytes.Equal to prevent timing attacks.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}
