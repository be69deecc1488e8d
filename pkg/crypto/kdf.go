package crypto

import (
	"crypto/sha512"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Errors for key derivation.
var (
	ErrOutputTooLong = errors.New("hkdf: output longer than one SHA-512 block")
	ErrInvalidLength = errors.New("hkdf: output length must be positive")
)

// HKDFSHA512 derives key material using HKDF-SHA512 (RFC 5869).
//
// Parameters:
//   - inputKey: Input keying material (IKM)
//   - salt: Optional salt value (can be nil or empty)
//   - info: Optional context/application-specific info (can be nil or empty)
//   - length: Number of bytes to derive, at most 64
//
// Only a single expand block is supported; pairing never needs more than one
// 32-byte key per derivation.
func HKDFSHA512(inputKey, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	if length > SHA512LenBytes {
		return nil, ErrOutputTooLong
	}
	// HKDF = HKDF-Expand(PRK := HKDF-Extract(salt, IKM), info, L)
	reader := hkdf.New(sha512.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// HKDFExtractSHA512 performs only the HKDF-Extract operation.
//
// Parameters:
//   - inputKey: Input keying material (IKM)
//   - salt: Optional salt value (can be nil, defaults to zero-filled HashLen bytes)
//
// Returns a 64-byte pseudorandom key.
func HKDFExtractSHA512(inputKey, salt []byte) []byte {
	return hkdf.Extract(sha512.New, inputKey, salt)
}

// HKDFExpandSHA512 performs only the HKDF-Expand operation.
//
// Parameters:
//   - prk: Pseudorandom key (from HKDFExtractSHA512 or other source)
//   - info: Optional context/application-specific info
//   - length: Number of bytes to derive, at most 64
func HKDFExpandSHA512(prk, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	if length > SHA512LenBytes {
		return nil, ErrOutputTooLong
	}
	reader := hkdf.Expand(sha512.New, prk, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
