package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// Test vectors from FIPS 180-4 examples.
var sha512TestVectors = []struct {
	name     string
	message  string // hex-encoded
	expected string // hex-encoded
}{
	{
		name:     "Empty",
		message:  "",
		expected: "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
	},
	{
		name:     "abc",
		message:  "616263",
		expected: "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f",
	},
}

func TestSHA512(t *testing.T) {
	for _, tc := range sha512TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			message, err := hex.DecodeString(tc.message)
			if err != nil {
				t.Fatalf("failed to decode message hex: %v", err)
			}
			expected, err := hex.DecodeString(tc.expected)
			if err != nil {
				t.Fatalf("failed to decode expected hex: %v", err)
			}

			result := SHA512(message)
			if !bytes.Equal(result[:], expected) {
				t.Errorf("hash mismatch\ngot:  %x\nwant: %x", result[:], expected)
			}
			if got := SHA512Slice(message); !bytes.Equal(got, expected) {
				t.Errorf("slice hash mismatch\ngot:  %x\nwant: %x", got, expected)
			}
		})
	}
}

func TestSHA512Hash_Parts(t *testing.T) {
	// Hashing split parts must equal hashing the concatenation.
	whole := SHA512Hash.Sum([]byte("abc"))
	parts := SHA512Hash.Sum([]byte("a"), nil, []byte("bc"))
	if !bytes.Equal(whole, parts) {
		t.Errorf("multi-part hash mismatch\ngot:  %x\nwant: %x", parts, whole)
	}
	if SHA512Hash.Size() != SHA512LenBytes {
		t.Errorf("Size() = %d, want %d", SHA512Hash.Size(), SHA512LenBytes)
	}
	if SHA512LenBits/8 != SHA512LenBytes {
		t.Errorf("SHA512LenBits/8 (%d) != SHA512LenBytes (%d)", SHA512LenBits/8, SHA512LenBytes)
	}
}
