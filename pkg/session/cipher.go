// Package session implements the encrypted control channel that follows a
// successful pair-verify.
//
// Each direction has its own ChaCha20-Poly1305 key derived from the
// pair-verify shared secret and its own 64-bit message counter. Plaintext is
// split into blocks of at most 1024 bytes and every block is framed as
//
//	+----------------+----------------------+----------------+
//	| length (2, LE) | ciphertext (length)  | tag (16)       |
//	+----------------+----------------------+----------------+
//
// with the two length bytes as associated data and the nonce
// 0x00000000 || counter (8, LE). The counter advances once per block and is
// never reset for the lifetime of the connection.
package session

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
)

// Framing constants.
const (
	// MaxBlockSize is the largest plaintext carried by one frame.
	MaxBlockSize = 0x400

	// LengthSize is the size of the frame length prefix.
	LengthSize = 2

	// FrameOverhead is the framing added to each block.
	FrameOverhead = LengthSize + crypto.TagSize
)

// Cipher is one connection's pair of directional AEAD contexts.
// Encrypt and Decrypt may be called concurrently with each other; calls in
// the same direction are serialised.
type Cipher struct {
	encMu      sync.Mutex
	encKey     []byte
	encCounter uint64

	decMu      sync.Mutex
	decKey     []byte
	decCounter uint64
}

// NewCipher creates the controller's cipher from a pair-verify shared
// secret: it encrypts with Control-Write and decrypts with Control-Read.
func NewCipher(sharedSecret []byte) (*Cipher, error) {
	return newCipher(sharedSecret, pairing.PurposeControlWrite, pairing.PurposeControlRead)
}

// NewAccessoryCipher creates the accessory's side of the channel, the
// mirror of NewCipher.
func NewAccessoryCipher(sharedSecret []byte) (*Cipher, error) {
	return newCipher(sharedSecret, pairing.PurposeControlRead, pairing.PurposeControlWrite)
}

func newCipher(sharedSecret []byte, enc, dec pairing.Purpose) (*Cipher, error) {
	if len(sharedSecret) != pairing.SharedSecretSize {
		return nil, pairing.Errorf(pairing.KindInvalidInput, "cipher", "shared secret is %d bytes, want %d", len(sharedSecret), pairing.SharedSecretSize)
	}
	encKey, err := pairing.DeriveKey(enc, sharedSecret)
	if err != nil {
		return nil, err
	}
	decKey, err := pairing.DeriveKey(dec, sharedSecret)
	if err != nil {
		crypto.Wipe(encKey)
		return nil, err
	}
	return &Cipher{encKey: encKey, decKey: decKey}, nil
}

// Encrypt frames and seals plaintext. Empty plaintext is rejected.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	const op = "encrypt"
	if len(plaintext) == 0 {
		return nil, pairing.Errorf(pairing.KindInvalidInput, op, "empty plaintext")
	}

	c.encMu.Lock()
	defer c.encMu.Unlock()

	if c.encKey == nil {
		return nil, pairing.NewError(pairing.KindInvalidInput, op, "", ErrClosed)
	}
	blocks := uint64((len(plaintext) + MaxBlockSize - 1) / MaxBlockSize)
	if c.encCounter > ^uint64(0)-blocks {
		return nil, pairing.NewError(pairing.KindCryptoPrimitive, op, "", ErrCounterExhausted)
	}

	out := make([]byte, 0, len(plaintext)+int(blocks)*FrameOverhead)
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > MaxBlockSize {
			n = MaxBlockSize
		}

		var header [LengthSize]byte
		binary.LittleEndian.PutUint16(header[:], uint16(n))

		ct, tag, err := crypto.Seal(c.encKey, crypto.CounterNonce(c.encCounter), plaintext[:n], header[:])
		if err != nil {
			return nil, pairing.NewError(pairing.KindCryptoPrimitive, op, "seal block", err)
		}
		out = append(out, header[:]...)
		out = append(out, ct...)
		out = append(out, tag[:]...)

		c.encCounter++
		plaintext = plaintext[n:]
	}
	return out, nil
}

// Decrypt opens a buffer of one or more complete frames. The input must
// be consumed exactly; a frame running past the end of the input is
// CorruptFraming and a tag mismatch is AuthenticationFailure. On any error
// no plaintext is returned and the decrypt counter is left unchanged.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	const op = "decrypt"

	c.decMu.Lock()
	defer c.decMu.Unlock()

	if c.decKey == nil {
		return nil, pairing.NewError(pairing.KindInvalidInput, op, "", ErrClosed)
	}
	if len(data) < LengthSize {
		return nil, pairing.Errorf(pairing.KindCorruptFraming, op, "input is %d bytes, shorter than a length prefix", len(data))
	}

	counter := c.decCounter
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		if len(data) < LengthSize {
			return nil, pairing.Errorf(pairing.KindCorruptFraming, op, "%d trailing bytes after last frame", len(data))
		}
		n := int(binary.LittleEndian.Uint16(data[:LengthSize]))
		if n > MaxBlockSize {
			return nil, pairing.Errorf(pairing.KindCorruptFraming, op, "block length %d exceeds %d", n, MaxBlockSize)
		}
		if LengthSize+n+crypto.TagSize > len(data) {
			return nil, pairing.Errorf(pairing.KindCorruptFraming, op, "block length %d runs past end of input", n)
		}

		pt, err := c.openBlock(counter, data[:LengthSize], data[LengthSize:LengthSize+n], data[LengthSize+n:LengthSize+n+crypto.TagSize])
		if err != nil {
			return nil, err
		}
		out = append(out, pt...)

		counter++
		data = data[LengthSize+n+crypto.TagSize:]
	}

	c.decCounter = counter
	return out, nil
}

// ReadBlock reads and opens exactly one frame from r. It returns io.EOF
// only if r is exhausted before the first byte of the frame.
func (c *Cipher) ReadBlock(r io.Reader) ([]byte, error) {
	const op = "read block"

	var header [LengthSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(header[:]))
	if n > MaxBlockSize {
		return nil, pairing.Errorf(pairing.KindCorruptFraming, op, "block length %d exceeds %d", n, MaxBlockSize)
	}

	body := make([]byte, n+crypto.TagSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	c.decMu.Lock()
	defer c.decMu.Unlock()

	if c.decKey == nil {
		return nil, pairing.NewError(pairing.KindInvalidInput, op, "", ErrClosed)
	}
	pt, err := c.openBlock(c.decCounter, header[:], body[:n], body[n:])
	if err != nil {
		return nil, err
	}
	c.decCounter++
	return pt, nil
}

// openBlock must be called with decMu held.
func (c *Cipher) openBlock(counter uint64, header, ct, tagBytes []byte) ([]byte, error) {
	var tag [crypto.TagSize]byte
	copy(tag[:], tagBytes)
	pt, err := crypto.Open(c.decKey, crypto.CounterNonce(counter), ct, tag, header)
	if err != nil {
		return nil, pairing.NewError(pairing.KindAuthentication, "decrypt", "block authentication failed", err)
	}
	return pt, nil
}

// Counters returns the number of blocks sealed and opened so far.
func (c *Cipher) Counters() (encrypt, decrypt uint64) {
	c.encMu.Lock()
	encrypt = c.encCounter
	c.encMu.Unlock()

	c.decMu.Lock()
	decrypt = c.decCounter
	c.decMu.Unlock()
	return encrypt, decrypt
}

// Close zeroes both keys. Later calls fail with ErrClosed.
func (c *Cipher) Close() {
	c.encMu.Lock()
	crypto.Wipe(c.encKey)
	c.encKey = nil
	c.encMu.Unlock()

	c.decMu.Lock()
	crypto.Wipe(c.decKey)
	c.decKey = nil
	c.decMu.Unlock()
}
