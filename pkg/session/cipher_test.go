package session

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
)

// testSecret is the shared secret 0x01..0x20.
func testSecret() []byte {
	s := make([]byte, pairing.SharedSecretSize)
	for i := range s {
		s[i] = byte(i + 1)
	}
	return s
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

func newPair(t *testing.T) (*Cipher, *Cipher) {
	t.Helper()
	ctrl, err := NewCipher(testSecret())
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	acc, err := NewAccessoryCipher(testSecret())
	if err != nil {
		t.Fatalf("NewAccessoryCipher failed: %v", err)
	}
	return ctrl, acc
}

func TestCipherKnownFrames(t *testing.T) {
	ctrl, acc := newPair(t)

	tests := []struct {
		plaintext string
		frame     string
	}{
		{
			plaintext: "GET /info HTTP/1.1\r\n\r\n",
			frame:     "160079ad0e54878af77db6286f69ed918a6ebbce62769321a5bc2b33873dce63dae0a4d9d142473b",
		},
		{
			plaintext: "x",
			frame:     "0100807ec48e87f8c63d7e204a7bc2cb796e49",
		},
	}

	for i, tt := range tests {
		got, err := ctrl.Encrypt([]byte(tt.plaintext))
		if err != nil {
			t.Fatalf("Encrypt %d failed: %v", i, err)
		}
		want := mustHex(t, tt.frame)
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d mismatch\ngot:  %x\nwant: %x", i, got, want)
		}

		pt, err := acc.Decrypt(want)
		if err != nil {
			t.Fatalf("Decrypt %d failed: %v", i, err)
		}
		if string(pt) != tt.plaintext {
			t.Errorf("plaintext %d = %q, want %q", i, pt, tt.plaintext)
		}
	}

	enc, dec := ctrl.Counters()
	if enc != 2 || dec != 0 {
		t.Errorf("controller counters = (%d, %d), want (2, 0)", enc, dec)
	}
	enc, dec = acc.Counters()
	if enc != 0 || dec != 2 {
		t.Errorf("accessory counters = (%d, %d), want (0, 2)", enc, dec)
	}
}

func TestCipherRoundTripSizes(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		blocks uint64
	}{
		{"one byte", 1, 1},
		{"full block", MaxBlockSize, 1},
		{"block plus one", MaxBlockSize + 1, 2},
		{"three blocks", 3 * MaxBlockSize, 3},
		{"large", 10000, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, acc := newPair(t)

			pt := make([]byte, tt.size)
			for i := range pt {
				pt[i] = byte(i)
			}

			frames, err := ctrl.Encrypt(pt)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if want := tt.size + int(tt.blocks)*FrameOverhead; len(frames) != want {
				t.Errorf("framed length = %d, want %d", len(frames), want)
			}

			got, err := acc.Decrypt(frames)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(got, pt) {
				t.Error("round trip mismatch")
			}

			if enc, _ := ctrl.Counters(); enc != tt.blocks {
				t.Errorf("encrypt counter = %d, want %d", enc, tt.blocks)
			}
			if _, dec := acc.Counters(); dec != tt.blocks {
				t.Errorf("decrypt counter = %d, want %d", dec, tt.blocks)
			}
		})
	}
}

func TestCipherBothDirections(t *testing.T) {
	ctrl, acc := newPair(t)

	req, err := ctrl.Encrypt([]byte("request"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	resp, err := acc.Encrypt([]byte("request"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	// Same plaintext and counter, different direction keys.
	if bytes.Equal(req, resp) {
		t.Error("directions share a key")
	}

	if _, err := ctrl.Decrypt(req); !errors.Is(err, pairing.ErrAuthenticationFailure) {
		t.Errorf("own frame decrypt error = %v, want authentication failure", err)
	}
	got, err := ctrl.Decrypt(resp)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(got) != "request" {
		t.Errorf("plaintext = %q", got)
	}
}

func TestCipherEmptyPlaintext(t *testing.T) {
	ctrl, _ := newPair(t)

	_, err := ctrl.Encrypt(nil)
	if pairing.KindOf(err) != pairing.KindInvalidInput {
		t.Errorf("Encrypt(nil) kind = %v, want InvalidInput", pairing.KindOf(err))
	}
	if enc, _ := ctrl.Counters(); enc != 0 {
		t.Errorf("encrypt counter = %d, want 0", enc)
	}
}

func TestCipherDecryptFraming(t *testing.T) {
	ctrl, _ := newPair(t)
	frame, err := ctrl.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	oversize := []byte{0x01, 0x04}
	oversize = append(oversize, make([]byte, 0x401+crypto.TagSize)...)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x05}},
		{"truncated tag", frame[:len(frame)-1]},
		{"truncated body", frame[:4]},
		{"trailing byte", append(append([]byte{}, frame...), 0x00)},
		{"length past end", append([]byte{0xff, 0x00}, frame[2:]...)},
		{"block over limit", oversize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, acc := newPair(t)
			pt, err := acc.Decrypt(tt.input)
			if !errors.Is(err, pairing.ErrCorruptFraming) {
				t.Fatalf("Decrypt error = %v, want corrupt framing", err)
			}
			if pt != nil {
				t.Error("plaintext released on error")
			}
			if _, dec := acc.Counters(); dec != 0 {
				t.Errorf("decrypt counter = %d, want 0", dec)
			}
		})
	}
}

func TestCipherDecryptTamper(t *testing.T) {
	ctrl, _ := newPair(t)
	frame, err := ctrl.Encrypt([]byte("hello accessory"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip a bit in the ciphertext and in the tag.
	for _, idx := range []int{LengthSize, len(frame) - 1} {
		_, acc := newPair(t)
		tampered := append([]byte{}, frame...)
		tampered[idx] ^= 0x01

		pt, err := acc.Decrypt(tampered)
		if !errors.Is(err, pairing.ErrAuthenticationFailure) {
			t.Errorf("byte %d: error = %v, want authentication failure", idx, err)
		}
		if pt != nil {
			t.Errorf("byte %d: plaintext released", idx)
		}
		if _, dec := acc.Counters(); dec != 0 {
			t.Errorf("byte %d: decrypt counter advanced", idx)
		}
	}

	// A shorter length with the same trailing bytes is still well framed
	// but must not authenticate.
	_, acc := newPair(t)
	tampered := append([]byte{}, frame...)
	tampered[0]--
	tampered = tampered[:len(tampered)-1]
	if _, err := acc.Decrypt(tampered); !errors.Is(err, pairing.ErrAuthenticationFailure) {
		t.Errorf("length tamper error = %v, want authentication failure", err)
	}
}

func TestCipherDecryptAllOrNothing(t *testing.T) {
	ctrl, acc := newPair(t)

	first, err := ctrl.Encrypt([]byte("first"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := ctrl.Encrypt([]byte("second"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second[len(second)-1] ^= 0xff

	if _, err := acc.Decrypt(append(append([]byte{}, first...), second...)); err == nil {
		t.Fatal("expected error for tampered second block")
	}
	if _, dec := acc.Counters(); dec != 0 {
		t.Errorf("decrypt counter = %d, want 0", dec)
	}

	// The first block is still acceptable at counter 0.
	got, err := acc.Decrypt(first)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("plaintext = %q", got)
	}
}

func TestCipherReplayRejected(t *testing.T) {
	ctrl, acc := newPair(t)
	frame, err := ctrl.Encrypt([]byte("once"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := acc.Decrypt(frame); err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if _, err := acc.Decrypt(frame); !errors.Is(err, pairing.ErrAuthenticationFailure) {
		t.Errorf("replay error = %v, want authentication failure", err)
	}
}

func TestCipherReadBlock(t *testing.T) {
	ctrl, acc := newPair(t)

	frames, err := ctrl.Encrypt(bytes.Repeat([]byte{0xaa}, MaxBlockSize+10))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	r := bytes.NewReader(frames)

	b1, err := acc.ReadBlock(r)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if len(b1) != MaxBlockSize {
		t.Errorf("first block = %d bytes, want %d", len(b1), MaxBlockSize)
	}
	b2, err := acc.ReadBlock(r)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if len(b2) != 10 {
		t.Errorf("second block = %d bytes, want 10", len(b2))
	}
	if _, err := acc.ReadBlock(r); err != io.EOF {
		t.Errorf("ReadBlock at end = %v, want io.EOF", err)
	}

	truncated := bytes.NewReader(frames[:20])
	_, fresh := newPair(t)
	if _, err := fresh.ReadBlock(truncated); err != io.ErrUnexpectedEOF {
		t.Errorf("ReadBlock truncated = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestCipherClose(t *testing.T) {
	ctrl, acc := newPair(t)
	frame, err := ctrl.Encrypt([]byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	ctrl.Close()
	acc.Close()

	if _, err := ctrl.Encrypt([]byte("hi")); !errors.Is(err, ErrClosed) {
		t.Errorf("Encrypt after Close = %v, want ErrClosed", err)
	}
	if _, err := acc.Decrypt(frame); !errors.Is(err, ErrClosed) {
		t.Errorf("Decrypt after Close = %v, want ErrClosed", err)
	}
}

func TestCipherCounterExhausted(t *testing.T) {
	ctrl, _ := newPair(t)
	ctrl.encCounter = ^uint64(0)

	_, err := ctrl.Encrypt([]byte("late"))
	if !errors.Is(err, ErrCounterExhausted) {
		t.Errorf("error = %v, want ErrCounterExhausted", err)
	}
}

func TestNewCipherInvalidSecret(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewCipher(make([]byte, n)); pairing.KindOf(err) != pairing.KindInvalidInput {
			t.Errorf("NewCipher(%d bytes) error = %v, want InvalidInput", n, err)
		}
	}
}

func TestCipherConcurrentDirections(t *testing.T) {
	ctrl, acc := newPair(t)

	const n = 50
	requests := make([][]byte, n)
	responses := make([][]byte, n)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f, err := ctrl.Encrypt([]byte{byte(i)})
			if err != nil {
				t.Errorf("Encrypt failed: %v", err)
				return
			}
			requests[i] = f
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f, err := acc.Encrypt([]byte{byte(i)})
			if err != nil {
				t.Errorf("Encrypt failed: %v", err)
				return
			}
			responses[i] = f
		}
	}()
	wg.Wait()

	for i := 0; i < n; i++ {
		if pt, err := acc.Decrypt(requests[i]); err != nil || pt[0] != byte(i) {
			t.Fatalf("request %d: %v", i, err)
		}
		if pt, err := ctrl.Decrypt(responses[i]); err != nil || pt[0] != byte(i) {
			t.Fatalf("response %d: %v", i, err)
		}
	}
}
