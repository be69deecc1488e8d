package pairing

import (
	"fmt"

	"github.com/backkem/hap/pkg/crypto"
)

// Purpose names one entry of the HKDF derivation table. Callers select keys
// and nonces by purpose, never by raw salt or info strings.
type Purpose int

const (
	// PurposeSetupMsg05 encrypts the controller's pair-setup M5 payload.
	PurposeSetupMsg05 Purpose = iota
	// PurposeSetupMsg06 decrypts the accessory's pair-setup M6 payload.
	PurposeSetupMsg06
	// PurposeSetupControllerSign derives the X the controller signs in M5.
	PurposeSetupControllerSign
	// PurposeSetupAccessorySign derives the X the accessory signs in M6.
	PurposeSetupAccessorySign
	// PurposeVerifyMsg02 decrypts the accessory's pair-verify M2 payload.
	PurposeVerifyMsg02
	// PurposeVerifyMsg03 encrypts the controller's pair-verify M3 payload.
	PurposeVerifyMsg03
	// PurposeControlWrite is the controller-to-accessory transport key.
	PurposeControlWrite
	// PurposeControlRead is the accessory-to-controller transport key.
	PurposeControlRead

	purposeCount
)

type derivation struct {
	name  string
	salt  string
	info  string
	nonce string
}

var derivations = [purposeCount]derivation{
	PurposeSetupMsg05:          {"SetupMsg05", "Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", "PS-Msg05"},
	PurposeSetupMsg06:          {"SetupMsg06", "Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", "PS-Msg06"},
	PurposeSetupControllerSign: {"SetupControllerSign", "Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info", ""},
	PurposeSetupAccessorySign:  {"SetupAccessorySign", "Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info", ""},
	PurposeVerifyMsg02:         {"VerifyMsg02", "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", "PV-Msg02"},
	PurposeVerifyMsg03:         {"VerifyMsg03", "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", "PV-Msg03"},
	PurposeControlWrite:        {"ControlWrite", "Control-Salt", "Control-Write-Encryption-Key", ""},
	PurposeControlRead:         {"ControlRead", "Control-Salt", "Control-Read-Encryption-Key", ""},
}

// String returns the string representation of the purpose.
func (p Purpose) String() string {
	if !p.valid() {
		return fmt.Sprintf("Purpose(%d)", int(p))
	}
	return derivations[p].name
}

func (p Purpose) valid() bool {
	return p >= 0 && p < purposeCount
}

// Salt returns the HKDF salt of the purpose.
func (p Purpose) Salt() []byte {
	if !p.valid() {
		return nil
	}
	return []byte(derivations[p].salt)
}

// Info returns the HKDF info of the purpose.
func (p Purpose) Info() []byte {
	if !p.valid() {
		return nil
	}
	return []byte(derivations[p].info)
}

// Derive runs HKDF-SHA512 over ikm with the purpose's salt and info.
//
// Parameters:
//   - p: table entry
//   - ikm: input keying material (SRP session key or X25519 shared secret)
//   - length: output length, 1..64
func Derive(p Purpose, ikm []byte, length int) ([]byte, error) {
	const op = "derive"
	if !p.valid() {
		return nil, Errorf(KindInvalidInput, op, "unknown purpose %d", int(p))
	}
	if len(ikm) == 0 {
		return nil, Errorf(KindInvalidInput, op, "%s: empty input key", p)
	}
	if length <= 0 || length > crypto.SHA512LenBytes {
		return nil, Errorf(KindInvalidInput, op, "%s: output length %d out of range", p, length)
	}

	d := derivations[p]
	out, err := crypto.HKDFSHA512(ikm, []byte(d.salt), []byte(d.info), length)
	if err != nil {
		return nil, NewError(KindCryptoPrimitive, op, p.String(), err)
	}
	return out, nil
}

// DeriveKey derives a 32-byte symmetric key for the purpose.
func DeriveKey(p Purpose, ikm []byte) ([]byte, error) {
	return Derive(p, ikm, KeySize)
}

// Nonce returns the 12-byte handshake nonce of the purpose:
// four zero bytes followed by the ASCII message tag.
func Nonce(p Purpose) ([crypto.NonceSize]byte, error) {
	if !p.valid() || derivations[p].nonce == "" {
		return [crypto.NonceSize]byte{}, Errorf(KindInvalidInput, "nonce", "%s has no nonce tag", p)
	}
	var tag [crypto.NonceTagSize]byte
	copy(tag[:], derivations[p].nonce)
	return crypto.TagNonce(tag), nil
}

// Seal encrypts a handshake sub-TLV under key with the purpose's nonce and
// no associated data. The tag is appended to the ciphertext.
func Seal(p Purpose, key, plaintext []byte) ([]byte, error) {
	nonce, err := Nonce(p)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.SealCombined(key, nonce, plaintext, nil)
	if err != nil {
		return nil, NewError(KindCryptoPrimitive, "seal", p.String(), err)
	}
	return sealed, nil
}

// Open reverses Seal. Input shorter than a tag is a protocol violation; a
// tag mismatch is an authentication failure.
func Open(p Purpose, key, sealed []byte) ([]byte, error) {
	nonce, err := Nonce(p)
	if err != nil {
		return nil, err
	}
	if len(sealed) < crypto.TagSize {
		return nil, Errorf(KindProtocolViolation, "open", "%s: encrypted data shorter than tag (%d bytes)", p, len(sealed))
	}
	plaintext, err := crypto.OpenCombined(key, nonce, sealed, nil)
	if err != nil {
		return nil, NewError(KindAuthentication, "open", p.String(), err)
	}
	return plaintext, nil
}
