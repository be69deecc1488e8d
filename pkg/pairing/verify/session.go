package verify

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/logging"
)

// Config configures a pair-verify session.
type Config struct {
	// AuthorisationKey is the controller identity from pair-setup:
	// hex(public key || private key), 192 characters.
	AuthorisationKey string

	// DeviceID is the controller identifier used at pair-setup. Exactly 16 bytes.
	DeviceID string

	// Accessory is the accessory identity stored at pair-setup.
	Accessory pairing.Peer

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session implements the controller side of pair-verify.
type Session struct {
	state State

	deviceID  string
	identity  *crypto.Ed25519KeyPair
	accessory pairing.Peer

	ephemeral    *crypto.X25519KeyPair
	accEphemeral []byte
	shared       []byte

	lastErr error

	// For testing: injectable random source
	rand io.Reader
	log  logging.LeveledLogger

	mu sync.Mutex
}

// NewSession creates a pair-verify session for one connection.
func NewSession(config Config) (*Session, error) {
	const op = "pair-verify"

	if len(config.DeviceID) != pairing.DeviceIDSize {
		return nil, pairing.Errorf(pairing.KindInvalidInput, op, "device id is %d bytes, want %d", len(config.DeviceID), pairing.DeviceIDSize)
	}
	if err := config.Accessory.Validate(); err != nil {
		return nil, err
	}
	identity, err := crypto.Ed25519KeyPairFromHex(config.AuthorisationKey)
	if err != nil {
		return nil, pairing.NewError(pairing.KindInvalidInput, op, "authorisation key", err)
	}

	s := &Session{
		state:    StateInit,
		deviceID: config.DeviceID,
		identity: identity,
		accessory: pairing.Peer{
			ID:          config.Accessory.ID,
			PublicKey:   append([]byte(nil), config.Accessory.PublicKey...),
			Permissions: config.Accessory.Permissions,
		},
		rand: rand.Reader,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("pair-verify")
	}
	return s, nil
}

// SetRandom sets the random source for the ephemeral key.
// This is intended for deterministic tests and must be called before Start.
func (s *Session) SetRandom(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateFailed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start generates the ephemeral key pair and builds M1.
func (s *Session) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateInit, "M1"); err != nil {
		return nil, err
	}

	kp, err := crypto.X25519GenerateKeyPair(s.rand)
	if err != nil {
		return nil, s.fail(pairing.NewError(pairing.KindCryptoPrimitive, "pair-verify M1", "ephemeral key", err))
	}
	s.ephemeral = kp

	msg := tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M1).
		Put(pairing.TypePublicKey, kp.PublicKey()).
		Bytes()

	if s.log != nil {
		s.log.Debugf("M1: verifying accessory %s", s.accessory.ID)
	}
	s.state = StateM1Sent
	return msg, nil
}

// HandleM2 computes the shared secret, authenticates the accessory and
// builds M3.
func (s *Session) HandleM2(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "pair-verify M2"
	if err := s.expect(StateM1Sent, "M2"); err != nil {
		return nil, err
	}

	c, err := pairing.ParseResponse(op, data, pairing.M2)
	if err != nil {
		return nil, s.fail(err)
	}
	encrypted, err := pairing.Require(op, c, pairing.TypeEncryptedData, "encrypted data")
	if err != nil {
		return nil, s.fail(err)
	}
	accEph, err := pairing.RequireLen(op, c, pairing.TypePublicKey, "public key", crypto.X25519KeySize)
	if err != nil {
		return nil, s.fail(err)
	}
	s.accEphemeral = append([]byte(nil), accEph...)

	s.shared, err = s.ephemeral.SharedSecret(s.accEphemeral)
	if err != nil {
		return nil, s.fail(pairing.NewError(pairing.KindCryptoPrimitive, op, "X25519", err))
	}

	if err := s.verifyAccessory(encrypted); err != nil {
		return nil, s.fail(err)
	}

	encryptedM3, err := s.buildM3Payload()
	if err != nil {
		return nil, s.fail(err)
	}

	msg := tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M3).
		Put(pairing.TypeEncryptedData, encryptedM3).
		Bytes()

	if s.log != nil {
		s.log.Debugf("M3: accessory %s authenticated", s.accessory.ID)
	}
	s.state = StateM3Sent
	return msg, nil
}

// verifyAccessory opens the M2 payload and checks the accessory signed
// accessory ephemeral || accessory id || controller ephemeral.
func (s *Session) verifyAccessory(encrypted []byte) error {
	const op = "pair-verify M2"

	key, err := pairing.DeriveKey(pairing.PurposeVerifyMsg02, s.shared)
	if err != nil {
		return err
	}
	plaintext, err := pairing.Open(pairing.PurposeVerifyMsg02, key, encrypted)
	crypto.Wipe(key)
	if err != nil {
		return err
	}

	sub, err := tlv8.Decode(plaintext)
	if err != nil {
		return pairing.NewError(pairing.KindProtocolViolation, op, "malformed encrypted TLV", err)
	}
	id, err := pairing.Require(op, sub, pairing.TypeIdentifier, "accessory identifier")
	if err != nil {
		return err
	}
	signature, err := pairing.RequireLen(op, sub, pairing.TypeSignature, "accessory signature", crypto.Ed25519SignatureSize)
	if err != nil {
		return err
	}

	if !bytes.Equal(id, []byte(s.accessory.ID)) {
		return pairing.Errorf(pairing.KindAuthentication, op, "accessory identifier %q does not match paired accessory %q", id, s.accessory.ID)
	}
	info := pairing.DeviceInfo(s.accEphemeral, id, s.ephemeral.PublicKey())
	if err := crypto.Ed25519Verify(s.accessory.PublicKey, info, signature); err != nil {
		return pairing.NewError(pairing.KindAuthentication, op, "accessory signature verification failed", err)
	}
	return nil
}

// buildM3Payload signs controller ephemeral || device id || accessory
// ephemeral and seals it for M3.
func (s *Session) buildM3Payload() ([]byte, error) {
	info := pairing.DeviceInfo(s.ephemeral.PublicKey(), []byte(s.deviceID), s.accEphemeral)
	signature := s.identity.Sign(info)

	sub := tlv8.NewBuilder().
		PutString(pairing.TypeIdentifier, s.deviceID).
		Put(pairing.TypeSignature, signature).
		Bytes()

	key, err := pairing.DeriveKey(pairing.PurposeVerifyMsg03, s.shared)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	return pairing.Seal(pairing.PurposeVerifyMsg03, key, sub)
}

// HandleM4 checks the accessory accepted M3.
func (s *Session) HandleM4(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateM3Sent, "M4"); err != nil {
		return err
	}
	if _, err := pairing.ParseResponse("pair-verify M4", data, pairing.M4); err != nil {
		return s.fail(err)
	}

	s.ephemeral.Close()
	s.state = StateDone
	if s.log != nil {
		s.log.Infof("verified accessory %s", s.accessory.ID)
	}
	return nil
}

// HandleMessage dispatches an accessory response to the handler for the
// current state. It returns the next request, or nil once the session is
// done.
func (s *Session) HandleMessage(data []byte) ([]byte, error) {
	switch s.State() {
	case StateM1Sent:
		return s.HandleM2(data)
	case StateM3Sent:
		return nil, s.HandleM4(data)
	default:
		return nil, pairing.NewError(pairing.KindProtocolViolation, "pair-verify", fmt.Sprintf("no response expected in state %s", s.State()), pairing.ErrInvalidState)
	}
}

// SharedSecret returns the X25519 shared secret. Only valid in StateDone.
func (s *Session) SharedSecret() (SharedSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out SharedSecret
	if s.state != StateDone {
		return out, pairing.NewError(pairing.KindProtocolViolation, "pair-verify", fmt.Sprintf("shared secret requested in state %s", s.state), pairing.ErrInvalidState)
	}
	copy(out[:], s.shared)
	return out, nil
}

// Close zeroes the identity key, the ephemeral key and the shared secret.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity.Close()
	if s.ephemeral != nil {
		s.ephemeral.Close()
	}
	crypto.Wipe(s.shared)
}

// expect checks the session is in want before handling message msg.
func (s *Session) expect(want State, msg string) error {
	if s.state == want {
		return nil
	}
	return pairing.NewError(pairing.KindProtocolViolation, "pair-verify "+msg,
		fmt.Sprintf("expected %s state, got %s", want, s.state), pairing.ErrInvalidState)
}

// fail moves the session to StateFailed and records err. Must be called
// with mu held.
func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.lastErr = err
	crypto.Wipe(s.shared)
	if s.ephemeral != nil {
		s.ephemeral.Close()
	}
	if s.log != nil {
		s.log.Warnf("pair-verify failed: %v", err)
	}
	return err
}
