package setup

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv8"
	"github.com/pion/logging"
)

// Config configures a pair-setup session.
type Config struct {
	// PIN is the accessory setup code. Exactly 4 bytes.
	PIN []byte

	// DeviceID is the controller identifier. Exactly 16 bytes.
	DeviceID string

	// Method is MethodPairSetup (default) or MethodPairSetupWithAuth.
	Method pairing.Method

	// Group is the SRP group. Defaults to srp.Group3072.
	Group *srp.Group

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session implements the controller side of pair-setup. Each session is
// single-use; after a failure a new session must be created.
type Session struct {
	state  State
	method pairing.Method
	group  *srp.Group

	pin      []byte
	deviceID string

	srp        *srp.Client
	sessionKey []byte // K, available after M4

	identity  *crypto.Ed25519KeyPair
	accessory pairing.Peer

	lastErr error

	// For testing: injectable random source
	rand io.Reader
	log  logging.LeveledLogger

	mu sync.Mutex
}

// NewSession creates a pair-setup session.
func NewSession(config Config) (*Session, error) {
	if len(config.PIN) != pairing.PINSize {
		return nil, pairing.Errorf(pairing.KindInvalidInput, "pair-setup", "PIN is %d bytes, want %d", len(config.PIN), pairing.PINSize)
	}
	if len(config.DeviceID) != pairing.DeviceIDSize {
		return nil, pairing.Errorf(pairing.KindInvalidInput, "pair-setup", "device id is %d bytes, want %d", len(config.DeviceID), pairing.DeviceIDSize)
	}
	if config.Method != pairing.MethodPairSetup && config.Method != pairing.MethodPairSetupWithAuth {
		return nil, pairing.Errorf(pairing.KindInvalidInput, "pair-setup", "method %s is not a pair-setup method", config.Method)
	}

	s := &Session{
		state:    StateInit,
		method:   config.Method,
		group:    config.Group,
		pin:      append([]byte(nil), config.PIN...),
		deviceID: config.DeviceID,
		rand:     rand.Reader,
	}
	if s.group == nil {
		s.group = srp.Group3072
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("pair-setup")
	}
	return s, nil
}

// SetRandom sets the random source for the SRP secret and the identity key.
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

// ErrMessage returns the human-readable message of the last failure, or "".
func (s *Session) ErrMessage() string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Start builds M1.
func (s *Session) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateInit, "M1"); err != nil {
		return nil, err
	}

	client, err := srp.NewClient(s.group, crypto.SHA512Hash, pairing.SRPUsername, s.pin)
	if err != nil {
		return nil, s.fail(pairing.NewError(pairing.KindInvalidInput, "pair-setup M1", "SRP client", err))
	}
	client.SetRandom(s.rand)
	s.srp = client

	msg := tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M1).
		PutByte(pairing.TypeMethod, byte(s.method)).
		Bytes()

	if s.log != nil {
		s.log.Debugf("M1: method=%s group=%s", s.method, s.group)
	}
	s.state = StateM1Sent
	return msg, nil
}

// HandleM2 consumes the accessory's SRP challenge and builds M3.
func (s *Session) HandleM2(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "pair-setup M2"
	if err := s.expect(StateM1Sent, "M2"); err != nil {
		return nil, err
	}

	c, err := pairing.ParseResponse(op, data, pairing.M2)
	if err != nil {
		return nil, s.fail(err)
	}
	B, err := pairing.Require(op, c, pairing.TypePublicKey, "public key")
	if err != nil {
		return nil, s.fail(err)
	}
	if len(B) == 0 || len(B) > s.group.Size() {
		return nil, s.fail(pairing.Errorf(pairing.KindProtocolViolation, op, "public key is %d bytes, want 1..%d", len(B), s.group.Size()))
	}
	salt, err := pairing.RequireLen(op, c, pairing.TypeSalt, "salt", 16)
	if err != nil {
		return nil, s.fail(err)
	}

	_, A, err := s.srp.StartAuthentication()
	if err != nil {
		return nil, s.fail(pairing.NewError(pairing.KindCryptoPrimitive, op, "SRP start", err))
	}
	proof, err := s.srp.ProcessChallenge(salt, B)
	if err != nil {
		kind := pairing.KindCryptoPrimitive
		if errors.Is(err, srp.ErrUnsafeServerValue) {
			kind = pairing.KindAuthentication
		} else if errors.Is(err, srp.ErrOperandTooLong) || errors.Is(err, srp.ErrEmptyChallenge) {
			kind = pairing.KindProtocolViolation
		}
		return nil, s.fail(pairing.NewError(kind, op, "SRP challenge rejected", err))
	}

	msg := tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M3).
		Put(pairing.TypePublicKey, A).
		Put(pairing.TypeProof, proof).
		Bytes()

	if s.log != nil {
		s.log.Debugf("M3: sending SRP public key (%d bytes) and proof", len(A))
	}
	s.state = StateM3Sent
	return msg, nil
}

// HandleM4 verifies the accessory's SRP proof and builds M5.
func (s *Session) HandleM4(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "pair-setup M4"
	if err := s.expect(StateM3Sent, "M4"); err != nil {
		return nil, err
	}

	c, err := pairing.ParseResponse(op, data, pairing.M4)
	if err != nil {
		return nil, s.fail(err)
	}
	proof, err := pairing.Require(op, c, pairing.TypeProof, "proof")
	if err != nil {
		return nil, s.fail(err)
	}
	if !s.srp.VerifySession(proof) {
		return nil, s.fail(pairing.NewError(pairing.KindAuthentication, op, "Server authentication failed", nil))
	}
	if s.sessionKey, err = s.srp.SessionKey(); err != nil {
		return nil, s.fail(pairing.NewError(pairing.KindCryptoPrimitive, op, "SRP session key", err))
	}

	encrypted, err := s.buildM5Payload()
	if err != nil {
		return nil, s.fail(err)
	}

	msg := tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M5).
		Put(pairing.TypeEncryptedData, encrypted).
		Bytes()

	if s.log != nil {
		s.log.Debugf("M5: accessory proof accepted, sending controller identity %s", s.deviceID)
	}
	s.state = StateM5Sent
	return msg, nil
}

// buildM5Payload signs the controller identity and seals it for M5.
func (s *Session) buildM5Payload() ([]byte, error) {
	const op = "pair-setup M5"

	deviceX, err := pairing.Derive(pairing.PurposeSetupControllerSign, s.sessionKey, 32)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(deviceX)

	s.identity, err = crypto.Ed25519GenerateKeyPair(s.rand)
	if err != nil {
		return nil, pairing.NewError(pairing.KindCryptoPrimitive, op, "identity key", err)
	}
	publicKey := s.identity.PublicKey()

	info := pairing.DeviceInfo(deviceX, []byte(s.deviceID), publicKey)
	signature := s.identity.Sign(info)
	crypto.Wipe(info)

	sub := tlv8.NewBuilder().
		PutString(pairing.TypeIdentifier, s.deviceID).
		Put(pairing.TypeSignature, signature).
		Put(pairing.TypePublicKey, publicKey).
		Bytes()

	key, err := pairing.DeriveKey(pairing.PurposeSetupMsg05, s.sessionKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	return pairing.Seal(pairing.PurposeSetupMsg05, key, sub)
}

// HandleM6 decrypts and verifies the accessory identity. On success the
// session is done and Result is available.
func (s *Session) HandleM6(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "pair-setup M6"
	if err := s.expect(StateM5Sent, "M6"); err != nil {
		return err
	}

	c, err := pairing.ParseResponse(op, data, pairing.M6)
	if err != nil {
		return s.fail(err)
	}
	encrypted, err := pairing.Require(op, c, pairing.TypeEncryptedData, "encrypted data")
	if err != nil {
		return s.fail(err)
	}

	key, err := pairing.DeriveKey(pairing.PurposeSetupMsg06, s.sessionKey)
	if err != nil {
		return s.fail(err)
	}
	plaintext, err := pairing.Open(pairing.PurposeSetupMsg06, key, encrypted)
	crypto.Wipe(key)
	if err != nil {
		return s.fail(err)
	}

	sub, err := tlv8.Decode(plaintext)
	if err != nil {
		return s.fail(pairing.NewError(pairing.KindProtocolViolation, op, "malformed encrypted TLV", err))
	}
	id, err := pairing.Require(op, sub, pairing.TypeIdentifier, "accessory identifier")
	if err != nil {
		return s.fail(err)
	}
	if len(id) == 0 {
		return s.fail(pairing.Errorf(pairing.KindProtocolViolation, op, "empty accessory identifier"))
	}
	publicKey, err := pairing.RequireLen(op, sub, pairing.TypePublicKey, "accessory public key", crypto.Ed25519PublicKeySize)
	if err != nil {
		return s.fail(err)
	}
	signature, err := pairing.RequireLen(op, sub, pairing.TypeSignature, "accessory signature", crypto.Ed25519SignatureSize)
	if err != nil {
		return s.fail(err)
	}

	accessoryX, err := pairing.Derive(pairing.PurposeSetupAccessorySign, s.sessionKey, 32)
	if err != nil {
		return s.fail(err)
	}
	info := pairing.DeviceInfo(accessoryX, id, publicKey)
	crypto.Wipe(accessoryX)
	if err := crypto.Ed25519Verify(publicKey, info, signature); err != nil {
		return s.fail(pairing.NewError(pairing.KindAuthentication, op, "accessory signature verification failed", err))
	}

	s.accessory = pairing.Peer{
		ID:          string(id),
		PublicKey:   append([]byte(nil), publicKey...),
		Permissions: pairing.PermissionAdmin,
	}
	crypto.Wipe(s.sessionKey)
	s.srp.Close()
	s.state = StateDone

	if s.log != nil {
		s.log.Infof("paired with accessory %s", s.accessory.ID)
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
		return s.HandleM4(data)
	case StateM5Sent:
		return nil, s.HandleM6(data)
	default:
		return nil, pairing.NewError(pairing.KindProtocolViolation, "pair-setup", fmt.Sprintf("no response expected in state %s", s.State()), pairing.ErrInvalidState)
	}
}

// Result returns the controller key pair and accessory identity.
// Only valid in StateDone.
func (s *Session) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDone {
		return nil, pairing.NewError(pairing.KindProtocolViolation, "pair-setup", fmt.Sprintf("result requested in state %s", s.state), pairing.ErrInvalidState)
	}
	return &Result{
		AuthorisationKey: s.identity.Hex(),
		Accessory: pairing.Peer{
			ID:          s.accessory.ID,
			PublicKey:   append([]byte(nil), s.accessory.PublicKey...),
			Permissions: s.accessory.Permissions,
		},
	}, nil
}

// Close zeroes the setup code, the SRP state and the identity key.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	crypto.Wipe(s.pin)
	crypto.Wipe(s.sessionKey)
	if s.srp != nil {
		s.srp.Close()
	}
	if s.identity != nil {
		s.identity.Close()
	}
}

// expect checks the session is in want before handling message msg.
func (s *Session) expect(want State, msg string) error {
	if s.state == want {
		return nil
	}
	return pairing.NewError(pairing.KindProtocolViolation, "pair-setup "+msg,
		fmt.Sprintf("expected %s state, got %s", want, s.state), pairing.ErrInvalidState)
}

// fail moves the session to StateFailed and records err. Must be called
// with mu held.
func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.lastErr = err
	crypto.Wipe(s.sessionKey)
	if s.srp != nil {
		s.srp.Close()
	}
	if s.identity != nil {
		s.identity.Close()
	}
	if s.log != nil {
		s.log.Warnf("pair-setup failed: %v", err)
	}
	return err
}
