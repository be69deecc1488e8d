package pairtest

import (
	"io"
	"math/big"
	"sync"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/tlv8"
)

// Handler is the accessory side of one connection. Protocol failures are
// answered with an Error item; the returned error is reserved for
// requests that cannot be answered at all.
type Handler struct {
	acc *Accessory

	mu sync.Mutex

	// pair-setup
	salt          []byte
	verifier      *big.Int
	b             *big.Int
	B             *big.Int
	K             []byte
	authenticated bool
	paired        bool

	// pair-verify
	ephemeral  *crypto.X25519KeyPair
	ctrlEph    []byte
	shared     []byte
	controller string
	verified   bool
}

// SetupAuthenticated reports whether the controller's SRP proof was accepted.
func (h *Handler) SetupAuthenticated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authenticated
}

// Paired reports whether pair-setup completed on this connection.
func (h *Handler) Paired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paired
}

// SharedSecret returns the pair-verify shared secret once M3 was accepted.
func (h *Handler) SharedSecret() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.verified {
		return nil, false
	}
	return append([]byte(nil), h.shared...), true
}

// VerifiedController returns the identifier of the controller that
// completed pair-verify on this connection.
func (h *Handler) VerifiedController() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controller, h.verified
}

// HandlePairSetup answers one pair-setup request.
func (h *Handler) HandlePairSetup(req []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := tlv8.Decode(req)
	if err != nil {
		return nil, err
	}
	state, _ := c.Byte(pairing.TypeState)
	switch state {
	case pairing.M1:
		return h.setupM2(c)
	case pairing.M3:
		return h.setupM4(c)
	case pairing.M5:
		return h.setupM6(c)
	default:
		return errorResponse(state+1, pairing.ErrorCodeUnknown, 0), nil
	}
}

func (h *Handler) setupM2(c tlv8.Container) ([]byte, error) {
	opts := h.acc.opts
	if opts.SetupError != 0 {
		return errorResponse(pairing.M2, opts.SetupError, opts.RetryDelay), nil
	}
	method, _ := c.Byte(pairing.TypeMethod)
	if pairing.Method(method) != pairing.MethodPairSetup && pairing.Method(method) != pairing.MethodPairSetupWithAuth {
		return errorResponse(pairing.M2, pairing.ErrorCodeUnavailable, 0), nil
	}

	h.salt = opts.Salt
	if h.salt == nil {
		h.salt = make([]byte, 16)
		if _, err := io.ReadFull(opts.Random, h.salt); err != nil {
			return nil, err
		}
	}

	g := opts.Group
	x := srp.ComputeX(crypto.SHA512Hash, h.salt, []byte(pairing.SRPUsername), []byte(opts.PIN))
	h.verifier = srp.ComputeVerifier(g, x)

	secret := make([]byte, srp.EphemeralSizeBytes)
	if _, err := io.ReadFull(opts.Random, secret); err != nil {
		return nil, err
	}
	h.b = new(big.Int).SetBytes(secret)

	kBytes, err := srp.ComputeK(crypto.SHA512Hash, g)
	if err != nil {
		return nil, err
	}
	// B = (k*v + g^b) mod N
	k := new(big.Int).SetBytes(kBytes)
	h.B = new(big.Int).Mul(k, h.verifier)
	h.B.Add(h.B, new(big.Int).Exp(g.G, h.b, g.N))
	h.B.Mod(h.B, g.N)

	return tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M2).
		Put(pairing.TypePublicKey, h.B.Bytes()).
		Put(pairing.TypeSalt, h.salt).
		Bytes(), nil
}

func (h *Handler) setupM4(c tlv8.Container) ([]byte, error) {
	g := h.acc.opts.Group
	if h.B == nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeUnknown, 0), nil
	}
	aBytes, ok := c.Get(pairing.TypePublicKey)
	if !ok {
		return errorResponse(pairing.M4, pairing.ErrorCodeUnknown, 0), nil
	}
	proof, ok := c.Get(pairing.TypeProof)
	if !ok {
		return errorResponse(pairing.M4, pairing.ErrorCodeUnknown, 0), nil
	}

	A := new(big.Int).SetBytes(aBytes)
	if new(big.Int).Mod(A, g.N).Sign() == 0 {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	uBytes, err := srp.ComputeU(crypto.SHA512Hash, g, A, h.B)
	if err != nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	u := new(big.Int).SetBytes(uBytes)

	// S = (A * v^u) ^ b mod N
	S := new(big.Int).Exp(h.verifier, u, g.N)
	S.Mul(S, A)
	S.Mod(S, g.N)
	S.Exp(S, h.b, g.N)
	h.K = crypto.SHA512Hash.Sum(S.Bytes())

	want := srp.ComputeM1(crypto.SHA512Hash, g, []byte(pairing.SRPUsername), h.salt, A, h.B, h.K)
	if !crypto.HMACEqual(want, proof) {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	h.authenticated = true

	serverProof := srp.ComputeM2(crypto.SHA512Hash, A, proof, h.K)
	if h.acc.opts.WrongProof {
		serverProof[0] ^= 0x01
	}
	return tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M4).
		Put(pairing.TypeProof, serverProof).
		Bytes(), nil
}

func (h *Handler) setupM6(c tlv8.Container) ([]byte, error) {
	if !h.authenticated {
		return errorResponse(pairing.M6, pairing.ErrorCodeAuthentication, 0), nil
	}
	encrypted, ok := c.Get(pairing.TypeEncryptedData)
	if !ok {
		return errorResponse(pairing.M6, pairing.ErrorCodeUnknown, 0), nil
	}

	key, err := pairing.DeriveKey(pairing.PurposeSetupMsg05, h.K)
	if err != nil {
		return nil, err
	}
	plaintext, err := pairing.Open(pairing.PurposeSetupMsg05, key, encrypted)
	if err != nil {
		return errorResponse(pairing.M6, pairing.ErrorCodeAuthentication, 0), nil
	}
	sub, err := tlv8.Decode(plaintext)
	if err != nil {
		return errorResponse(pairing.M6, pairing.ErrorCodeUnknown, 0), nil
	}
	id, _ := sub.Get(pairing.TypeIdentifier)
	ltpk, _ := sub.Get(pairing.TypePublicKey)
	signature, _ := sub.Get(pairing.TypeSignature)

	controllerX, err := pairing.Derive(pairing.PurposeSetupControllerSign, h.K, 32)
	if err != nil {
		return nil, err
	}
	if err := crypto.Ed25519Verify(ltpk, pairing.DeviceInfo(controllerX, id, ltpk), signature); err != nil {
		return errorResponse(pairing.M6, pairing.ErrorCodeAuthentication, 0), nil
	}
	h.acc.AddController(pairing.Peer{
		ID:          string(id),
		PublicKey:   append([]byte(nil), ltpk...),
		Permissions: pairing.PermissionAdmin,
	})

	accessoryX, err := pairing.Derive(pairing.PurposeSetupAccessorySign, h.K, 32)
	if err != nil {
		return nil, err
	}
	accID := []byte(h.acc.opts.ID)
	accLTPK := h.acc.identity.PublicKey()
	accSignature := h.acc.identity.Sign(pairing.DeviceInfo(accessoryX, accID, accLTPK))
	if h.acc.opts.BadSetupSignature {
		accSignature[0] ^= 0x01
	}

	reply := tlv8.NewBuilder().
		Put(pairing.TypeIdentifier, accID).
		Put(pairing.TypePublicKey, accLTPK).
		Put(pairing.TypeSignature, accSignature).
		Bytes()
	key, err = pairing.DeriveKey(pairing.PurposeSetupMsg06, h.K)
	if err != nil {
		return nil, err
	}
	sealed, err := pairing.Seal(pairing.PurposeSetupMsg06, key, reply)
	if err != nil {
		return nil, err
	}

	h.paired = true
	return tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M6).
		Put(pairing.TypeEncryptedData, sealed).
		Bytes(), nil
}

// HandlePairVerify answers one pair-verify request.
func (h *Handler) HandlePairVerify(req []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := tlv8.Decode(req)
	if err != nil {
		return nil, err
	}
	state, _ := c.Byte(pairing.TypeState)
	switch state {
	case pairing.M1:
		return h.verifyM2(c)
	case pairing.M3:
		return h.verifyM4(c)
	default:
		return errorResponse(state+1, pairing.ErrorCodeUnknown, 0), nil
	}
}

func (h *Handler) verifyM2(c tlv8.Container) ([]byte, error) {
	ctrlEph, ok := c.Get(pairing.TypePublicKey)
	if !ok || len(ctrlEph) != crypto.X25519KeySize {
		return errorResponse(pairing.M2, pairing.ErrorCodeUnknown, 0), nil
	}

	eph, err := crypto.X25519GenerateKeyPair(h.acc.opts.Random)
	if err != nil {
		return nil, err
	}
	shared, err := eph.SharedSecret(ctrlEph)
	if err != nil {
		return errorResponse(pairing.M2, pairing.ErrorCodeAuthentication, 0), nil
	}
	h.ephemeral = eph
	h.ctrlEph = append([]byte(nil), ctrlEph...)
	h.shared = shared
	h.verified = false

	accID := []byte(h.acc.opts.ID)
	signature := h.acc.identity.Sign(pairing.DeviceInfo(eph.PublicKey(), accID, ctrlEph))
	if h.acc.opts.BadVerifySignature {
		signature[0] ^= 0x01
	}

	sub := tlv8.NewBuilder().
		Put(pairing.TypeIdentifier, accID).
		Put(pairing.TypeSignature, signature).
		Bytes()
	key, err := pairing.DeriveKey(pairing.PurposeVerifyMsg02, shared)
	if err != nil {
		return nil, err
	}
	sealed, err := pairing.Seal(pairing.PurposeVerifyMsg02, key, sub)
	if err != nil {
		return nil, err
	}

	return tlv8.NewBuilder().
		PutByte(pairing.TypeState, pairing.M2).
		Put(pairing.TypePublicKey, eph.PublicKey()).
		Put(pairing.TypeEncryptedData, sealed).
		Bytes(), nil
}

func (h *Handler) verifyM4(c tlv8.Container) ([]byte, error) {
	if h.shared == nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	encrypted, ok := c.Get(pairing.TypeEncryptedData)
	if !ok {
		return errorResponse(pairing.M4, pairing.ErrorCodeUnknown, 0), nil
	}

	key, err := pairing.DeriveKey(pairing.PurposeVerifyMsg03, h.shared)
	if err != nil {
		return nil, err
	}
	plaintext, err := pairing.Open(pairing.PurposeVerifyMsg03, key, encrypted)
	if err != nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	sub, err := tlv8.Decode(plaintext)
	if err != nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeUnknown, 0), nil
	}
	id, _ := sub.Get(pairing.TypeIdentifier)
	signature, _ := sub.Get(pairing.TypeSignature)

	peer, ok := h.acc.Controller(string(id))
	if !ok {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}
	info := pairing.DeviceInfo(h.ctrlEph, id, h.ephemeral.PublicKey())
	if err := crypto.Ed25519Verify(peer.PublicKey, info, signature); err != nil {
		return errorResponse(pairing.M4, pairing.ErrorCodeAuthentication, 0), nil
	}

	h.controller = peer.ID
	h.verified = true
	h.ephemeral.Close()
	return tlv8.NewBuilder().PutByte(pairing.TypeState, pairing.M4).Bytes(), nil
}

// HandlePairings answers one pairing administration request. It must only
// be reached over a verified connection; the verified controller needs
// admin permission.
func (h *Handler) HandlePairings(req []byte) ([]byte, error) {
	controller, verified := h.VerifiedController()

	c, err := tlv8.Decode(req)
	if err != nil {
		return nil, err
	}
	if !verified {
		return errorResponse(pairing.M2, pairing.ErrorCodeAuthentication, 0), nil
	}
	caller, ok := h.acc.Controller(controller)
	if !ok || caller.Permissions != pairing.PermissionAdmin {
		return errorResponse(pairing.M2, pairing.ErrorCodeAuthentication, 0), nil
	}

	method, _ := c.Byte(pairing.TypeMethod)
	switch pairing.Method(method) {
	case pairing.MethodAddPairing:
		id, _ := c.Get(pairing.TypeIdentifier)
		ltpk, _ := c.Get(pairing.TypePublicKey)
		perm, _ := c.Byte(pairing.TypePermissions)
		p := pairing.Peer{ID: string(id), PublicKey: append([]byte(nil), ltpk...), Permissions: pairing.Permission(perm)}
		if p.Validate() != nil {
			return errorResponse(pairing.M2, pairing.ErrorCodeUnknown, 0), nil
		}
		if existing, ok := h.acc.Controller(p.ID); ok && !crypto.HMACEqual(existing.PublicKey, p.PublicKey) {
			return errorResponse(pairing.M2, pairing.ErrorCodeUnknown, 0), nil
		}
		h.acc.AddController(p)
	case pairing.MethodRemovePairing:
		id, _ := c.Get(pairing.TypeIdentifier)
		h.acc.removeController(string(id))
	case pairing.MethodListPairings:
		return pairing.ListPairingsResponse(h.acc.Controllers()), nil
	default:
		return errorResponse(pairing.M2, pairing.ErrorCodeUnavailable, 0), nil
	}
	return tlv8.NewBuilder().PutByte(pairing.TypeState, pairing.M2).Bytes(), nil
}
