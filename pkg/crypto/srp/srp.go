// Package srp implements the client (user) side of SRP-6a as used by HAP
// pair-setup.
//
// The construction follows RFC 5054 with SHA-512 and the conventions HAP
// accessories expect:
//
//	k  = H(N | PAD(g))
//	u  = H(PAD(A) | PAD(B))
//	x  = H(s | H(I | ":" | P))
//	S  = (B - k*g^x) ^ (a + u*x) mod N
//	K  = H(S)
//	M1 = H(H(N) XOR H(g) | H(I) | s | A | B | K)
//	M2 = H(A | M1 | K)
//
// PAD widens a value to the byte length of N. Every other integer is
// encoded as minimal big-endian bytes; the salt s is used exactly as
// received.
//
// Protocol flow:
//
//	Client (controller)                 Server (accessory)
//	-------------------                 ------------------
//	NewClient(group, H, I, P)
//	I, A = StartAuthentication() --A-->
//	                            <--s, B--
//	M1 = ProcessChallenge(s, B) --M1-->
//	                            <--M2----
//	VerifySession(M2)
//	K = SessionKey()
package srp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/backkem/hap/pkg/crypto"
)

// EphemeralSizeBytes is the size of the client secret a (256 bits).
const EphemeralSizeBytes = 32

// Errors
var (
	ErrInvalidState      = errors.New("srp: invalid protocol state for this operation")
	ErrOperandTooLong    = errors.New("srp: operand longer than the group modulus")
	ErrUnsafeServerValue = errors.New("srp: server value failed the SRP-6a safety check")
	ErrEmptyChallenge    = errors.New("srp: salt and server public key must not be empty")
	ErrNotAuthenticated  = errors.New("srp: session is not authenticated")
	ErrInvalidCredential = errors.New("srp: username and password must not be empty")
)

type state int

const (
	stateInit state = iota
	stateStarted
	stateChallenged
	stateAuthenticated
	stateFailed
)

// Client is the user role of one SRP-6a authentication attempt.
// Ephemeral values are generated once; a Client is not reusable after
// VerifySession fails.
type Client struct {
	group    *Group
	hash     crypto.Hash
	username []byte
	password []byte

	a      *big.Int
	A      *big.Int
	bytesA []byte

	S  *big.Int
	K  []byte
	M1 []byte
	M2 []byte // expected server proof

	state state
	rand  io.Reader // For testing: injectable random source
}

// NewClient creates a client for one authentication attempt.
//
// Parameters:
//   - group: Group2048 or Group3072
//   - hash: digest used for every H() step, normally crypto.SHA512Hash
//   - username: identity I ("Pair-Setup" for HAP)
//   - password: the setup code P
func NewClient(group *Group, hash crypto.Hash, username string, password []byte) (*Client, error) {
	if group == nil {
		return nil, ErrInvalidGroup
	}
	if hash == nil {
		hash = crypto.SHA512Hash
	}
	if username == "" || len(password) == 0 {
		return nil, ErrInvalidCredential
	}

	return &Client{
		group:    group,
		hash:     hash,
		username: []byte(username),
		password: copyBytes(password),
		state:    stateInit,
		rand:     rand.Reader,
	}, nil
}

// SetRandom sets the random source used to draw a. This is intended for
// deterministic tests.
func (c *Client) SetRandom(r io.Reader) {
	c.rand = r
}

// StartAuthentication draws a and computes A = g^a mod N.
// Returns the username and A as minimal big-endian bytes.
func (c *Client) StartAuthentication() (string, []byte, error) {
	if c.state != stateInit {
		return "", nil, ErrInvalidState
	}

	buf := make([]byte, EphemeralSizeBytes)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate ephemeral secret: %w", err)
	}
	c.a = new(big.Int).SetBytes(buf)
	crypto.Wipe(buf)

	c.A = new(big.Int).Exp(c.group.G, c.a, c.group.N)
	c.bytesA = c.A.Bytes()
	c.state = stateStarted

	return string(c.username), copyBytes(c.bytesA), nil
}

// ProcessChallenge consumes the server salt and public value B and
// returns the client proof M1.
//
// B = 0 mod N and u = 0 are rejected with ErrUnsafeServerValue; no proof is
// produced and the client can no longer authenticate.
func (c *Client) ProcessChallenge(salt, bytesB []byte) ([]byte, error) {
	if c.state != stateStarted {
		return nil, ErrInvalidState
	}
	if len(salt) == 0 || len(bytesB) == 0 {
		c.fail()
		return nil, ErrEmptyChallenge
	}

	N := c.group.N
	B := new(big.Int).SetBytes(bytesB)
	if new(big.Int).Mod(B, N).Sign() == 0 {
		c.fail()
		return nil, fmt.Errorf("%w: B mod N is zero", ErrUnsafeServerValue)
	}

	uBytes, err := ComputeU(c.hash, c.group, c.A, B)
	if err != nil {
		c.fail()
		return nil, err
	}
	u := new(big.Int).SetBytes(uBytes)
	if u.Sign() == 0 {
		c.fail()
		return nil, fmt.Errorf("%w: u is zero", ErrUnsafeServerValue)
	}

	kBytes, err := ComputeK(c.hash, c.group)
	if err != nil {
		c.fail()
		return nil, err
	}
	k := new(big.Int).SetBytes(kBytes)

	xBytes := ComputeX(c.hash, salt, c.username, c.password)
	x := new(big.Int).SetBytes(xBytes)
	crypto.Wipe(xBytes)

	// base = (B - k*g^x) mod N
	gx := new(big.Int).Exp(c.group.G, x, N)
	base := new(big.Int).Mul(k, gx)
	base.Sub(B, base)
	base.Mod(base, N)

	// exp = a + u*x
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)

	c.S = new(big.Int).Exp(base, exp, N)
	wipeInt(x)
	wipeInt(exp)

	sBytes := c.S.Bytes()
	c.K = c.hash.Sum(sBytes)
	crypto.Wipe(sBytes)

	c.M1 = ComputeM1(c.hash, c.group, c.username, salt, c.A, B, c.K)
	c.M2 = ComputeM2(c.hash, c.A, c.M1, c.K)
	c.state = stateChallenged

	return copyBytes(c.M1), nil
}

// VerifySession checks the server proof M2 in constant time.
// A mismatch is final for this client.
func (c *Client) VerifySession(serverProof []byte) bool {
	if c.state != stateChallenged {
		return false
	}
	if !crypto.HMACEqual(c.M2, serverProof) {
		c.fail()
		return false
	}
	c.state = stateAuthenticated
	return true
}

// Authenticated reports whether the server proof has been accepted.
func (c *Client) Authenticated() bool {
	return c.state == stateAuthenticated
}

// SessionKey returns K = H(S). It is only available once the server has
// been authenticated.
func (c *Client) SessionKey() ([]byte, error) {
	if c.state != stateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return copyBytes(c.K), nil
}

// PublicKey returns A, or nil before StartAuthentication.
func (c *Client) PublicKey() []byte {
	return copyBytes(c.bytesA)
}

// Close zeroes the password and every secret derived from it.
func (c *Client) Close() {
	crypto.Wipe(c.password)
	crypto.Wipe(c.K)
	wipeInt(c.a)
	wipeInt(c.S)
}

func (c *Client) fail() {
	c.state = stateFailed
	crypto.Wipe(c.K)
	wipeInt(c.a)
	wipeInt(c.S)
}

// HashPadded hashes the concatenation of operands, each left-padded to the
// byte length of N.
func HashPadded(h crypto.Hash, g *Group, operands ...*big.Int) ([]byte, error) {
	parts := make([][]byte, 0, len(operands))
	for _, op := range operands {
		p, err := g.Pad(op)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return h.Sum(parts...), nil
}

// ComputeK returns the multiplier k = H(N | PAD(g)).
func ComputeK(h crypto.Hash, g *Group) ([]byte, error) {
	return HashPadded(h, g, g.N, g.G)
}

// ComputeU returns the scrambling parameter u = H(PAD(A) | PAD(B)).
func ComputeU(h crypto.Hash, g *Group, A, B *big.Int) ([]byte, error) {
	return HashPadded(h, g, A, B)
}

// ComputeX returns the private key x = H(s | H(I | ":" | P)).
func ComputeX(h crypto.Hash, salt, username, password []byte) []byte {
	inner := h.Sum(username, []byte(":"), password)
	x := h.Sum(salt, inner)
	crypto.Wipe(inner)
	return x
}

// ComputeVerifier returns v = g^x mod N.
func ComputeVerifier(g *Group, x []byte) *big.Int {
	return new(big.Int).Exp(g.G, new(big.Int).SetBytes(x), g.N)
}

// ComputeM1 returns the client proof
// M1 = H(H(N) XOR H(g) | H(I) | s | A | B | K).
func ComputeM1(h crypto.Hash, g *Group, username, salt []byte, A, B *big.Int, K []byte) []byte {
	hN := h.Sum(g.N.Bytes())
	hg := h.Sum(g.G.Bytes())
	for i := range hN {
		hN[i] ^= hg[i]
	}
	hI := h.Sum(username)
	return h.Sum(hN, hI, salt, A.Bytes(), B.Bytes(), K)
}

// ComputeM2 returns the server proof M2 = H(A | M1 | K).
func ComputeM2(h crypto.Hash, A *big.Int, M1, K []byte) []byte {
	return h.Sum(A.Bytes(), M1, K)
}

// wipeInt zeroes the backing words of a big.Int.
func wipeInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}

// copyBytes returns a copy of b, or nil if b is nil.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
