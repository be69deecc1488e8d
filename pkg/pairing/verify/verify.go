// Package verify implements the controller side of HAP pair-verify.
//
// Pair-verify runs on every new connection to an already paired accessory.
// Both sides exchange fresh X25519 keys and prove possession of their
// long-term Ed25519 identities by signing the pair of ephemeral keys. The
// X25519 result is the shared secret for the session cipher.
//
//	Controller                                   Accessory
//	----------                                   ---------
//	M1 = Start()            --{State,PublicKey}-->
//	                        <--{State,PublicKey,EncryptedData}--  M2
//	M3 = HandleM2(M2)       --{State,EncryptedData}-->
//	                        <--{State}--                          M4
//	HandleM4(M4)
//	SharedSecret()
//
// The accessory's M2 signature is checked against the long-term key stored
// at pair-setup; an accessory that cannot produce it is rejected.
package verify

import (
	"github.com/backkem/hap/pkg/pairing"
)

// State represents the pair-verify state machine.
type State int

const (
	StateInit   State = iota
	StateM1Sent       // waiting for M2
	StateM3Sent       // waiting for M4
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateM1Sent:
		return "M1Sent"
	case StateM3Sent:
		return "M3Sent"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SharedSecret is the X25519 output of a completed pair-verify.
type SharedSecret [pairing.SharedSecretSize]byte
