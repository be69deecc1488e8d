// Package setup implements the controller side of HAP pair-setup.
//
// Pair-setup runs once per accessory. It proves knowledge of the setup code
// with SRP-6a, then exchanges long-term Ed25519 identities inside messages
// encrypted with keys derived from the SRP session key.
//
// # Protocol Flow
//
//	Controller                                  Accessory
//	----------                                  ---------
//	M1 = Start()               --{State,Method}-->
//	                           <--{State,PublicKey B,Salt}-- M2
//	M3 = HandleM2(M2)          --{State,PublicKey A,Proof M1}-->
//	                           <--{State,Proof M2}--         M4
//	M5 = HandleM4(M4)          --{State,EncryptedData}-->
//	                           <--{State,EncryptedData}--    M6
//	HandleM6(M6)
//	Result()
//
// The M5 payload carries the controller identifier, its new long-term
// public key and a signature over HKDF(K, controller-sign) || identifier ||
// public key. M6 carries the same for the accessory; its signature is
// verified before the session completes.
//
// # Usage
//
//	session, err := setup.NewSession(setup.Config{PIN: []byte("3939"), DeviceID: id})
//	msg, err := session.Start()
//	// post msg to /pair-setup, read response
//	msg, err = session.HandleMessage(response)
//	// repeat until session.State() == setup.StateDone
//	result, err := session.Result()
package setup

import (
	"github.com/backkem/hap/pkg/pairing"
)

// State represents the pair-setup state machine.
type State int

const (
	StateInit   State = iota
	StateM1Sent       // waiting for M2
	StateM3Sent       // waiting for M4
	StateM5Sent       // waiting for M6
	StateDone         // accessory pairing established
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
	case StateM5Sent:
		return "M5Sent"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is the outcome of a completed pair-setup.
type Result struct {
	// AuthorisationKey is hex(public key || private key) of the controller's
	// new long-term Ed25519 identity: 192 lowercase hex characters.
	AuthorisationKey string

	// Accessory is the accessory's identifier and long-term public key.
	Accessory pairing.Peer
}
