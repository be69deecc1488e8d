// Package pairing holds the pieces shared by HAP pair-setup, pair-verify and
// the encrypted control channel: TLV item types and method codes, the HKDF
// derivation table, error kinds and accessory error codes, and the
// pairing-administration messages (add, remove and list pairings).
//
// The two handshakes themselves live in the setup and verify subpackages.
package pairing

import (
	"github.com/backkem/hap/pkg/tlv8"
)

// TLV item types used in pairing messages.
const (
	TypeMethod        tlv8.Type = 0x00
	TypeIdentifier    tlv8.Type = 0x01
	TypeSalt          tlv8.Type = 0x02
	TypePublicKey     tlv8.Type = 0x03
	TypeProof         tlv8.Type = 0x04
	TypeEncryptedData tlv8.Type = 0x05
	TypeState         tlv8.Type = 0x06
	TypeError         tlv8.Type = 0x07
	TypeRetryDelay    tlv8.Type = 0x08
	TypeCertificate   tlv8.Type = 0x09
	TypeSignature     tlv8.Type = 0x0A
	TypePermissions   tlv8.Type = 0x0B
	TypeFragmentData  tlv8.Type = 0x0C
	TypeFragmentLast  tlv8.Type = 0x0D
	TypeFlags         tlv8.Type = 0x13
	TypeSeparator               = tlv8.TypeSeparator
)

// Method selects the pairing procedure in an M1 request.
type Method byte

const (
	MethodPairSetup         Method = 0
	MethodPairSetupWithAuth Method = 1
	MethodPairVerify        Method = 2
	MethodAddPairing        Method = 3
	MethodRemovePairing     Method = 4
	MethodListPairings      Method = 5
)

// String returns the string representation of the method.
func (m Method) String() string {
	switch m {
	case MethodPairSetup:
		return "PairSetup"
	case MethodPairSetupWithAuth:
		return "PairSetupWithAuth"
	case MethodPairVerify:
		return "PairVerify"
	case MethodAddPairing:
		return "AddPairing"
	case MethodRemovePairing:
		return "RemovePairing"
	case MethodListPairings:
		return "ListPairings"
	default:
		return "Unknown"
	}
}

// Message numbers carried in the State item.
const (
	M1 byte = 1
	M2 byte = 2
	M3 byte = 3
	M4 byte = 4
	M5 byte = 5
	M6 byte = 6
)

// Permission is the controller permission stored with a pairing.
type Permission byte

const (
	PermissionUser  Permission = 0
	PermissionAdmin Permission = 1
)

// String returns the string representation of the permission.
func (p Permission) String() string {
	if p == PermissionAdmin {
		return "admin"
	}
	return "user"
}

// Fixed sizes.
const (
	// PINSize is the length of the setup code in bytes.
	PINSize = 4

	// DeviceIDSize is the length of the controller identifier in bytes.
	DeviceIDSize = 16

	// KeySize is the length of every derived symmetric key.
	KeySize = 32

	// SharedSecretSize is the length of the pair-verify shared secret.
	SharedSecretSize = 32
)

// SRPUsername is the fixed SRP identity used by pair-setup.
const SRPUsername = "Pair-Setup"

// ContentType is the HTTP content type of pairing requests and responses.
const ContentType = "application/pairing+tlv8"

// HTTP resources the pairing messages are posted to.
const (
	PathPairSetup  = "/pair-setup"
	PathPairVerify = "/pair-verify"
	PathPairings   = "/pairings"
)

// DeviceInfo concatenates the parts of a signed identity proof, e.g.
// X || identifier || long-term public key.
func DeviceInfo(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
