package pairing

import (
	"github.com/backkem/hap/pkg/tlv8"
)

// Pairing administration runs over the encrypted channel established by
// pair-verify: a single M1 request posted to /pairings answered by M2.

// AddPairingRequest builds the request that registers another controller.
func AddPairingRequest(p Peer) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return tlv8.NewBuilder().
		PutByte(TypeState, M1).
		PutByte(TypeMethod, byte(MethodAddPairing)).
		PutString(TypeIdentifier, p.ID).
		Put(TypePublicKey, p.PublicKey).
		PutByte(TypePermissions, byte(p.Permissions)).
		Bytes(), nil
}

// RemovePairingRequest builds the request that removes a controller.
func RemovePairingRequest(id string) ([]byte, error) {
	if id == "" || len(id) > 255 {
		return nil, Errorf(KindInvalidInput, "remove pairing", "identifier must be 1..255 bytes")
	}
	return tlv8.NewBuilder().
		PutByte(TypeState, M1).
		PutByte(TypeMethod, byte(MethodRemovePairing)).
		PutString(TypeIdentifier, id).
		Bytes(), nil
}

// ListPairingsRequest builds the request for the accessory's pairing list.
func ListPairingsRequest() []byte {
	return tlv8.NewBuilder().
		PutByte(TypeState, M1).
		PutByte(TypeMethod, byte(MethodListPairings)).
		Bytes()
}

// ParseAdminResponse checks an add or remove pairing response.
func ParseAdminResponse(data []byte) error {
	_, err := ParseResponse("pairings", data, M2)
	return err
}

// ParseListPairingsResponse decodes a list pairings response. Entries are
// separated by separator items.
func ParseListPairingsResponse(data []byte) ([]Peer, error) {
	const op = "list pairings"
	c, err := ParseResponse(op, data, M2)
	if err != nil {
		return nil, err
	}

	var peers []Peer
	for _, rec := range c.Split() {
		id, ok := rec.Get(TypeIdentifier)
		if !ok {
			// The first record also carries State; skip records without entries.
			continue
		}
		pk, err := RequireLen(op, rec, TypePublicKey, "public key", 32)
		if err != nil {
			return nil, err
		}
		perm, _ := rec.Byte(TypePermissions)
		peers = append(peers, Peer{
			ID:          string(id),
			PublicKey:   append([]byte(nil), pk...),
			Permissions: Permission(perm),
		})
	}
	return peers, nil
}

// ListPairingsResponse encodes a list pairings response.
func ListPairingsResponse(peers []Peer) []byte {
	b := tlv8.NewBuilder().PutByte(TypeState, M2)
	for i, p := range peers {
		if i > 0 {
			b.PutSeparator()
		}
		b.PutString(TypeIdentifier, p.ID).
			Put(TypePublicKey, p.PublicKey).
			PutByte(TypePermissions, byte(p.Permissions))
	}
	return b.Bytes()
}
