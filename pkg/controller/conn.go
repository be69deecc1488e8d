package controller

import (
	"context"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/transport"
)

// Conn is a verified, encrypted connection to an accessory.
type Conn struct {
	ctrl      *Controller
	hc        *transport.HTTPConn
	accessory pairing.Peer
}

// Accessory returns the identity of the connected accessory.
func (c *Conn) Accessory() pairing.Peer {
	return c.accessory
}

// Post sends an encrypted request and returns the response body.
func (c *Conn) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.ctrl.post(ctx, c.hc, path, body)
}

// AddPairing registers another controller with the accessory.
func (c *Conn) AddPairing(ctx context.Context, peer pairing.Peer) error {
	req, err := pairing.AddPairingRequest(peer)
	if err != nil {
		return err
	}
	resp, err := c.Post(ctx, pairing.PathPairings, req)
	if err != nil {
		return err
	}
	return pairing.ParseAdminResponse(resp)
}

// RemovePairing removes a controller from the accessory.
func (c *Conn) RemovePairing(ctx context.Context, id string) error {
	req, err := pairing.RemovePairingRequest(id)
	if err != nil {
		return err
	}
	resp, err := c.Post(ctx, pairing.PathPairings, req)
	if err != nil {
		return err
	}
	return pairing.ParseAdminResponse(resp)
}

// ListPairings returns the controllers paired with the accessory.
func (c *Conn) ListPairings(ctx context.Context) ([]pairing.Peer, error) {
	resp, err := c.Post(ctx, pairing.PathPairings, pairing.ListPairingsRequest())
	if err != nil {
		return nil, err
	}
	return pairing.ParseListPairingsResponse(resp)
}

// Close closes the connection and wipes the session keys.
func (c *Conn) Close() error {
	return c.hc.Close()
}
