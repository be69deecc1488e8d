package store

import (
	"sort"
	"sync"
)

// MemoryStorage is an in-memory Storage implementation.
// Useful for testing and development. Data is lost when the process exits.
//
// All methods are safe for concurrent use.
type MemoryStorage struct {
	mu sync.RWMutex

	deviceID string
	pairings map[string]*Pairing
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		pairings: make(map[string]*Pairing),
	}
}

// LoadDeviceID returns the stored device id.
func (m *MemoryStorage) LoadDeviceID() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.deviceID == "" {
		return "", ErrNotFound
	}
	return m.deviceID, nil
}

// SaveDeviceID stores the device id.
func (m *MemoryStorage) SaveDeviceID(id string) error {
	if err := validateDeviceID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deviceID = id
	return nil
}

// LoadPairings returns all stored pairings ordered by accessory id.
func (m *MemoryStorage) LoadPairings() ([]*Pairing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Pairing, 0, len(m.pairings))
	for _, p := range m.pairings {
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Accessory.ID < result[j].Accessory.ID })
	return result, nil
}

// LoadPairing returns the pairing for an accessory.
func (m *MemoryStorage) LoadPairing(accessoryID string) (*Pairing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pairings[accessoryID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// SavePairing stores or updates a pairing.
func (m *MemoryStorage) SavePairing(p *Pairing) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pairings[p.Accessory.ID] = p.Clone()
	return nil
}

// DeletePairing removes a pairing. Removing an unknown accessory is not an error.
func (m *MemoryStorage) DeletePairing(accessoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pairings, accessoryID)
	return nil
}
