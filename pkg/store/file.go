package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/backkem/hap/pkg/pairing"
	"gopkg.in/yaml.v3"
)

// fileData is the YAML layout of a pairing file.
type fileData struct {
	DeviceID string        `yaml:"device_id,omitempty"`
	Pairings []filePairing `yaml:"pairings,omitempty"`
}

type filePairing struct {
	AccessoryID        string `yaml:"accessory_id"`
	AccessoryPublicKey string `yaml:"accessory_public_key"` // hex
	Permissions        uint8  `yaml:"permissions"`
	AuthorisationKey   string `yaml:"authorisation_key"` // hex(public || private)
	Address            string `yaml:"address,omitempty"`
}

// FileStorage keeps pairing state in a YAML file. Every save rewrites the
// file atomically with mode 0600; it holds private keys.
//
// All methods are safe for concurrent use within one process.
type FileStorage struct {
	mu   sync.Mutex
	path string
	mem  *MemoryStorage
}

// OpenFile loads path, or starts empty if it does not exist.
func OpenFile(path string) (*FileStorage, error) {
	f := &FileStorage{path: path, mem: NewMemoryStorage()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pairing file: %w", err)
	}

	var fd fileData
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse pairing file %s: %w", path, err)
	}
	if fd.DeviceID != "" {
		if err := f.mem.SaveDeviceID(fd.DeviceID); err != nil {
			return nil, fmt.Errorf("pairing file %s: %w", path, err)
		}
	}
	for _, fp := range fd.Pairings {
		pk, err := hex.DecodeString(fp.AccessoryPublicKey)
		if err != nil {
			return nil, fmt.Errorf("pairing file %s: accessory %s: %w", path, fp.AccessoryID, err)
		}
		p := &Pairing{
			Accessory: pairing.Peer{
				ID:          fp.AccessoryID,
				PublicKey:   pk,
				Permissions: pairing.Permission(fp.Permissions),
			},
			AuthorisationKey: fp.AuthorisationKey,
			Address:          fp.Address,
		}
		if err := f.mem.SavePairing(p); err != nil {
			return nil, fmt.Errorf("pairing file %s: accessory %s: %w", path, fp.AccessoryID, err)
		}
	}
	return f, nil
}

// Path returns the file path.
func (f *FileStorage) Path() string {
	return f.path
}

// LoadDeviceID returns the stored device id.
func (f *FileStorage) LoadDeviceID() (string, error) {
	return f.mem.LoadDeviceID()
}

// SaveDeviceID stores the device id and rewrites the file.
func (f *FileStorage) SaveDeviceID(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.SaveDeviceID(id); err != nil {
		return err
	}
	return f.flush()
}

// LoadPairings returns all stored pairings ordered by accessory id.
func (f *FileStorage) LoadPairings() ([]*Pairing, error) {
	return f.mem.LoadPairings()
}

// LoadPairing returns the pairing for an accessory.
func (f *FileStorage) LoadPairing(accessoryID string) (*Pairing, error) {
	return f.mem.LoadPairing(accessoryID)
}

// SavePairing stores or updates a pairing and rewrites the file.
func (f *FileStorage) SavePairing(p *Pairing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.SavePairing(p); err != nil {
		return err
	}
	return f.flush()
}

// DeletePairing removes a pairing and rewrites the file.
func (f *FileStorage) DeletePairing(accessoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.DeletePairing(accessoryID); err != nil {
		return err
	}
	return f.flush()
}

// flush writes the in-memory state. Must be called with mu held.
func (f *FileStorage) flush() error {
	var fd fileData
	if id, err := f.mem.LoadDeviceID(); err == nil {
		fd.DeviceID = id
	}
	pairings, err := f.mem.LoadPairings()
	if err != nil {
		return err
	}
	for _, p := range pairings {
		fd.Pairings = append(fd.Pairings, filePairing{
			AccessoryID:        p.Accessory.ID,
			AccessoryPublicKey: p.Accessory.PublicKeyHex(),
			Permissions:        uint8(p.Accessory.Permissions),
			AuthorisationKey:   p.AuthorisationKey,
			Address:            p.Address,
		})
	}

	data, err := yaml.Marshal(&fd)
	if err != nil {
		return fmt.Errorf("failed to encode pairing file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write pairing file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pairing file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pairing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write pairing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to write pairing file: %w", err)
	}
	return nil
}
