package licenseclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Persisted is what the client keeps between runs. The device id survives logout;
// the license key and certificate do not.
type Persisted struct {
	DeviceID    string `json:"device_id"`
	LicenseKey  string `json:"license_key,omitempty"`
	Certificate string `json:"certificate,omitempty"`
}

// Store loads and saves the persisted client state
type Store interface {
	Load() (Persisted, error)
	Save(p Persisted) error
}

// FileStore keeps the state as a JSON file, replaced atomically on every save
type FileStore struct {
	path string
}

// NewFileStore creates a store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath returns the state file location under the user's config directory
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "schoolresults", "license.json"), nil
}

// Load reads the state file; a missing file is an empty state
func (s *FileStore) Load() (Persisted, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Persisted{}, nil
		}
		return Persisted{}, fmt.Errorf("failed to read license state: %w", err)
	}
	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return Persisted{}, fmt.Errorf("failed to parse license state: %w", err)
	}
	return p, nil
}

// Save writes the state to a temp file and renames it over the old one
func (s *FileStore) Save(p Persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write license state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize license state: %w", err)
	}
	return nil
}

// MemoryStore keeps the state in memory
type MemoryStore struct {
	mu sync.Mutex
	p  Persisted
}

func (s *MemoryStore) Load() (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, nil
}

func (s *MemoryStore) Save(p Persisted) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
	return nil
}
