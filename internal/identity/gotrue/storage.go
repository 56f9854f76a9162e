package gotrue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yoockh/launchkit/internal/identity"
)

// Storage persists the client's current session.
type Storage interface {
	Load() (*identity.Session, error) // nil, nil when empty
	Save(s *identity.Session) error
	Remove() error
}

type MemoryStorage struct {
	mu sync.Mutex
	s  *identity.Session
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load() (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *MemoryStorage) Save(s *identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s.Clone()
	return nil
}

func (m *MemoryStorage) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// FileStorage keeps the session as a 0600 JSON file so a CLI login survives
// between invocations.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func NewFileStorage(path string) *FileStorage { return &FileStorage{path: path} }

func (f *FileStorage) Load() (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s identity.Session
	if err := json.Unmarshal(b, &s); err != nil {
		// corrupt file: treat as signed out
		_ = os.Remove(f.path)
		return nil, nil
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStorage) Save(s *identity.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStorage) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
