package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// PersistedSession is what survives restarts: tokens plus the user and
// tenant snapshots for offline rehydration. Saved and cleared as one unit.
type PersistedSession struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	User         *User   `json:"user,omitempty"`
	Tenant       *Tenant `json:"tenant,omitempty"`
}

// TokenStore persists session state between runs. The SessionController is
// the sole writer.
type TokenStore interface {
	// Load returns the stored session, or nil when none exists.
	Load() (*PersistedSession, error)
	Save(s *PersistedSession) error
	Clear() error
}

// FileStore keeps the session in a JSON file, written atomically via a
// temp file rename.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to the given path. Parent directories
// are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (*PersistedSession, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s PersistedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		// treat a corrupt file like an absent one
		return nil, nil
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStore) Save(s *PersistedSession) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is an in-process TokenStore for tests and ephemeral sessions.
type MemoryStore struct {
	mu sync.Mutex
	s  *PersistedSession
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*PersistedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s *PersistedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
