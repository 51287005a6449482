package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Keys the package reads or writes in a Store.
const (
	// KeyLegacyToken and KeyLegacyUserID are left behind by clients that
	// predate cookie sessions. They are only ever detected, never used.
	KeyLegacyToken  = "authToken"
	KeyLegacyUserID = "userId"

	// KeySession holds a session token for clients that cannot keep the
	// server's cookie themselves.
	KeySession = "session"
)

// Store is the client's persisted key-value storage.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	// Clear removes every key.
	Clear() error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns a MemoryStore seeded with a copy of initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	data := make(map[string]string, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &MemoryStore{data: data}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

// Len reports how many keys are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// FileStore is a Store persisted as a JSON object in a single file.
// Every write replaces the file atomically (write temp file, rename), so a
// crash never leaves half a file behind.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// OpenFileStore loads path, treating a missing file as empty.
func OpenFileStore(path string) (*FileStore, error) {
	fsStore := &FileStore{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fsStore, nil
	case err != nil:
		return nil, fmt.Errorf("session: reading store %s: %w", path, err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fsStore.data); err != nil {
			return nil, fmt.Errorf("session: decoding store %s: %w", path, err)
		}
	}
	return fsStore, nil
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.data)+1)
	for k, v := range f.data {
		next[k] = v
	}
	next[key] = value

	if err := f.write(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	empty := make(map[string]string)
	if err := f.write(empty); err != nil {
		return err
	}
	f.data = empty
	return nil
}

// write must be called with f.mu held.
func (f *FileStore) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding store: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: creating store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: writing store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("session: replacing store: %w", err)
	}
	return nil
}
