package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Record is the persisted session shape. It lives under one fixed storage
// location owned exclusively by the Guard.
type Record struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

// UserRecord holds the identity fields of the persisted session.
type UserRecord struct {
	Identity string `json:"identity"`
}

// Store persists the session record. Implementations are stateless — they
// perform I/O on each call without caching.
type Store interface {
	// Load reads the persisted record. Returns ErrNoRecord when nothing
	// is persisted.
	Load(ctx context.Context) (Record, error)
	// Save writes the record, replacing any previous one.
	Save(ctx context.Context, record Record) error
	// Clear removes the persisted record. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}

type fileStore struct {
	path string
}

// NewFileStore creates a Store backed by a single JSON file. Writes go
// through a temp file and rename so a crash never leaves a partial record.
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return record, nil
}

func (s *fileStore) Save(_ context.Context, record Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

func (s *fileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

type memoryStore struct {
	mu     sync.Mutex
	record *Record
}

// NewMemoryStore creates a volatile Store for tests and ephemeral runs.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Record{}, ErrNoRecord
	}
	return *s.record, nil
}

func (s *memoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &record
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}
