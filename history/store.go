package history

import (
	"context"
	"fmt"
	"sync"
)

// Retention modes. Retention is always explicit configuration: constructors
// reject an unset mode rather than defaulting silently.
const (
	RetentionUnbounded = "unbounded"
	RetentionCapped    = "capped"
)

// Retention controls how many entries a store keeps. In capped mode the
// oldest entries are evicted first.
type Retention struct {
	Mode string `json:"mode"`
	Cap  int    `json:"cap,omitempty"`
}

func (r Retention) validate() error {
	switch r.Mode {
	case RetentionUnbounded:
		return nil
	case RetentionCapped:
		if r.Cap <= 0 {
			return fmt.Errorf("%w: capped retention needs a positive cap", ErrBadRetention)
		}
		return nil
	case "":
		return fmt.Errorf("%w: mode must be set", ErrBadRetention)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrBadRetention, r.Mode)
	}
}

// Store is the history persistence boundary.
type Store interface {
	// Append records a terminal entry. A correlation id already appended
	// during this run is rejected with ErrDuplicateEntry; durable backends
	// keep entries from earlier runs apart, since correlation ids are only
	// unique within one run.
	Append(ctx context.Context, entry Entry) error
	// Query returns entries matching the filter, most recent first.
	Query(ctx context.Context, filter Filter, page Page) ([]Entry, error)
	// AmendResultCode sets the result code of an existing entry without
	// changing its state. Used when a terminal message arrives after a
	// local cancellation already finalized the command.
	AmendResultCode(ctx context.Context, correlationID string, code int) error
	// Close releases store resources.
	Close() error
}

type memoryStore struct {
	retention Retention

	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

// NewMemoryStore creates an in-process Store with the given retention.
func NewMemoryStore(retention Retention) (Store, error) {
	if err := retention.validate(); err != nil {
		return nil, err
	}
	return &memoryStore{
		retention: retention,
		index:     make(map[string]int),
	}, nil
}

func (s *memoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[entry.CorrelationID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.CorrelationID)
	}

	s.entries = append(s.entries, entry)
	s.index[entry.CorrelationID] = len(s.entries) - 1

	if s.retention.Mode == RetentionCapped && len(s.entries) > s.retention.Cap {
		evicted := s.entries[0]
		s.entries = s.entries[1:]
		delete(s.index, evicted.CorrelationID)
		for id := range s.index {
			s.index[id]--
		}
	}
	return nil
}

func (s *memoryStore) Query(_ context.Context, filter Filter, page Page) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if filter.matches(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}

	if page.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (s *memoryStore) AmendResultCode(_ context.Context, correlationID string, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.index[correlationID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, correlationID)
	}
	s.entries[i].ResultCode = &code
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
