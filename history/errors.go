package history

import "errors"

// Sentinel errors for store operations.
var (
	ErrDuplicateEntry = errors.New("duplicate history entry")
	ErrEntryNotFound  = errors.New("history entry not found")
	ErrBadRetention   = errors.New("invalid retention")
)
