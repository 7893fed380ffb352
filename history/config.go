package history

import (
	"context"
	"fmt"
)

// Backend names accepted by Config.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds history store initialization parameters. Retention has no
// default: callers must choose unbounded or capped explicitly.
type Config struct {
	Backend   string    `json:"backend"`
	Path      string    `json:"path,omitempty"`
	Retention Retention `json:"retention"`
}

// DefaultConfig returns the default history configuration: an in-memory
// store. Retention is intentionally left unset.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Retention.Mode != "" {
		c.Retention = source.Retention
	}
}

// New creates a Store from configuration.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(cfg.Retention)
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite history backend needs a path")
		}
		return NewSQLiteStore(ctx, cfg.Path, cfg.Retention)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
