package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/helmsman-ops/console/observability"
)

// Config holds session subsystem initialization parameters.
type Config struct {
	// Path is the location of the persisted session file. Empty means the
	// per-user default under os.UserConfigDir.
	Path string `json:"path,omitempty"`
	// AuthURL is the login endpoint of the remote service.
	AuthURL string `json:"auth_url,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.AuthURL != "" {
		c.AuthURL = source.AuthURL
	}
}

// New creates a Guard from configuration, resolving the default storage
// path when none is set.
func New(cfg *Config, auth Authenticator, observer observability.Observer) (*Guard, error) {
	path := cfg.Path
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session path: %w", err)
		}
		path = filepath.Join(dir, "console", "session.json")
	}
	return NewGuard(auth, NewFileStore(path), observer), nil
}
