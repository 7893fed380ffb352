package console

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/history"
	"github.com/helmsman-ops/console/session"
)

// Config holds initialization parameters for all console subsystems.
// Each section delegates to that subsystem's config-driven constructor.
type Config struct {
	Session session.Config `json:"session"`
	Channel channel.Config `json:"channel"`
	History history.Config `json:"history"`
	// Observer names an entry in the observability registry ("slog",
	// "noop", or one registered by the application). Empty means slog.
	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems. History
// retention is explicitly unbounded; the history constructors refuse an
// unset retention, so the choice is made here rather than silently below.
func DefaultConfig() Config {
	historyCfg := history.DefaultConfig()
	historyCfg.Retention = history.Retention{Mode: history.RetentionUnbounded}
	return Config{
		Session: session.DefaultConfig(),
		Channel: channel.DefaultConfig(),
		History: historyCfg,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Channel.Merge(&source.Channel)
	c.History.Merge(&source.History)
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
