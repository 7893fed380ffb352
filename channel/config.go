package channel

import "time"

// Config holds connection manager initialization parameters.
type Config struct {
	// URL is the websocket endpoint of the remote execution service.
	URL string `json:"url"`
	// BaseDelay is the first reconnect backoff delay.
	BaseDelay time.Duration `json:"base_delay,omitempty"`
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
	// MaxAttempts is the reconnect attempt ceiling before the channel
	// gives up and enters Failed.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// HeartbeatInterval is the keepalive send period while Connected.
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty"`
	// HeartbeatTimeout is how long to wait for a heartbeat ack before
	// forcing a reconnect.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout,omitempty"`
	// DialTimeout bounds one dial plus handshake cycle.
	DialTimeout time.Duration `json:"dial_timeout,omitempty"`
	// SendBuffer is the outbound queue capacity while not Connected.
	SendBuffer int `json:"send_buffer,omitempty"`
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() Config {
	return Config{
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		DialTimeout:       10 * time.Second,
		SendBuffer:        64,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.BaseDelay > 0 {
		c.BaseDelay = source.BaseDelay
	}
	if source.MaxDelay > 0 {
		c.MaxDelay = source.MaxDelay
	}
	if source.MaxAttempts > 0 {
		c.MaxAttempts = source.MaxAttempts
	}
	if source.HeartbeatInterval > 0 {
		c.HeartbeatInterval = source.HeartbeatInterval
	}
	if source.HeartbeatTimeout > 0 {
		c.HeartbeatTimeout = source.HeartbeatTimeout
	}
	if source.DialTimeout > 0 {
		c.DialTimeout = source.DialTimeout
	}
	if source.SendBuffer > 0 {
		c.SendBuffer = source.SendBuffer
	}
}
