package session

import "errors"

// Authentication failures surfaced by Guard.Login.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrServerRejected     = errors.New("server rejected session")
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// Sentinel errors for store operations.
var (
	ErrNoRecord   = errors.New("no persisted session")
	ErrLoadFailed = errors.New("session load failed")
	ErrSaveFailed = errors.New("session save failed")
)
