package channel

import "errors"

var (
	// ErrNotAuthenticated is returned by Start when no session token is
	// available. The state machine does not move.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyStarted is returned by Start while the manager is running.
	ErrAlreadyStarted = errors.New("channel already started")
	// ErrHandshakeRejected means the server refused the session token.
	// Not retried: the console layer reacts with a forced logout.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrMaxAttemptsExceeded means reconnection gave up after the
	// configured attempt ceiling. Requires an explicit restart.
	ErrMaxAttemptsExceeded = errors.New("max reconnect attempts exceeded")
	// ErrHeartbeatTimeout means the server stopped acknowledging
	// heartbeats; the connection is torn down and rebuilt.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	// ErrChannelClosed is returned by Send when the manager is not
	// running in a state that can ever deliver the message.
	ErrChannelClosed = errors.New("channel closed")
	// ErrQueueFull is returned by Send when the outbound queue is at
	// capacity.
	ErrQueueFull = errors.New("send queue full")
)
