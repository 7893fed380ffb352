// Package channel maintains the bidirectional connection to the remote
// execution service: one logical channel per session, driven by a state
// machine with exponential reconnect backoff and protocol-level heartbeats.
//
// All transitions happen on a single run goroutine; callers interact
// through Start, Stop, Send, and subscriptions, none of which block on I/O.
package channel

import "time"

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the connection state machine. Attempt counts
// consecutive failed connection attempts and resets to zero on reaching
// Connected. BackoffDeadline is set while Reconnecting.
type Status struct {
	State           State
	Attempt         int
	LastError       error
	BackoffDeadline time.Time
}
