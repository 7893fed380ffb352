// Package dispatch sends commands over the channel, matches responses back
// to their originating command by correlation id, and writes the terminal
// record of every command to the history store.
package dispatch

import (
	"time"

	"github.com/helmsman-ops/console/core/protocol"
)

// CommandState is the lifecycle state of a dispatched command.
type CommandState int

const (
	StatePending CommandState = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s CommandState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether a command in this state will never change again.
func (s CommandState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Command is the dispatcher's view of one submitted command.
type Command struct {
	CorrelationID string
	Spec          protocol.CommandSpec
	State         CommandState
	SubmittedAt   time.Time
	FinishedAt    time.Time
	Output        []string
	ResultCode    *int
	Err           error
}
