// Package history stores the immutable record of finished commands. Entries
// are appended once by the dispatcher when a command reaches a terminal
// state and are never mutated afterward, with one narrow exception: a late
// server result for an already-cancelled command may fill in the result
// code without touching the recorded state.
package history

import (
	"time"

	"github.com/helmsman-ops/console/core/protocol"
)

// Entry is the terminal snapshot of a command.
type Entry struct {
	CorrelationID string               `json:"correlationId"`
	Spec          protocol.CommandSpec `json:"spec"`
	State         string               `json:"state"`
	ResultCode    *int                 `json:"resultCode,omitempty"`
	StartedAt     time.Time            `json:"startedAt"`
	FinishedAt    time.Time            `json:"finishedAt"`
	Output        string               `json:"output"`
}

// Filter narrows a Query. Zero-valued fields match everything.
type Filter struct {
	// States restricts results to the given terminal states.
	States []string
	// SpecType restricts results to commands of one spec type.
	SpecType string
}

// Page bounds Query results. A non-positive Limit means no bound.
type Page struct {
	Offset int
	Limit  int
}

func (f Filter) matches(entry Entry) bool {
	if f.SpecType != "" && entry.Spec.Type != f.SpecType {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, state := range f.States {
		if entry.State == state {
			return true
		}
	}
	return false
}
