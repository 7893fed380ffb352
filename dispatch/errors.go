package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Submit when the channel is not in the
	// Connected state.
	ErrNotConnected = errors.New("channel not connected")

	// ErrUnknownCorrelation is returned by Cancel for a correlation id with
	// no in-flight command.
	ErrUnknownCorrelation = errors.New("unknown correlation id")

	// ErrConnectionLost finalizes in-flight commands when the channel
	// leaves the Connected state.
	ErrConnectionLost = errors.New("connection lost")

	// ErrDispatcherClosed is returned by Submit and Cancel after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// ServerError carries the non-zero result code a command finished with.
type ServerError struct {
	Code   int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("command failed with code %d", e.Code)
	}
	return fmt.Sprintf("command failed with code %d: %s", e.Code, e.Detail)
}
