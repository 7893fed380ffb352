package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol revision sent during the handshake.
const Version = "1"

// CommandSpec describes a command to execute remotely. The vocabulary of
// Type and Args belongs to the remote execution service; the console treats
// the spec as opaque beyond routing and display.
type CommandSpec struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// Client → server payloads.

// HandshakePayload authenticates a freshly dialed channel.
type HandshakePayload struct {
	Token    string `json:"token"`
	Protocol string `json:"protocol"`
}

// CommandPayload carries the command specification for a submit.
type CommandPayload struct {
	Spec CommandSpec `json:"spec"`
}

// Server → client payloads.

// HandshakeAckPayload confirms channel authentication.
type HandshakeAckPayload struct {
	SessionID string `json:"sessionId"`
}

// CommandOutputPayload is one streamed chunk of command output.
type CommandOutputPayload struct {
	Data string `json:"data"`
}

// CommandResultPayload is the terminal message for a command. Code zero
// means success; any other value is a remote failure code.
type CommandResultPayload struct {
	Code   int    `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// ErrorPayload reports a channel-level failure, including handshake
// rejection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodePayload unmarshals an envelope payload into dst, reporting the
// message type on failure.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
