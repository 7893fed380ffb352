// Package protocol defines the wire envelope exchanged with the remote
// execution service. Every frame on the channel is an Envelope carrying a
// message type, an optional correlation id, and a type-specific payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the kind of envelope on the wire.
type MessageType string

const (
	// Client → server.
	TypeHandshake MessageType = "handshake"
	TypeHeartbeat MessageType = "heartbeat"
	TypeCommand   MessageType = "command"
	TypeCancel    MessageType = "cancel"

	// Server → client.
	TypeHandshakeAck  MessageType = "handshakeAck"
	TypeHeartbeatAck  MessageType = "heartbeatAck"
	TypeCommandAck    MessageType = "commandAck"
	TypeCommandOutput MessageType = "commandOutput"
	TypeCommandResult MessageType = "commandResult"
	TypeError         MessageType = "error"
)

// correlated lists the message types that must carry a correlation id.
var correlated = map[MessageType]bool{
	TypeCommand:       true,
	TypeCancel:        true,
	TypeCommandAck:    true,
	TypeCommandOutput: true,
	TypeCommandResult: true,
}

// Envelope is the frame format for all channel traffic. Payload holds the
// raw JSON of the type-specific payload struct.
type Envelope struct {
	Type          MessageType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEnvelope creates an envelope with the current timestamp. The payload
// is marshaled immediately so encoding errors surface at build time rather
// than at send time.
func NewEnvelope(msgType MessageType, correlationID string, payload any) (Envelope, error) {
	env := Envelope{
		Type:          msgType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodeEnvelope parses and validates a raw frame. Unknown message types
// and correlated types missing their correlation id are rejected here so
// downstream consumers only ever see well-formed envelopes.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !knownType(env.Type) {
		return Envelope{}, fmt.Errorf("decode envelope: unknown message type %q", env.Type)
	}
	if correlated[env.Type] && env.CorrelationID == "" {
		return Envelope{}, fmt.Errorf("decode envelope: %s without correlation id", env.Type)
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Correlated reports whether this envelope type addresses a specific
// in-flight command.
func (e Envelope) Correlated() bool {
	return correlated[e.Type]
}

func knownType(t MessageType) bool {
	switch t {
	case TypeHandshake, TypeHandshakeAck, TypeHeartbeat, TypeHeartbeatAck,
		TypeCommand, TypeCommandAck, TypeCommandOutput, TypeCommandResult,
		TypeCancel, TypeError:
		return true
	}
	return false
}
