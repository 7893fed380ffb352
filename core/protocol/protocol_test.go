package protocol_test

import (
	"strings"
	"testing"

	"github.com/helmsman-ops/console/core/protocol"
)

func TestNewEnvelope_RoundTrip(t *testing.T) {
	env, err := protocol.NewEnvelope(protocol.TypeCommand, "c-1", protocol.CommandPayload{
		Spec: protocol.CommandSpec{Type: "list-teams"},
	})
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := protocol.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if decoded.Type != protocol.TypeCommand {
		t.Errorf("got type %q, want %q", decoded.Type, protocol.TypeCommand)
	}
	if decoded.CorrelationID != "c-1" {
		t.Errorf("got correlation id %q, want %q", decoded.CorrelationID, "c-1")
	}

	var payload protocol.CommandPayload
	if err := protocol.DecodePayload(decoded, &payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Spec.Type != "list-teams" {
		t.Errorf("got spec type %q, want %q", payload.Spec.Type, "list-teams")
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"malformed json", `{`, "decode envelope"},
		{"unknown type", `{"type":"shutdown"}`, "unknown message type"},
		{"output without correlation", `{"type":"commandOutput"}`, "without correlation id"},
		{"cancel without correlation", `{"type":"cancel"}`, "without correlation id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.DecodeEnvelope([]byte(tt.raw))
			if err == nil {
				t.Fatal("DecodeEnvelope() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeEnvelope_UncorrelatedTypes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"heartbeat"}`,
		`{"type":"heartbeatAck"}`,
		`{"type":"handshakeAck","payload":{"sessionId":"s-1"}}`,
		`{"type":"error","payload":{"code":"AUTH","message":"rejected"}}`,
	} {
		if _, err := protocol.DecodeEnvelope([]byte(raw)); err != nil {
			t.Errorf("DecodeEnvelope(%s) error = %v", raw, err)
		}
	}
}

func TestEnvelope_Correlated(t *testing.T) {
	env, _ := protocol.NewEnvelope(protocol.TypeHeartbeat, "", nil)
	if env.Correlated() {
		t.Error("heartbeat should not be correlated")
	}
	env, _ = protocol.NewEnvelope(protocol.TypeCommandResult, "c-2", protocol.CommandResultPayload{Code: 0})
	if !env.Correlated() {
		t.Error("commandResult should be correlated")
	}
}

func TestDecodePayload_Empty(t *testing.T) {
	env, _ := protocol.NewEnvelope(protocol.TypeHeartbeat, "", nil)
	var payload protocol.CommandResultPayload
	if err := protocol.DecodePayload(env, &payload); err == nil {
		t.Error("DecodePayload() on empty payload expected error")
	}
}
