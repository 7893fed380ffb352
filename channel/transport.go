package channel

import (
	"context"

	"github.com/helmsman-ops/console/core/protocol"
)

// Conn is one established connection carrying envelopes. Send and Receive
// may be called from different goroutines; Receive blocks until a frame
// arrives, the peer closes, or Close is called.
type Conn interface {
	Send(env protocol.Envelope) error
	Receive() (protocol.Envelope, error)
	Close() error
}

// Transport dials connections. The production implementation speaks
// websocket; tests substitute a scripted transport.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
