package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helmsman-ops/console/core/protocol"
)

const writeTimeout = 10 * time.Second

type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates the production Transport over websocket.
// Envelopes travel as JSON text frames.
func NewWebSocketTransport() Transport {
	return &wsTransport{dialer: websocket.DefaultDialer}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
	// writeMu serializes writers; gorilla/websocket allows at most one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

func (c *wsConn) Send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *wsConn) Receive() (protocol.Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("read frame: %w", err)
	}
	return protocol.DecodeEnvelope(data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
