// Package mock provides test doubles for the channel package: a scripted
// Transport whose connections are driven from the test, and a manually
// advanced Clock.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/core/protocol"
)

// ErrConnClosed is returned by Receive after the connection closes.
var ErrConnClosed = errors.New("mock connection closed")

// Conn is a scripted connection. The test delivers server frames with
// Deliver and inspects client frames via Sent/WaitSent.
type Conn struct {
	inbound chan protocol.Envelope
	closed  chan struct{}

	mu      sync.Mutex
	sent    []protocol.Envelope
	sentSig chan struct{}
	sendErr error
	once    sync.Once
}

// NewConn creates an open scripted connection.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan protocol.Envelope, 64),
		closed:  make(chan struct{}),
		sentSig: make(chan struct{}, 1),
	}
}

func (c *Conn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, env)
	c.mu.Unlock()

	select {
	case c.sentSig <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Receive() (protocol.Envelope, error) {
	select {
	case env := <-c.inbound:
		return env, nil
	case <-c.closed:
		return protocol.Envelope{}, ErrConnClosed
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues a server-originated frame for Receive.
func (c *Conn) Deliver(env protocol.Envelope) {
	c.inbound <- env
}

// Drop makes the connection fail: pending and future Receive calls return
// ErrConnClosed, simulating a transport error.
func (c *Conn) Drop() {
	c.Close()
}

// FailSends makes all subsequent Send calls return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns a copy of every frame the client wrote so far.
func (c *Conn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]protocol.Envelope, len(c.sent))
	copy(copied, c.sent)
	return copied
}

// WaitSent blocks until at least n frames were written or the timeout
// elapses, returning the frames seen.
func (c *Conn) WaitSent(n int, timeout time.Duration) ([]protocol.Envelope, error) {
	deadline := time.After(timeout)
	for {
		if sent := c.Sent(); len(sent) >= n {
			return sent, nil
		}
		select {
		case <-c.sentSig:
		case <-deadline:
			return c.Sent(), fmt.Errorf("timeout waiting for %d sent frames, have %d", n, len(c.Sent()))
		}
	}
}

// Transport is a scripted channel.Transport. Each Dial hands out a fresh
// Conn, or a scripted error when one is queued.
type Transport struct {
	mu       sync.Mutex
	conns    []*Conn
	dials    int
	dialErrs []error
	dialSig  chan struct{}
}

// NewTransport creates an empty scripted transport.
func NewTransport() *Transport {
	return &Transport{dialSig: make(chan struct{}, 16)}
}

func (t *Transport) Dial(ctx context.Context, url string) (channel.Conn, error) {
	t.mu.Lock()
	t.dials++
	if len(t.dialErrs) > 0 {
		err := t.dialErrs[0]
		t.dialErrs = t.dialErrs[1:]
		t.mu.Unlock()
		t.signal()
		return nil, err
	}
	conn := NewConn()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	t.signal()
	return conn, nil
}

func (t *Transport) signal() {
	select {
	case t.dialSig <- struct{}{}:
	default:
	}
}

// QueueDialError makes the next Dial fail with err.
func (t *Transport) QueueDialError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErrs = append(t.dialErrs, err)
}

// Dials returns how many Dial calls happened (including failed ones).
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Conn returns the i-th successfully dialed connection, waiting up to
// timeout for it to appear.
func (t *Transport) Conn(i int, timeout time.Duration) (*Conn, error) {
	deadline := time.After(timeout)
	for {
		t.mu.Lock()
		if len(t.conns) > i {
			conn := t.conns[i]
			t.mu.Unlock()
			return conn, nil
		}
		t.mu.Unlock()

		select {
		case <-t.dialSig:
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for connection %d", i)
		}
	}
}
