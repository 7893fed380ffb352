package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/observability"
)

// Channel event types.
const (
	EventState          observability.EventType = "channel.state"
	EventDeliveryFailed observability.EventType = "channel.delivery.failed"
)

// errStopped signals a deliberate teardown inside the run loop.
var errStopped = errors.New("stopped")

// TokenFunc supplies the current session token for handshakes. It is read
// on every connection attempt so a refreshed session is picked up on
// reconnect.
type TokenFunc func() string

// Option configures a Manager after construction.
type Option func(*Manager)

// WithTransport overrides the websocket transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithObserver overrides the no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager owns one logical channel to the remote service. Safe for
// concurrent use; all state transitions happen on its run goroutine.
type Manager struct {
	cfg       Config
	token     TokenFunc
	transport Transport
	clock     Clock
	observer  observability.Observer

	mu          sync.Mutex
	status      Status
	running     bool
	stop        chan struct{}
	done        chan struct{}
	queue       []protocol.Envelope
	wake        chan struct{}
	statusSubs  map[string]chan Status
	inboundSubs map[string]chan protocol.Envelope
}

// New creates a Manager. The token func must be non-nil; transport, clock,
// and observer default to the websocket transport, the wall clock, and a
// no-op observer.
func New(cfg *Config, token TokenFunc, opts ...Option) *Manager {
	m := &Manager{
		cfg:         *cfg,
		token:       token,
		transport:   NewWebSocketTransport(),
		clock:       RealClock(),
		observer:    observability.NoOpObserver{},
		status:      Status{State: StateDisconnected},
		wake:        make(chan struct{}, 1),
		statusSubs:  make(map[string]chan Status),
		inboundSubs: make(map[string]chan protocol.Envelope),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the current state machine snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start brings the channel up. It fails with ErrNotAuthenticated when no
// session token is available (no state change) and ErrAlreadyStarted while
// running. A manager that entered Failed can be started again for an
// explicit retry.
func (m *Manager) Start() error {
	if m.token() == "" {
		return ErrNotAuthenticated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyStarted
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.run(m.stop, m.done)
	return nil
}

// Stop tears the channel down from any state and returns once the run loop
// has exited, guaranteeing that no timer fires afterwards. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		// A manager that ended in Failed still shows that state; an
		// explicit stop resets it.
		if m.status.State != StateDisconnected {
			m.transitionLocked(Status{State: StateDisconnected})
		}
		m.mu.Unlock()
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	done := m.done
	m.mu.Unlock()

	<-done
}

// Send queues an envelope for delivery. While Connected the queue drains
// immediately; while Connecting or Reconnecting messages wait and flush
// FIFO once the channel comes up. Send never blocks.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrChannelClosed
	}
	if len(m.queue) >= m.cfg.SendBuffer {
		return ErrQueueFull
	}
	m.queue = append(m.queue, env)

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// SubscribeStatus registers for state change notifications. The current
// status is delivered immediately so subscribers never start blind.
func (m *Manager) SubscribeStatus() (string, <-chan Status) {
	id := uuid.Must(uuid.NewV7()).String()
	ch := make(chan Status, 16)

	m.mu.Lock()
	m.statusSubs[id] = ch
	ch <- m.status
	m.mu.Unlock()
	return id, ch
}

// SubscribeInbound registers for inbound envelopes. Heartbeat and
// handshake traffic is consumed by the manager; subscribers see command
// and error envelopes only.
func (m *Manager) SubscribeInbound() (string, <-chan protocol.Envelope) {
	id := uuid.Must(uuid.NewV7()).String()
	ch := make(chan protocol.Envelope, 64)

	m.mu.Lock()
	m.inboundSubs[id] = ch
	m.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a status or inbound subscription.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, exists := m.statusSubs[id]; exists {
		delete(m.statusSubs, id)
		close(ch)
	}
	if ch, exists := m.inboundSubs[id]; exists {
		delete(m.inboundSubs, id)
		close(ch)
	}
}

// run is the single goroutine driving the state machine.
func (m *Manager) run(stop, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	attempt := 0
	for {
		m.transition(Status{State: StateConnecting, Attempt: attempt})

		conn, err := m.connect(stop)
		if err == nil {
			attempt = 0
			m.transition(Status{State: StateConnected})
			err = m.serve(conn, stop)
			conn.Close()
		}

		if errors.Is(err, errStopped) || stopped(stop) {
			m.clearQueue()
			m.transition(Status{State: StateDisconnected})
			return
		}
		if errors.Is(err, ErrHandshakeRejected) {
			m.dropQueue(err)
			m.transition(Status{State: StateFailed, LastError: err})
			return
		}

		attempt++
		if attempt > m.cfg.MaxAttempts {
			failure := ErrMaxAttemptsExceeded
			m.dropQueue(failure)
			m.transition(Status{State: StateFailed, Attempt: attempt, LastError: failure})
			return
		}

		delay := jitter(BackoffDelay(m.cfg.BaseDelay, m.cfg.MaxDelay, attempt))
		m.transition(Status{
			State:           StateReconnecting,
			Attempt:         attempt,
			LastError:       err,
			BackoffDeadline: m.clock.Now().Add(delay),
		})

		select {
		case <-m.clock.After(delay):
		case <-stop:
			m.clearQueue()
			m.transition(Status{State: StateDisconnected})
			return
		}
	}
}

// connect dials and authenticates one connection: dial, send handshake,
// await the ack. The whole cycle is bounded by DialTimeout.
func (m *Manager) connect(stop chan struct{}) (Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	token := m.token()
	if token == "" {
		return nil, ErrHandshakeRejected
	}

	conn, err := m.transport.Dial(ctx, m.cfg.URL)
	if err != nil {
		return nil, err
	}

	handshake, err := protocol.NewEnvelope(protocol.TypeHandshake, "", protocol.HandshakePayload{
		Token:    token,
		Protocol: protocol.Version,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Send(handshake); err != nil {
		conn.Close()
		return nil, err
	}

	type readResult struct {
		env protocol.Envelope
		err error
	}
	ack := make(chan readResult, 1)
	go func() {
		env, err := conn.Receive()
		ack <- readResult{env, err}
	}()

	select {
	case r := <-ack:
		if r.err != nil {
			conn.Close()
			return nil, r.err
		}
		switch r.env.Type {
		case protocol.TypeHandshakeAck:
			return conn, nil
		case protocol.TypeError:
			conn.Close()
			var payload protocol.ErrorPayload
			if err := protocol.DecodePayload(r.env, &payload); err == nil {
				return nil, errors.Join(ErrHandshakeRejected, errors.New(payload.Message))
			}
			return nil, ErrHandshakeRejected
		default:
			conn.Close()
			return nil, errors.New("unexpected frame before handshake ack")
		}
	case <-m.clock.After(m.cfg.DialTimeout):
		conn.Close()
		return nil, errors.New("handshake timeout")
	case <-stop:
		conn.Close()
		return nil, errStopped
	}
}

// serve runs one established connection: flushes the outbound queue,
// relays inbound frames, and keeps the heartbeat alive. Returns errStopped
// on teardown or the transport error that ended the connection.
func (m *Manager) serve(conn Conn, stop chan struct{}) error {
	finished := make(chan struct{})
	defer close(finished)

	reads := make(chan protocol.Envelope)
	readErr := make(chan error, 1)
	go func() {
		for {
			env, err := conn.Receive()
			if err != nil {
				select {
				case readErr <- err:
				case <-finished:
				}
				return
			}
			select {
			case reads <- env:
			case <-finished:
				return
			}
		}
	}()

	if err := m.drainQueue(conn); err != nil {
		return err
	}

	heartbeat := m.clock.After(m.cfg.HeartbeatInterval)
	var ackDeadline <-chan time.Time

	for {
		select {
		case <-stop:
			return errStopped

		case err := <-readErr:
			return err

		case env := <-reads:
			switch env.Type {
			case protocol.TypeHeartbeatAck:
				ackDeadline = nil
			case protocol.TypeHeartbeat, protocol.TypeHandshakeAck:
				// Not meaningful mid-session; ignore.
			default:
				m.publishInbound(env)
			}

		case <-m.wake:
			if err := m.drainQueue(conn); err != nil {
				return err
			}

		case <-heartbeat:
			ping, err := protocol.NewEnvelope(protocol.TypeHeartbeat, "", nil)
			if err != nil {
				return err
			}
			if err := conn.Send(ping); err != nil {
				return err
			}
			if ackDeadline == nil {
				ackDeadline = m.clock.After(m.cfg.HeartbeatTimeout)
			}
			heartbeat = m.clock.After(m.cfg.HeartbeatInterval)

		case <-ackDeadline:
			return ErrHeartbeatTimeout
		}
	}
}

func (m *Manager) drainQueue(conn Conn) error {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return nil
		}
		env := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := conn.Send(env); err != nil {
			return err
		}
	}
}

// dropQueue discards queued messages on transition to Failed, emitting a
// delivery-failed event per message so the dispatcher can surface them.
func (m *Manager) dropQueue(cause error) {
	m.mu.Lock()
	dropped := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, env := range dropped {
		m.observer.OnEvent(context.Background(), observability.Event{
			Type:      EventDeliveryFailed,
			Level:     observability.LevelWarning,
			Timestamp: m.clock.Now(),
			Source:    "channel.Manager",
			Data: map[string]any{
				"type":           string(env.Type),
				"correlation_id": env.CorrelationID,
				"error":          cause.Error(),
			},
		})
	}
}

func (m *Manager) clearQueue() {
	m.mu.Lock()
	m.queue = nil
	m.mu.Unlock()
}

func (m *Manager) transition(next Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(next)
}

func (m *Manager) transitionLocked(next Status) {
	m.status = next

	data := map[string]any{"state": next.State.String(), "attempt": next.Attempt}
	if next.LastError != nil {
		data["error"] = next.LastError.Error()
	}
	m.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventState,
		Level:     observability.LevelInfo,
		Timestamp: m.clock.Now(),
		Source:    "channel.Manager",
		Data:      data,
	})

	// Latest status wins: a full subscriber loses its oldest snapshot, not
	// the newest. The dispatcher relies on seeing the transition out of
	// Connected to finalize in-flight commands, so that one must never be
	// the one dropped.
	// All sends happen under m.mu, so after evicting one slot the retry
	// cannot fail.
	for _, ch := range m.statusSubs {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}

func (m *Manager) publishInbound(env protocol.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.inboundSubs {
		select {
		case ch <- env:
		default:
		}
	}
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
