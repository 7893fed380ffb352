package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/history"
	"github.com/helmsman-ops/console/observability"
)

// Event types emitted by the dispatcher.
const (
	EventCommandUpdated     observability.EventType = "dispatch.command.updated"
	EventUnknownCorrelation observability.EventType = "dispatch.correlation.unknown"
	EventHistoryWriteFailed observability.EventType = "dispatch.history.failed"
)

// Link is the slice of the channel manager the dispatcher depends on.
// *channel.Manager satisfies it.
type Link interface {
	Status() channel.Status
	Send(env protocol.Envelope) error
	SubscribeStatus() (string, <-chan channel.Status)
	SubscribeInbound() (string, <-chan protocol.Envelope)
	Unsubscribe(id string)
}

// Option overrides a dispatcher collaborator, typically in tests.
type Option func(*Dispatcher)

func WithClock(c channel.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithObserver(o observability.Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher correlates submitted commands with the responses the channel
// delivers for them. All command state lives behind one mutex; Submit and
// Cancel never block on the network.
type Dispatcher struct {
	link     Link
	store    history.Store
	clock    channel.Clock
	observer observability.Observer

	mu        sync.Mutex
	closed    bool
	counter   uint64
	inflight  map[string]*Command
	cancelled map[string]struct{}

	statusSubID  string
	inboundSubID string
	done         chan struct{}
	loopDone     chan struct{}
}

// New wires a dispatcher to the channel link and history store and starts
// its correlation loop.
func New(link Link, store history.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		link:      link,
		store:     store,
		clock:     channel.RealClock(),
		observer:  observability.NoOpObserver{},
		inflight:  make(map[string]*Command),
		cancelled: make(map[string]struct{}),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	var statusCh <-chan channel.Status
	var inboundCh <-chan protocol.Envelope
	d.statusSubID, statusCh = link.SubscribeStatus()
	d.inboundSubID, inboundCh = link.SubscribeInbound()
	go d.loop(statusCh, inboundCh)
	return d
}

// Submit sends the spec as a new command and returns its correlation id.
// Requires the channel to be Connected.
func (d *Dispatcher) Submit(ctx context.Context, spec protocol.CommandSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", ErrDispatcherClosed
	}
	if d.link.Status().State != channel.StateConnected {
		return "", ErrNotConnected
	}

	d.counter++
	id := fmt.Sprintf("c-%d", d.counter)

	env, err := protocol.NewEnvelope(protocol.TypeCommand, id, protocol.CommandPayload{Spec: spec})
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}
	if err := d.link.Send(env); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}

	cmd := &Command{
		CorrelationID: id,
		Spec:          spec,
		State:         StatePending,
		SubmittedAt:   d.clock.Now(),
	}
	d.inflight[id] = cmd
	d.emitUpdated(ctx, cmd)
	return id, nil
}

// Cancel finalizes the command locally and notifies the remote end on a
// best-effort basis. A later result for the id can still fill in the
// recorded result code but never changes the cancelled state.
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	cmd, ok := d.inflight[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCorrelation, id)
	}

	if d.link.Status().State == channel.StateConnected {
		if env, err := protocol.NewEnvelope(protocol.TypeCancel, id, nil); err == nil {
			d.link.Send(env)
		}
	}

	cmd.State = StateCancelled
	cmd.FinishedAt = d.clock.Now()
	d.cancelled[id] = struct{}{}
	d.finalizeLocked(ctx, cmd)
	return nil
}

// InFlight returns a snapshot of the commands still awaiting a terminal
// state, in submission order.
func (d *Dispatcher) InFlight() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := make([]Command, 0, len(d.inflight))
	for _, cmd := range d.inflight {
		copied := *cmd
		copied.Output = append([]string(nil), cmd.Output...)
		snapshot = append(snapshot, copied)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return correlationSeq(snapshot[i].CorrelationID) < correlationSeq(snapshot[j].CorrelationID)
	})
	return snapshot
}

// Close detaches the dispatcher from the channel. In-flight commands are
// finalized as lost.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.failAllLocked(context.Background())
	d.mu.Unlock()

	close(d.done)
	d.link.Unsubscribe(d.statusSubID)
	d.link.Unsubscribe(d.inboundSubID)
	<-d.loopDone
}

func (d *Dispatcher) loop(statusCh <-chan channel.Status, inboundCh <-chan protocol.Envelope) {
	defer close(d.loopDone)
	for {
		select {
		case <-d.done:
			return
		case status, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			d.handleStatus(status)
		case env, ok := <-inboundCh:
			if !ok {
				inboundCh = nil
				continue
			}
			d.handleInbound(env)
		}
		if statusCh == nil && inboundCh == nil {
			return
		}
	}
}

func (d *Dispatcher) handleStatus(status channel.Status) {
	switch status.State {
	case channel.StateReconnecting, channel.StateDisconnected, channel.StateFailed:
		d.mu.Lock()
		d.failAllLocked(context.Background())
		d.mu.Unlock()
	}
}

func (d *Dispatcher) handleInbound(env protocol.Envelope) {
	ctx := context.Background()

	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, known := d.inflight[env.CorrelationID]

	switch env.Type {
	case protocol.TypeCommandAck:
		if !known {
			d.emitUnknown(ctx, env)
		}

	case protocol.TypeCommandOutput:
		if !known {
			if _, wasCancelled := d.cancelled[env.CorrelationID]; !wasCancelled {
				d.emitUnknown(ctx, env)
			}
			return
		}
		var payload protocol.CommandOutputPayload
		if err := protocol.DecodePayload(env, &payload); err != nil {
			d.emitUnknown(ctx, env)
			return
		}
		cmd.Output = append(cmd.Output, payload.Data)
		if cmd.State == StatePending {
			cmd.State = StateStreaming
		}
		d.emitUpdated(ctx, cmd)

	case protocol.TypeCommandResult:
		var payload protocol.CommandResultPayload
		if err := protocol.DecodePayload(env, &payload); err != nil {
			d.emitUnknown(ctx, env)
			return
		}
		if !known {
			d.amendCancelledLocked(ctx, env.CorrelationID, payload.Code)
			return
		}
		code := payload.Code
		cmd.ResultCode = &code
		cmd.FinishedAt = d.clock.Now()
		if code == 0 {
			cmd.State = StateCompleted
		} else {
			cmd.State = StateFailed
			cmd.Err = &ServerError{Code: code, Detail: payload.Detail}
		}
		d.finalizeLocked(ctx, cmd)
	}
}

// amendCancelledLocked handles a terminal result arriving after a local
// cancel: the history entry keeps its cancelled state and gains the code.
func (d *Dispatcher) amendCancelledLocked(ctx context.Context, id string, code int) {
	if _, ok := d.cancelled[id]; !ok {
		d.observer.OnEvent(ctx, observability.Event{
			Type:      EventUnknownCorrelation,
			Level:     observability.LevelVerbose,
			Timestamp: d.clock.Now(),
			Source:    "dispatch.Dispatcher",
			Data:      map[string]any{"correlation_id": id, "type": string(protocol.TypeCommandResult)},
		})
		return
	}
	delete(d.cancelled, id)
	if err := d.store.AmendResultCode(ctx, id, code); err != nil {
		d.emitHistoryFailure(ctx, id, err)
	}
}

// finalizeLocked writes the terminal history entry and removes the command
// from the in-flight set. Append and removal happen under the same lock so
// no observer can see a terminal command still in flight.
func (d *Dispatcher) finalizeLocked(ctx context.Context, cmd *Command) {
	delete(d.inflight, cmd.CorrelationID)

	entry := history.Entry{
		CorrelationID: cmd.CorrelationID,
		Spec:          cmd.Spec,
		State:         cmd.State.String(),
		ResultCode:    cmd.ResultCode,
		StartedAt:     cmd.SubmittedAt,
		FinishedAt:    cmd.FinishedAt,
		Output:        strings.Join(cmd.Output, ""),
	}
	if err := d.store.Append(ctx, entry); err != nil {
		d.emitHistoryFailure(ctx, cmd.CorrelationID, err)
	}
	d.emitUpdated(ctx, cmd)
}

func (d *Dispatcher) failAllLocked(ctx context.Context) {
	for _, cmd := range d.inflight {
		cmd.State = StateFailed
		cmd.Err = ErrConnectionLost
		cmd.FinishedAt = d.clock.Now()
		d.finalizeLocked(ctx, cmd)
	}
	// A replaced connection can never deliver a late result for an id
	// cancelled on the old one, so pending amendments are dropped too.
	clear(d.cancelled)
}

func (d *Dispatcher) emitUpdated(ctx context.Context, cmd *Command) {
	data := map[string]any{
		"correlation_id": cmd.CorrelationID,
		"state":          cmd.State.String(),
		"spec_type":      cmd.Spec.Type,
	}
	if cmd.Err != nil {
		data["error"] = cmd.Err.Error()
	}
	d.observer.OnEvent(ctx, observability.Event{
		Type:      EventCommandUpdated,
		Level:     observability.LevelInfo,
		Timestamp: d.clock.Now(),
		Source:    "dispatch.Dispatcher",
		Data:      data,
	})
}

func (d *Dispatcher) emitUnknown(ctx context.Context, env protocol.Envelope) {
	d.observer.OnEvent(ctx, observability.Event{
		Type:      EventUnknownCorrelation,
		Level:     observability.LevelVerbose,
		Timestamp: d.clock.Now(),
		Source:    "dispatch.Dispatcher",
		Data: map[string]any{
			"correlation_id": env.CorrelationID,
			"type":           string(env.Type),
		},
	})
}

func (d *Dispatcher) emitHistoryFailure(ctx context.Context, id string, err error) {
	d.observer.OnEvent(ctx, observability.Event{
		Type:      EventHistoryWriteFailed,
		Level:     observability.LevelError,
		Timestamp: d.clock.Now(),
		Source:    "dispatch.Dispatcher",
		Data:      map[string]any{"correlation_id": id, "error": err.Error()},
	})
}

func correlationSeq(id string) uint64 {
	seq, _ := strconv.ParseUint(strings.TrimPrefix(id, "c-"), 10, 64)
	return seq
}
