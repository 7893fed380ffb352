// Package console composes the session guard, connection manager, command
// dispatcher, and history store into one service object with an explicit
// lifecycle. Callers construct it once, log in or restore, start the
// channel, submit commands, and shut it down.
package console

import (
	"context"
	"errors"
	"log/slog"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/dispatch"
	"github.com/helmsman-ops/console/history"
	"github.com/helmsman-ops/console/observability"
	"github.com/helmsman-ops/console/session"
)

// Option overrides a subsystem collaborator, typically in tests.
type Option func(*options)

type options struct {
	transport    channel.Transport
	clock        channel.Clock
	observer     observability.Observer
	auth         session.Authenticator
	historyStore history.Store
	sessionStore session.Store
}

func WithTransport(t channel.Transport) Option {
	return func(o *options) { o.transport = t }
}

func WithClock(c channel.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithAuthenticator(a session.Authenticator) Option {
	return func(o *options) { o.auth = a }
}

func WithHistoryStore(s history.Store) Option {
	return func(o *options) { o.historyStore = s }
}

func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.sessionStore = s }
}

// Console is the composed front end core. All methods are safe for
// concurrent use.
type Console struct {
	guard      *session.Guard
	manager    *channel.Manager
	dispatcher *dispatch.Dispatcher
	store      history.Store
	observer   observability.Observer

	watchSubID string
	watchDone  chan struct{}
}

// New builds a Console from configuration. Options replace the
// config-created collaborators.
func New(cfg *Config, opts ...Option) (*Console, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	observer := o.observer
	if observer == nil && cfg.Observer != "" {
		var err error
		observer, err = observability.GetObserver(cfg.Observer)
		if err != nil {
			return nil, err
		}
	}
	if observer == nil {
		observer = observability.NewSlogObserver(slog.Default())
	}

	auth := o.auth
	if auth == nil {
		auth = session.NewHTTPAuthenticator(cfg.Session.AuthURL)
	}

	var guard *session.Guard
	if o.sessionStore != nil {
		guard = session.NewGuard(auth, o.sessionStore, observer)
	} else {
		var err error
		guard, err = session.New(&cfg.Session, auth, observer)
		if err != nil {
			return nil, err
		}
	}

	store := o.historyStore
	if store == nil {
		var err error
		store, err = history.New(context.Background(), &cfg.History)
		if err != nil {
			return nil, err
		}
	}

	managerOpts := []channel.Option{channel.WithObserver(observer)}
	if o.transport != nil {
		managerOpts = append(managerOpts, channel.WithTransport(o.transport))
	}
	if o.clock != nil {
		managerOpts = append(managerOpts, channel.WithClock(o.clock))
	}
	manager := channel.New(&cfg.Channel, guard.Token, managerOpts...)

	dispatcherOpts := []dispatch.Option{dispatch.WithObserver(observer)}
	if o.clock != nil {
		dispatcherOpts = append(dispatcherOpts, dispatch.WithClock(o.clock))
	}
	dispatcher := dispatch.New(manager, store, dispatcherOpts...)

	c := &Console{
		guard:      guard,
		manager:    manager,
		dispatcher: dispatcher,
		store:      store,
		observer:   observer,
		watchDone:  make(chan struct{}),
	}

	var statusCh <-chan channel.Status
	c.watchSubID, statusCh = manager.SubscribeStatus()
	go c.watchStatus(statusCh)
	return c, nil
}

// watchStatus enforces the handshake contract: a rejected token means the
// stored session is no longer valid, so the console logs out.
func (c *Console) watchStatus(statusCh <-chan channel.Status) {
	defer close(c.watchDone)
	for status := range statusCh {
		if status.State == channel.StateFailed && errors.Is(status.LastError, channel.ErrHandshakeRejected) {
			c.guard.Logout(context.Background())
		}
	}
}

// Restore loads a previously persisted session, if any.
func (c *Console) Restore(ctx context.Context) session.Session {
	return c.guard.Restore(ctx)
}

// Login authenticates and persists the session.
func (c *Console) Login(ctx context.Context, identity, secret string) (session.Session, error) {
	return c.guard.Login(ctx, identity, secret)
}

// Logout stops the channel and clears the session.
func (c *Console) Logout(ctx context.Context) error {
	c.manager.Stop()
	return c.guard.Logout(ctx)
}

// Start opens the channel. Requires an authenticated session.
func (c *Console) Start() error {
	return c.manager.Start()
}

// Stop closes the channel without touching the session.
func (c *Console) Stop() {
	c.manager.Stop()
}

// Submit dispatches a command and returns its correlation id.
func (c *Console) Submit(ctx context.Context, spec protocol.CommandSpec) (string, error) {
	return c.dispatcher.Submit(ctx, spec)
}

// Cancel cancels an in-flight command by correlation id.
func (c *Console) Cancel(ctx context.Context, id string) error {
	return c.dispatcher.Cancel(ctx, id)
}

// InFlight returns the commands still awaiting a terminal state.
func (c *Console) InFlight() []dispatch.Command {
	return c.dispatcher.InFlight()
}

// History queries the terminal command record.
func (c *Console) History(ctx context.Context, filter history.Filter, page history.Page) ([]history.Entry, error) {
	return c.store.Query(ctx, filter, page)
}

// Status returns the current channel status.
func (c *Console) Status() channel.Status {
	return c.manager.Status()
}

// Session returns the current session snapshot.
func (c *Console) Session() session.Session {
	return c.guard.Current()
}

// SubscribeStatus exposes channel status transitions to callers such as the
// CLI event loop. Release with UnsubscribeStatus.
func (c *Console) SubscribeStatus() (string, <-chan channel.Status) {
	return c.manager.SubscribeStatus()
}

// UnsubscribeStatus releases a status subscription.
func (c *Console) UnsubscribeStatus(id string) {
	c.manager.Unsubscribe(id)
}

// Shutdown tears everything down: dispatcher, channel, history store. The
// persisted session is left intact so the next start can restore it.
func (c *Console) Shutdown(ctx context.Context) error {
	c.dispatcher.Close()
	c.manager.Unsubscribe(c.watchSubID)
	<-c.watchDone
	c.manager.Stop()
	return c.store.Close()
}
