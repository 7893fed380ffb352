// Package session owns authentication state for the console: login, logout,
// restore from durable storage, and read access to the current token. The
// Guard is the only writer of the persisted session record; every other
// subsystem reads the token through it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helmsman-ops/console/observability"
)

// Session event types.
const (
	EventChanged observability.EventType = "session.changed"
	EventRestore observability.EventType = "session.restore"
)

// Session is the authentication state visible to the rest of the console.
// The zero value is logged out.
type Session struct {
	Identity string
	Token    string
	IssuedAt time.Time
}

// Authenticated reports whether the session holds a usable token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Authenticator exchanges credentials for a token with the remote service.
// Implementations map their failures onto ErrInvalidCredentials,
// ErrServerRejected, or ErrNetworkUnavailable.
type Authenticator interface {
	Login(ctx context.Context, identity, secret string) (token string, err error)
}

// Guard manages the session lifecycle. Safe for concurrent use.
type Guard struct {
	auth     Authenticator
	store    Store
	observer observability.Observer
	clock    func() time.Time

	mu          sync.Mutex
	current     Session
	subscribers map[string]chan Session
}

// NewGuard creates a Guard over the given authenticator and store.
func NewGuard(auth Authenticator, store Store, observer observability.Observer) *Guard {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Guard{
		auth:        auth,
		store:       store,
		observer:    observer,
		clock:       time.Now,
		subscribers: make(map[string]chan Session),
	}
}

// Login authenticates with the remote service and persists the resulting
// session. On any failure the current session is unchanged.
func (g *Guard) Login(ctx context.Context, identity, secret string) (Session, error) {
	token, err := g.auth.Login(ctx, identity, secret)
	if err != nil {
		g.observer.OnEvent(ctx, observability.Event{
			Type:      EventChanged,
			Level:     observability.LevelWarning,
			Timestamp: g.clock(),
			Source:    "session.Guard",
			Data:      map[string]any{"identity": identity, "error": err.Error()},
		})
		return Session{}, err
	}

	next := Session{Identity: identity, Token: token, IssuedAt: g.clock()}
	if err := g.store.Save(ctx, Record{Token: token, User: UserRecord{Identity: identity}}); err != nil {
		return Session{}, err
	}

	g.mu.Lock()
	g.current = next
	g.mu.Unlock()

	g.observer.OnEvent(ctx, observability.Event{
		Type:      EventChanged,
		Level:     observability.LevelInfo,
		Timestamp: g.clock(),
		Source:    "session.Guard",
		Data:      map[string]any{"identity": identity, "authenticated": true},
	})
	g.notify(next)
	return next, nil
}

// Logout clears the persisted session synchronously. Calling it while
// already logged out is a no-op.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	hadSession := g.current.Authenticated()
	g.current = Session{}
	g.mu.Unlock()

	if err := g.store.Clear(ctx); err != nil {
		return err
	}
	if !hadSession {
		return nil
	}

	g.observer.OnEvent(ctx, observability.Event{
		Type:      EventChanged,
		Level:     observability.LevelInfo,
		Timestamp: g.clock(),
		Source:    "session.Guard",
		Data:      map[string]any{"authenticated": false},
	})
	g.notify(Session{})
	return nil
}

// Restore loads the persisted session at startup. A missing, malformed, or
// structurally incomplete record yields logged-out without error; the
// failure is only visible as a verbose event.
func (g *Guard) Restore(ctx context.Context) Session {
	record, err := g.store.Load(ctx)
	if err != nil || record.Token == "" || record.User.Identity == "" {
		detail := "no usable record"
		if err != nil {
			detail = err.Error()
		}
		g.observer.OnEvent(ctx, observability.Event{
			Type:      EventRestore,
			Level:     observability.LevelVerbose,
			Timestamp: g.clock(),
			Source:    "session.Guard",
			Data:      map[string]any{"restored": false, "detail": detail},
		})
		return Session{}
	}

	restored := Session{Identity: record.User.Identity, Token: record.Token, IssuedAt: g.clock()}
	g.mu.Lock()
	g.current = restored
	g.mu.Unlock()

	g.observer.OnEvent(ctx, observability.Event{
		Type:      EventRestore,
		Level:     observability.LevelInfo,
		Timestamp: g.clock(),
		Source:    "session.Guard",
		Data:      map[string]any{"restored": true, "identity": restored.Identity},
	})
	g.notify(restored)
	return restored
}

// Current returns a snapshot of the session state.
func (g *Guard) Current() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Token returns the current token, or empty when logged out. Used by the
// channel layer for handshakes.
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current.Token
}

// Subscribe registers for session change notifications. The returned channel
// receives a snapshot after every login, logout, and successful restore.
// Slow subscribers miss intermediate snapshots rather than block the Guard.
func (g *Guard) Subscribe() (string, <-chan Session) {
	id := uuid.Must(uuid.NewV7()).String()
	ch := make(chan Session, 8)

	g.mu.Lock()
	g.subscribers[id] = ch
	g.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (g *Guard) Unsubscribe(id string) {
	g.mu.Lock()
	ch, exists := g.subscribers[id]
	delete(g.subscribers, id)
	g.mu.Unlock()

	if exists {
		close(ch)
	}
}

// notify fans out under the lock so a concurrent Unsubscribe cannot close
// a channel mid-send.
func (g *Guard) notify(snapshot Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
