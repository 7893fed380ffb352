package console_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/channel/mock"
	"github.com/helmsman-ops/console/console"
	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/dispatch"
	"github.com/helmsman-ops/console/history"
	"github.com/helmsman-ops/console/observability"
	"github.com/helmsman-ops/console/session"
)

const waitFor = 2 * time.Second

type stubAuth struct {
	token string
	err   error
}

func (a *stubAuth) Login(ctx context.Context, identity, secret string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.token, nil
}

func testConfig() *console.Config {
	cfg := console.DefaultConfig()
	cfg.Channel.URL = "ws://remote.test/channel"
	cfg.Channel.BaseDelay = 5 * time.Millisecond
	cfg.Channel.MaxDelay = 20 * time.Millisecond
	cfg.Channel.MaxAttempts = 1
	cfg.Channel.HeartbeatInterval = time.Hour
	cfg.Channel.HeartbeatTimeout = time.Hour
	return &cfg
}

func newConsole(t *testing.T, transport *mock.Transport) *console.Console {
	t.Helper()
	c, err := console.New(testConfig(),
		console.WithTransport(transport),
		console.WithAuthenticator(&stubAuth{token: "tok-1"}),
		console.WithSessionStore(session.NewMemoryStore()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func waitState(t *testing.T, ch <-chan channel.Status, want channel.State) channel.Status {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case status := <-ch:
			if status.State == want {
				return status
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %v", want)
		}
	}
}

func completeHandshake(t *testing.T, transport *mock.Transport, i int) *mock.Conn {
	t.Helper()
	conn, err := transport.Conn(i, waitFor)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.WaitSent(1, waitFor); err != nil {
		t.Fatal(err)
	}
	ack, _ := protocol.NewEnvelope(protocol.TypeHandshakeAck, "", protocol.HandshakeAckPayload{SessionID: "s-1"})
	conn.Deliver(ack)
	return conn
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConsole_StartRequiresLogin(t *testing.T) {
	c := newConsole(t, mock.NewTransport())

	if err := c.Start(); !errors.Is(err, channel.ErrNotAuthenticated) {
		t.Fatalf("Start() before login error = %v, want ErrNotAuthenticated", err)
	}
}

func TestConsole_LoginStartSubmit(t *testing.T) {
	transport := mock.NewTransport()
	c := newConsole(t, transport)
	ctx := context.Background()

	if _, err := c.Login(ctx, "operator", "secret"); err != nil {
		t.Fatal(err)
	}
	if !c.Session().Authenticated() {
		t.Fatal("session not authenticated after login")
	}

	subID, status := c.SubscribeStatus()
	defer c.UnsubscribeStatus(subID)

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	conn := completeHandshake(t, transport, 0)
	waitState(t, status, channel.StateConnected)

	id, err := c.Submit(ctx, protocol.CommandSpec{Type: "deploy"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "c-1" {
		t.Errorf("correlation id = %s, want c-1", id)
	}

	result, _ := protocol.NewEnvelope(protocol.TypeCommandResult, id, protocol.CommandResultPayload{Code: 0})
	conn.Deliver(result)

	eventually(t, func() bool { return len(c.InFlight()) == 0 }, "command never finalized")

	entries, err := c.History(ctx, history.Filter{}, history.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State != "completed" {
		t.Fatalf("history = %+v, want one completed entry", entries)
	}
}

func TestConsole_HandshakeRejectionForcesLogout(t *testing.T) {
	transport := mock.NewTransport()
	c := newConsole(t, transport)
	ctx := context.Background()

	if _, err := c.Login(ctx, "operator", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	conn, err := transport.Conn(0, waitFor)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.WaitSent(1, waitFor); err != nil {
		t.Fatal(err)
	}
	rejection, _ := protocol.NewEnvelope(protocol.TypeError, "", protocol.ErrorPayload{Code: "AUTH", Message: "token revoked"})
	conn.Deliver(rejection)

	eventually(t, func() bool { return !c.Session().Authenticated() }, "session never cleared after rejection")
}

func TestConsole_LogoutStopsChannel(t *testing.T) {
	transport := mock.NewTransport()
	c := newConsole(t, transport)
	ctx := context.Background()

	if _, err := c.Login(ctx, "operator", "secret"); err != nil {
		t.Fatal(err)
	}

	subID, status := c.SubscribeStatus()
	defer c.UnsubscribeStatus(subID)

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	completeHandshake(t, transport, 0)
	waitState(t, status, channel.StateConnected)

	if err := c.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.Status().State; got != channel.StateDisconnected {
		t.Errorf("state after logout = %v, want Disconnected", got)
	}
	if c.Session().Authenticated() {
		t.Error("session still authenticated after logout")
	}
}

func TestConsole_ShutdownClosesDispatcher(t *testing.T) {
	c, err := console.New(testConfig(),
		console.WithTransport(mock.NewTransport()),
		console.WithAuthenticator(&stubAuth{token: "tok-1"}),
		console.WithSessionStore(session.NewMemoryStore()),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit(context.Background(), protocol.CommandSpec{Type: "status"}); !errors.Is(err, dispatch.ErrDispatcherClosed) {
		t.Errorf("Submit() after Shutdown error = %v, want ErrDispatcherClosed", err)
	}
}

func TestConsole_RestoreAcrossInstances(t *testing.T) {
	store := session.NewMemoryStore()
	build := func() *console.Console {
		c, err := console.New(testConfig(),
			console.WithTransport(mock.NewTransport()),
			console.WithAuthenticator(&stubAuth{token: "tok-1"}),
			console.WithSessionStore(store),
		)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	ctx := context.Background()
	first := build()
	if _, err := first.Login(ctx, "operator", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := first.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	second := build()
	defer second.Shutdown(ctx)
	restored := second.Restore(ctx)
	if !restored.Authenticated() || restored.Identity != "operator" {
		t.Fatalf("restored = %+v, want authenticated operator", restored)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.json")
	raw := `{
		"observer": "noop",
		"channel": {"url": "wss://ops.example.com/channel", "max_attempts": 3},
		"history": {"backend": "sqlite", "path": "/tmp/history.db", "retention": {"mode": "capped", "cap": 500}}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := console.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channel.URL != "wss://ops.example.com/channel" {
		t.Errorf("url = %q", cfg.Channel.URL)
	}
	if cfg.Channel.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Channel.MaxAttempts)
	}
	// Defaults survive a partial file.
	if cfg.Channel.BaseDelay != 500*time.Millisecond {
		t.Errorf("base delay = %v, want default 500ms", cfg.Channel.BaseDelay)
	}
	if cfg.History.Backend != history.BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.History.Backend)
	}
	if cfg.History.Retention.Mode != history.RetentionCapped || cfg.History.Retention.Cap != 500 {
		t.Errorf("retention = %+v", cfg.History.Retention)
	}
	if cfg.Observer != "noop" {
		t.Errorf("observer = %q, want noop", cfg.Observer)
	}
}

func TestNewRejectsUnknownObserver(t *testing.T) {
	cfg := testConfig()
	cfg.Observer = "not-registered"

	_, err := console.New(cfg,
		console.WithTransport(mock.NewTransport()),
		console.WithAuthenticator(&stubAuth{token: "tok-1"}),
		console.WithSessionStore(session.NewMemoryStore()),
	)
	if !errors.Is(err, observability.ErrUnknownObserver) {
		t.Fatalf("New() error = %v, want ErrUnknownObserver", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := console.LoadConfig("/nonexistent/console.json"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
