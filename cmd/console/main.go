package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/helmsman-ops/console/channel"
	"github.com/helmsman-ops/console/console"
	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/history"
	"github.com/helmsman-ops/console/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to console config JSON file")
		url        = flag.String("url", "", "Channel endpoint URL (overrides config)")
		login      = flag.String("login", "", "Identity to log in as; prompts for the secret")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := console.DefaultConfig()
	if *configFile != "" {
		loaded, err := console.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *url != "" {
		cfg.Channel.URL = *url
	}
	if cfg.Channel.URL == "" {
		fmt.Fprintln(os.Stderr, "Usage: console -config <file> | -url <endpoint> [-login <identity>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	app, err := console.New(&cfg, console.WithObserver(observability.NewSlogObserver(logger)))
	if err != nil {
		log.Fatalf("Failed to create console: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, *login); err != nil {
		app.Shutdown(context.Background())
		log.Fatalf("Console failed: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

func run(ctx context.Context, app *console.Console, login string) error {
	current := app.Restore(ctx)
	if login != "" && (!current.Authenticated() || current.Identity != login) {
		fmt.Fprintf(os.Stderr, "Secret for %s: ", login)
		secret, err := readLine(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		if current, err = app.Login(ctx, login, secret); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	if !current.Authenticated() {
		return fmt.Errorf("no session; run with -login <identity>")
	}
	fmt.Fprintf(os.Stderr, "Logged in as %s\n", current.Identity)

	subID, status := app.SubscribeStatus()
	defer app.UnsubscribeStatus(subID)
	go printStatus(status)

	if err := app.Start(); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}
	defer app.Stop()

	return inputLoop(ctx, app)
}

// inputLoop reads one command per line until EOF or interrupt. A line
// starting with "cancel " cancels by correlation id, "history" prints the
// recent record, everything else is submitted as a command spec type.
func inputLoop(ctx context.Context, app *console.Console) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(ctx, app, strings.TrimSpace(line))
		}
	}
}

func handleLine(ctx context.Context, app *console.Console, line string) {
	switch {
	case line == "":
	case line == "history":
		entries, err := app.History(ctx, history.Filter{}, history.Page{Limit: 20})
		if err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			return
		}
		for _, entry := range entries {
			code := "-"
			if entry.ResultCode != nil {
				code = fmt.Sprintf("%d", *entry.ResultCode)
			}
			fmt.Printf("%s  %-10s %-9s code=%s\n", entry.CorrelationID, entry.Spec.Type, entry.State, code)
		}
	case strings.HasPrefix(line, "cancel "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "cancel "))
		if err := app.Cancel(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "cancel %s: %v\n", id, err)
			return
		}
		fmt.Printf("%s cancelled\n", id)
	default:
		id, err := app.Submit(ctx, protocol.CommandSpec{Type: line})
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit: %v\n", err)
			return
		}
		fmt.Printf("%s submitted\n", id)
	}
}

func printStatus(status <-chan channel.Status) {
	for s := range status {
		if s.LastError != nil {
			fmt.Fprintf(os.Stderr, "channel: %s (attempt %d): %v\n", s.State, s.Attempt, s.LastError)
			continue
		}
		fmt.Fprintf(os.Stderr, "channel: %s\n", s.State)
	}
}

func readLine(f *os.File) (string, error) {
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected end of input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
