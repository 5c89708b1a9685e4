package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ashita-ai/akashi-assistant"
	"github.com/ashita-ai/akashi-assistant/internal/heartbeat"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ASSISTANT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := assistant.New(
		assistant.WithLogger(logger),
		assistant.WithVersion(version),
		assistant.WithTransport(stdoutTransport{}),
	)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	app.RegisterHeartbeat(defaultChatID, heartbeat.KindCheck)

	status := app.Warmup(ctx)
	logger.Info("warmup complete", "ok", status.OK, "summary", status.Summary)

	errCh := make(chan error, 1)
	go func() {
		if err := app.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	go readStdin(ctx, app, logger)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	return nil
}

// defaultChatID names the single conversation this CLI frontend drives.
// A host embedding multiple chats (a real chat-transport frontend) would
// derive one chatID per conversation instead.
const defaultChatID = "cli"

// stdoutTransport delivers scheduler, reminder, and background-agent
// output to the terminal this process is attached to.
type stdoutTransport struct{}

func (stdoutTransport) Send(ctx context.Context, chatID, text string) error {
	fmt.Printf("\n[%s] %s\n> ", chatID, text)
	return nil
}

// readStdin drives one interactive conversation loop over stdin/stdout,
// the minimal frontend this module ships for local use; a real deployment
// supplies its own Transport and message source instead of this loop.
func readStdin(ctx context.Context, app *assistant.App, logger *slog.Logger) {
	fmt.Print("> ")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		reply, err := app.HandleMessage(ctx, defaultChatID, line)
		if err != nil {
			logger.Error("handle message failed", "error", err)
			fmt.Print("> ")
			continue
		}
		fmt.Printf("%s\n> ", reply)
	}
}
