package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"ledger/internal/log"
)

func TestGracefulShutdown_RunsCleanupOnParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})

	ctx, done := GracefulShutdown(parent, log.Discard(), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context has no deadline")
		}
		close(cleaned)
	})
	cancel()

	finished := make(chan struct{})
	go func() {
		WaitForShutdown(ctx, done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not called")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug")
	if logger == nil {
		t.Fatal("SetupLogger() returned nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
}
