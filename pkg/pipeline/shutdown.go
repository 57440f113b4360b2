package pipeline

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// RunWithGracefulShutdown runs p and handles SIGTERM/SIGINT by requesting a
// graceful stop, forcing exit if draining takes longer than timeout.
//
// Adapted from the teacher's engine.RunWithGracefulShutdown; the only
// change is the receiver (Pipeline instead of Engine) and Stop's
// implementation (Kill every node rather than cancel one shared context),
// since spec §5's external-exit semantics are per-node.
func RunWithGracefulShutdown(ctx context.Context, p *Pipeline, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		p.Stop()

		select {
		case err := <-errCh:
			return err
		case <-time.After(timeout):
			slog.Warn("shutdown timeout expired, forcing exit", "timeout", timeout)
			cancel()
			return <-errCh
		}

	case err := <-errCh:
		return err
	}
}
