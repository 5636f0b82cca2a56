package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultRestartDelay is the pause between a watcher failure and its restart.
const DefaultRestartDelay = 5 * time.Second

// Supervise calls run until ctx is cancelled, waiting delay after every
// failure. Failures are logged and counted, never propagated.
func Supervise(ctx context.Context, logger *slog.Logger, name string, delay time.Duration, run func(context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultRestartDelay
	}

	for {
		err := run(ctx)
		if ctx.Err() != nil {
			logger.Info("watcher stopped", "watcher", name)
			return
		}
		if err == nil {
			err = errors.New("exited without error")
		}

		restartsTotal.WithLabelValues(name).Inc()
		logger.Error("watcher failed, restarting", "watcher", name, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watcher stopped", "watcher", name)
			return
		case <-timer.C:
		}
	}
}
