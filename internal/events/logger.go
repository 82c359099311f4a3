package events

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/preleganto/internal/logfields"
)

// LogEvents subscribes logger to every session event until ctx is done or the
// bus closes. The returned channel is closed when the subscriber exits.
func LogEvents(ctx context.Context, b *Bus, logger *slog.Logger) <-chan struct{} {
	if logger == nil {
		logger = slog.Default()
	}
	ch, unsubscribe := Subscribe[Event](b, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				logEvent(logger, evt)
			}
		}
	}()
	return done
}

func logEvent(logger *slog.Logger, evt Event) {
	switch e := evt.(type) {
	case BuildStarted:
		logger.Debug("Rebuild started", logfields.Input(e.Input), logfields.Trigger(e.TriggeredAt))
	case BuildCompleted:
		logger.Debug("Rebuild completed",
			logfields.Output(e.Output),
			logfields.Hash(e.Fingerprint),
			logfields.Bytes(e.Bytes),
			logfields.Duration(e.Duration))
	case BuildFailed:
		logger.Warn("Rebuild failed", logfields.Input(e.Input), logfields.Error(e.Err))
	case WatchTerminated:
		logger.Info("Watch terminated", logfields.Path(e.Path), slog.String("reason", e.Reason))
	default:
		logger.Debug("Session event", slog.String("event", evt.EventName()))
	}
}
