package chainable

import (
	"context"
	"log/slog"
)

// Observer receives every event recorded during a run, in order, on the
// goroutine executing the run. Implementations shared between engines must
// be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// LogObserver writes events to a structured logger. Compensation failures
// are logged at WARN so they are never silently lost.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (o *LogObserver) Observe(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID.String()),
		slog.String("chain", event.Chain),
		slog.Int("attempt", event.Attempt),
	}
	if event.Step >= 0 {
		attrs = append(attrs, slog.Int("step", event.Step), slog.String("action", event.Action))
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
	}

	level := slog.LevelDebug
	switch event.Type {
	case EventUndoFailed:
		level = slog.LevelWarn
	case EventFailed, EventRetryRequested, EventPaused:
		level = slog.LevelInfo
	case EventRunFinished:
		level = slog.LevelInfo
		attrs = append(attrs, slog.String("state", event.State.String()))
	}

	o.logger.LogAttrs(ctx, level, "chain "+event.Type.String(), attrs...)
}
