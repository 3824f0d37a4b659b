package chainable

import (
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMode selects ModeSimple or ModeResumable (the default).
func WithMode(mode Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithLogger sets the logger used for engine warnings and the built-in
// LogObserver.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver adds observers that receive every journal event.
func WithObserver(observers ...Observer) Option {
	return func(e *Engine) {
		for _, o := range observers {
			if o != nil {
				e.observers = append(e.observers, o)
			}
		}
	}
}

// WithStore saves a Report of every finished run.
func WithStore(store Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithGate makes a paused run wait on the gate instead of returning.
func WithGate(gate Gate) Option {
	return func(e *Engine) {
		e.gate = gate
	}
}

// WithMaxAttempts refuses retries once a run has made n forward passes.
// Zero leaves retries unbounded.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now for event and result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
