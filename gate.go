package chainable

import (
	"context"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Gate is a blocking primitive the engine waits on at the point where a
// pause takes effect. Without a Gate a paused run simply returns.
type Gate interface {
	// Wait blocks until the run identified by runID may continue or ctx is
	// done.
	Wait(ctx context.Context, runID uuid.UUID) error
}

// ResumeSignal is a Gate opened from outside the run, typically from
// another goroutine that learned the run ID from an EventPaused. Each run
// has its own slot. A signal sent before the run waits is kept (at most
// one), and a slot is dropped when its Wait returns or is abandoned.
type ResumeSignal struct {
	slots *xsync.MapOf[uuid.UUID, chan struct{}]
}

// NewResumeSignal creates a ResumeSignal.
func NewResumeSignal() *ResumeSignal {
	return &ResumeSignal{slots: xsync.NewMapOf[uuid.UUID, chan struct{}]()}
}

func (s *ResumeSignal) slot(runID uuid.UUID) chan struct{} {
	ch, _ := s.slots.LoadOrCompute(runID, func() chan struct{} {
		return make(chan struct{}, 1)
	})
	return ch
}

// Signal releases the current or next Wait of the given run.
func (s *ResumeSignal) Signal(runID uuid.UUID) {
	select {
	case s.slot(runID) <- struct{}{}:
	default:
	}
}

// Wait implements Gate.
func (s *ResumeSignal) Wait(ctx context.Context, runID uuid.UUID) error {
	ch := s.slot(runID)
	defer s.slots.Delete(runID)

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
