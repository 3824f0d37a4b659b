package chainable

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cause describes why a run failed.
//
// Step is the index of the last action that completed successfully before
// the failure, not the index of the failing action, and Action is its name.
// When the very first action failed, Step is -1 and Action is empty.
type Cause struct {
	Action string
	Step   int
	Err    error
}

func newCause(actions []Action, lastCompleted int, err error) *Cause {
	c := &Cause{Step: lastCompleted, Err: err}
	if lastCompleted >= 0 && lastCompleted < len(actions) {
		c.Action = actions[lastCompleted].Name()
	} else {
		c.Step = -1
	}
	return c
}

// HasAction reports whether any action completed before the failure.
func (c *Cause) HasAction() bool {
	return c.Step >= 0
}

func (c *Cause) Error() string {
	if !c.HasAction() {
		return fmt.Sprintf("chain failed before completing any action: %v", c.Err)
	}
	return fmt.Sprintf("chain failed after step %d (%s): %v", c.Step, c.Action, c.Err)
}

func (c *Cause) Unwrap() error {
	return c.Err
}

// Result is the outcome of Engine.Run.
type Result struct {
	RunID      uuid.UUID
	Chain      string
	Mode       Mode
	State      RunState
	Attempts   int
	Cause      *Cause
	Journal    *Journal
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether every action completed.
func (r *Result) Succeeded() bool {
	return r.State == StateSucceeded
}

// Failed reports whether the run ended after a rollback.
func (r *Result) Failed() bool {
	return r.State == StateFailed
}

// Paused reports whether the run stopped on a pause request.
func (r *Result) Paused() bool {
	return r.State == StatePaused
}

// Err returns the Cause of a failed run and nil otherwise.
func (r *Result) Err() error {
	if r.State != StateFailed || r.Cause == nil {
		return nil
	}
	return r.Cause
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// String implements the fmt.Stringer interface for Result.
func (r *Result) String() string {
	switch r.State {
	case StateFailed:
		return fmt.Sprintf("Failure(%v)", r.Cause)
	case StateSucceeded:
		return "Success"
	default:
		return fmt.Sprintf("Result(%s)", r.State)
	}
}
