package chainable

import "fmt"

// Controls is handed to every forward function.
//
// Pause stops the chain from advancing to the next action once the current
// forward function returns. Resume clears the request; calling it within the
// same forward function cancels the pause. Both only affect the run that
// handed out the Controls, and only while that run is in progress: a Resume
// issued from another goroutine after the forward function returned races
// with the run and is not a supported way to continue it. Use a Gate for that.
type Controls interface {
	Pause()
	Resume()
}

// CompensationContext is handed to every compensation.
type CompensationContext interface {
	// Attempts is the number of forward passes made so far in this run,
	// including the one that failed.
	Attempts() int

	// Retry asks the engine to abandon the rest of the rollback and resume
	// forward execution at this compensation's step. Compensations should
	// `return cc.Retry()` and have no side effects after calling it.
	//
	// Retry returns ErrRetryRequested when the request is accepted,
	// ErrRetryNotPermitted in ModeSimple, and ErrRetryLimit once the
	// engine's attempt limit is reached.
	Retry() error

	// Cause is the forward error that started this rollback.
	Cause() error

	// Step is the index of the action being compensated.
	Step() int
}

type runControls struct {
	r *run
}

func (c runControls) Pause() {
	c.r.paused.Store(true)
}

func (c runControls) Resume() {
	c.r.paused.Store(false)
}

type compensationContext struct {
	r    *run
	step int
}

func (cc *compensationContext) Attempts() int {
	return cc.r.attempts
}

func (cc *compensationContext) Retry() error {
	return cc.r.requestRetry(cc.step)
}

func (cc *compensationContext) Cause() error {
	if cc.r.cause == nil {
		return nil
	}
	return cc.r.cause.Err
}

func (cc *compensationContext) Step() int {
	return cc.step
}

func (cc *compensationContext) String() string {
	return fmt.Sprintf("CompensationContext[step=%d attempts=%d]", cc.step, cc.r.attempts)
}
