package chainable

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryRequested is returned by CompensationContext.Retry. A
	// compensation returns it to hand control back to the engine.
	ErrRetryRequested = errors.New("retry requested")

	// ErrRetryNotPermitted is returned by Retry in ModeSimple.
	ErrRetryNotPermitted = errors.New("retry not permitted in simple mode")

	// ErrRetryLimit is returned by Retry once the attempt limit is reached.
	ErrRetryLimit = errors.New("retry limit reached")

	// ErrPaused is returned by Engine.Execute when a run stopped on a pause.
	ErrPaused = errors.New("chain paused")

	// ErrActionNotFound is returned by Registry.Get.
	ErrActionNotFound = errors.New("action not found")

	// ErrActionExists is returned by Registry.Register for duplicate names.
	ErrActionExists = errors.New("action already registered")

	// ErrReportNotFound is returned by stores for unknown run IDs.
	ErrReportNotFound = errors.New("report not found")

	// ErrIllegalTransition is returned by Journal.Record for events that do
	// not follow from the step's current status.
	ErrIllegalTransition = errors.New("illegal step transition")
)

// CompensationError wraps an error raised by a compensation. The engine
// records and logs it but never returns it to the caller.
type CompensationError struct {
	Step   int
	Action string
	Err    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %d (%s) failed: %v", e.Step, e.Action, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking forward function or
// compensation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
