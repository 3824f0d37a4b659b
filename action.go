package chainable

import (
	"context"
	"fmt"
)

// ForwardFunc is the forward effect of an action.
type ForwardFunc func(ctx context.Context, c Controls) error

// CompensateFunc undoes a completed action and may request a retry through
// the CompensationContext.
type CompensateFunc func(ctx context.Context, cc CompensationContext) error

// UndoFunc is a compensation that takes no arguments.
type UndoFunc func(ctx context.Context) error

// Action is one step of a chain. It is immutable once built; its position in
// the chain is its identity and the name is only used for diagnostics.
type Action struct {
	name    string
	forward ForwardFunc

	// Exactly one of compensate or undo is set.
	compensate CompensateFunc
	undo       UndoFunc

	// false when the compensation is the no-op default.
	compensates bool
}

// NewAction constructs an Action whose compensation receives a
// CompensationContext. A nil compensation means NoOpCompensate.
func NewAction(name string, forward ForwardFunc, compensate CompensateFunc) Action {
	a := Action{name: name, forward: forward, compensate: compensate, compensates: compensate != nil}
	if compensate == nil {
		a.compensate = NoOpCompensate
	}
	return a
}

// NewSimpleAction constructs an Action whose compensation takes no
// arguments. A nil undo means NoOpCompensate.
func NewSimpleAction(name string, forward ForwardFunc, undo UndoFunc) Action {
	if undo == nil {
		return NewAction(name, forward, nil)
	}
	return Action{name: name, forward: forward, undo: undo, compensates: true}
}

// NewActionWithNoOpCompensate constructs an Action that has nothing to undo.
func NewActionWithNoOpCompensate(name string, forward ForwardFunc) Action {
	return NewAction(name, forward, nil)
}

// NoOpCompensate is the default compensation.
func NoOpCompensate(_ context.Context, _ CompensationContext) error {
	return nil
}

// Name returns the diagnostic name of the action.
func (a Action) Name() string {
	return a.name
}

// Compensates reports whether the action was given a compensation.
func (a Action) Compensates() bool {
	return a.compensates
}

// String implements the fmt.Stringer interface for Action.
func (a Action) String() string {
	return fmt.Sprintf("Action[%s]", a.name)
}

func (a Action) validate() error {
	if a.forward == nil {
		return fmt.Errorf("action %q has no forward function", a.name)
	}
	return nil
}

// doIt runs the forward effect, converting panics into errors.
func (a Action) doIt(ctx context.Context, c Controls) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	if err := a.validate(); err != nil {
		return err
	}
	return a.forward(ctx, c)
}

// undoIt runs whichever compensation the action carries, converting panics
// into errors.
func (a Action) undoIt(ctx context.Context, cc CompensationContext) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
		}
	}()
	if a.undo != nil {
		return a.undo(ctx)
	}
	if a.compensate != nil {
		return a.compensate(ctx, cc)
	}
	return nil
}
