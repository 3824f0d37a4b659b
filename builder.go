package chainable

import (
	"context"
	"errors"
	"fmt"
)

// Builder assembles the action list of a chain.
//
// Callers append actions in the order they should run. Each method returns
// the builder so calls can be chained; the first error is kept and reported
// by Build.
type Builder struct {
	name     string
	actions  []Action
	registry *Registry
	err      error
}

// NewBuilder creates a new Builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:    name,
		actions: []Action{},
	}
}

// WithRegistry sets the registry used by Use.
func (b *Builder) WithRegistry(registry *Registry) *Builder {
	b.registry = registry
	return b
}

// Action appends an action whose compensation receives a
// CompensationContext. The compensation is optional and defaults to a no-op.
func (b *Builder) Action(name string, forward ForwardFunc, compensate ...CompensateFunc) *Builder {
	if len(compensate) > 1 {
		b.fail(fmt.Errorf("action %q: at most one compensation, got %d", name, len(compensate)))
		return b
	}
	var c CompensateFunc
	if len(compensate) == 1 {
		c = compensate[0]
	}
	return b.Append(NewAction(name, forward, c))
}

// SimpleAction appends an action whose compensation takes no arguments.
func (b *Builder) SimpleAction(name string, forward ForwardFunc, undo UndoFunc) *Builder {
	return b.Append(NewSimpleAction(name, forward, undo))
}

// Append adds prebuilt actions.
func (b *Builder) Append(actions ...Action) *Builder {
	for _, a := range actions {
		if err := a.validate(); err != nil {
			b.fail(err)
			return b
		}
		b.actions = append(b.actions, a)
	}
	return b
}

// Use appends the registered action with the given name.
func (b *Builder) Use(name string) *Builder {
	if b.registry == nil {
		b.fail(fmt.Errorf("use %q: builder has no registry", name))
		return b
	}
	action, err := b.registry.Get(name)
	if err != nil {
		b.fail(fmt.Errorf("use %q: %w", name, err))
		return b
	}
	return b.Append(action)
}

// Len returns the number of actions appended so far.
func (b *Builder) Len() int {
	return len(b.actions)
}

// Build returns an Engine for the assembled actions.
func (b *Builder) Build(opts ...Option) (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.name, b.actions, opts...), nil
}

func (b *Builder) fail(err error) {
	b.err = errors.Join(b.err, err)
}

// Chain builds a chain with fn and runs it once.
func Chain(ctx context.Context, name string, fn func(b *Builder), opts ...Option) (*Result, error) {
	b := NewBuilder(name)
	fn(b)
	engine, err := b.Build(opts...)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx), nil
}
