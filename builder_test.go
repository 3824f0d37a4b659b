package chainable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	noop := func(context.Context, Controls) error { return nil }

	engine, err := NewBuilder("built").
		Action("a", noop).
		Action("b", noop, func(context.Context, CompensationContext) error { return nil }).
		SimpleAction("c", noop, func(context.Context) error { return nil }).
		Append(NewActionWithNoOpCompensate("d", noop)).
		Build(WithMode(ModeSimple))
	require.NoError(t, err)

	assert.Equal(t, "built", engine.Name())
	assert.Equal(t, ModeSimple, engine.Mode())
	assert.Equal(t, []string{"a", "b", "c", "d"}, engine.ActionNames())
}

func TestBuilderErrors(t *testing.T) {
	noop := func(context.Context, Controls) error { return nil }
	comp := func(context.Context, CompensationContext) error { return nil }

	t.Run("two compensations", func(t *testing.T) {
		_, err := NewBuilder("x").Action("a", noop, comp, comp).Build()
		assert.ErrorContains(t, err, "at most one compensation")
	})

	t.Run("nil forward", func(t *testing.T) {
		_, err := NewBuilder("x").Action("a", nil).Build()
		assert.ErrorContains(t, err, "no forward function")
	})

	t.Run("use without registry", func(t *testing.T) {
		_, err := NewBuilder("x").Use("a").Build()
		assert.ErrorContains(t, err, "no registry")
	})

	t.Run("errors accumulate", func(t *testing.T) {
		b := NewBuilder("x").Action("a", nil).Use("b").Action("c", noop)
		_, err := b.Build()
		require.Error(t, err)
		assert.ErrorContains(t, err, "no forward function")
		assert.ErrorContains(t, err, "no registry")
		assert.Equal(t, 1, b.Len())
	})
}

func TestBuilderUsesRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(NewAction("reserve", func(context.Context, Controls) error { return nil }, nil)))

	engine, err := NewBuilder("reg").WithRegistry(registry).Use("reserve").Use("reserve").Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"reserve", "reserve"}, engine.ActionNames())

	_, err = NewBuilder("reg").WithRegistry(registry).Use("missing").Build()
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestChainHelper(t *testing.T) {
	var order []string
	res, err := Chain(context.Background(), "helper", func(b *Builder) {
		b.Action("a", func(context.Context, Controls) error {
			order = append(order, "a")
			return nil
		}, func(context.Context, CompensationContext) error {
			order = append(order, "undo:a")
			return nil
		})
		b.Action("b", func(context.Context, Controls) error {
			order = append(order, "b")
			return errors.New("boom")
		})
	})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, "helper", res.Chain)
	assert.Equal(t, []string{"a", "b", "undo:a"}, order)

	_, err = Chain(context.Background(), "broken", func(b *Builder) {
		b.Action("a", nil)
	})
	assert.Error(t, err)
}
