package chainable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calls records forward and compensation invocations in order.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, s)
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func (c *calls) ok(name string) ForwardFunc {
	return func(context.Context, Controls) error {
		c.add(name)
		return nil
	}
}

func (c *calls) fail(name string, err error) ForwardFunc {
	return func(context.Context, Controls) error {
		c.add(name)
		return err
	}
}

func (c *calls) undo(name string) CompensateFunc {
	return func(context.Context, CompensationContext) error {
		c.add("undo:" + name)
		return nil
	}
}

func eventTypes(j *Journal) []EventType {
	var out []EventType
	for _, e := range j.Events() {
		out = append(out, e.Type)
	}
	return out
}

func TestRunSucceeds(t *testing.T) {
	c := &calls{}
	engine := New("ok", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", c.ok("b"), c.undo("b")),
		NewAction("c", c.ok("c"), c.undo("c")),
	})

	res := engine.Run(context.Background())
	require.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, res.Cause)
	assert.NoError(t, res.Err())
	assert.Equal(t, "Success", res.String())
	assert.Equal(t, []string{"a", "b", "c"}, c.all())
	assert.Equal(t, []string{"a", "b", "c"}, res.Journal.Forwarded())
	assert.Empty(t, res.Journal.Compensated())
	assert.Equal(t, ModeResumable, res.Mode)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", res.RunID.String())
}

func TestRunEmptyChainSucceeds(t *testing.T) {
	for _, mode := range []Mode{ModeResumable, ModeSimple} {
		t.Run(mode.String(), func(t *testing.T) {
			res := New("empty", nil, WithMode(mode)).Run(context.Background())
			assert.True(t, res.Succeeded())
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, []EventType{EventRunStarted, EventRunFinished}, eventTypes(res.Journal))
		})
	}
}

func TestRunFailureCompensatesCompletedInReverse(t *testing.T) {
	boom := errors.New("boom")
	for _, mode := range []Mode{ModeResumable, ModeSimple} {
		t.Run(mode.String(), func(t *testing.T) {
			c := &calls{}
			engine := New("rollback", []Action{
				NewAction("a", c.ok("a"), c.undo("a")),
				NewAction("b", c.ok("b"), c.undo("b")),
				NewAction("c", c.fail("c", boom), c.undo("c")),
			}, WithMode(mode))

			res := engine.Run(context.Background())
			require.True(t, res.Failed())
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, []string{"a", "b", "c", "undo:b", "undo:a"}, c.all())

			require.NotNil(t, res.Cause)
			assert.Equal(t, 1, res.Cause.Step)
			assert.Equal(t, "b", res.Cause.Action)
			assert.True(t, res.Cause.HasAction())
			assert.ErrorIs(t, res.Err(), boom)
			assert.Equal(t, "chain failed after step 1 (b): boom", res.Cause.Error())
			assert.Equal(t, "Failure(chain failed after step 1 (b): boom)", res.String())

			assert.Equal(t, StepFailed, res.Journal.Status(2))
			assert.Equal(t, StepUndoFinished, res.Journal.Status(1))
			assert.Equal(t, StepUndoFinished, res.Journal.Status(0))
		})
	}
}

func TestRunFirstActionFailsHasNoCauseAction(t *testing.T) {
	boom := errors.New("boom")
	c := &calls{}
	res := New("first", []Action{
		NewAction("a", c.fail("a", boom), c.undo("a")),
		NewAction("b", c.ok("b"), c.undo("b")),
	}).Run(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"a"}, c.all())
	assert.False(t, res.Cause.HasAction())
	assert.Equal(t, -1, res.Cause.Step)
	assert.Empty(t, res.Cause.Action)
	assert.ErrorIs(t, res.Cause, boom)
	assert.Contains(t, res.Cause.Error(), "before completing any action")
}

func TestRunLoneFailingActionIsNotRetried(t *testing.T) {
	// The failing action never completed, so its compensation never gets
	// the chance to ask for a retry.
	c := &calls{}
	res := New("lone", []Action{
		NewAction("a", c.fail("a", errors.New("boom")),
			func(_ context.Context, cc CompensationContext) error {
				c.add("undo:a")
				if cc.Attempts() < 3 {
					return cc.Retry()
				}
				return nil
			}),
	}).Run(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"a"}, c.all())
}

func TestRunPauseStopsBeforeNextAction(t *testing.T) {
	for _, mode := range []Mode{ModeResumable, ModeSimple} {
		t.Run(mode.String(), func(t *testing.T) {
			c := &calls{}
			var saved Controls
			engine := New("pause", []Action{
				NewAction("a", func(_ context.Context, ctl Controls) error {
					c.add("a")
					saved = ctl
					ctl.Pause()
					return nil
				}, c.undo("a")),
				NewAction("b", c.ok("b"), c.undo("b")),
			}, WithMode(mode))

			res := engine.Run(context.Background())
			assert.True(t, res.Paused())
			assert.Equal(t, StatePaused, res.State)
			assert.Nil(t, res.Err())
			assert.Equal(t, []string{"a"}, c.all())

			// A resume after the run returned does not revive it.
			saved.Resume()
			assert.Equal(t, []string{"a"}, c.all())
			assert.Equal(t, StatePaused, res.State)

			assert.Equal(t, []EventType{
				EventRunStarted, EventStarted, EventSucceeded, EventPaused, EventRunFinished,
			}, eventTypes(res.Journal))
		})
	}
}

func TestRunPauseByLastActionSucceeds(t *testing.T) {
	res := New("last", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error {
			ctl.Pause()
			return nil
		}, nil),
	}).Run(context.Background())

	assert.True(t, res.Succeeded())
}

func TestRunResumeWithinActionCancelsPause(t *testing.T) {
	c := &calls{}
	res := New("cancel", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error {
			c.add("a")
			ctl.Pause()
			ctl.Resume()
			return nil
		}, nil),
		NewAction("b", c.ok("b"), nil),
	}).Run(context.Background())

	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"a", "b"}, c.all())
}

func TestRunPausedActionFailureStillRollsBack(t *testing.T) {
	c := &calls{}
	res := New("pause-fail", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", func(_ context.Context, ctl Controls) error {
			c.add("b")
			ctl.Pause()
			return errors.New("boom")
		}, c.undo("b")),
		NewAction("c", c.ok("c"), c.undo("c")),
	}).Run(context.Background())

	assert.True(t, res.Failed())
	assert.Equal(t, []string{"a", "b", "undo:a"}, c.all())
}

func TestExecute(t *testing.T) {
	boom := errors.New("boom")

	err := New("ok", []Action{NewAction("a", func(context.Context, Controls) error { return nil }, nil)}).
		Execute(context.Background())
	assert.NoError(t, err)

	err = New("fail", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil }, nil),
		NewAction("b", func(context.Context, Controls) error { return boom }, nil),
	}).Execute(context.Background())
	var cause *Cause
	require.ErrorAs(t, err, &cause)
	assert.Equal(t, "a", cause.Action)
	assert.ErrorIs(t, err, boom)

	err = New("pause", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error { ctl.Pause(); return nil }, nil),
		NewAction("b", func(context.Context, Controls) error { return nil }, nil),
	}).Execute(context.Background())
	assert.ErrorIs(t, err, ErrPaused)
}

func TestRunRetryFromCompensation(t *testing.T) {
	// a's compensation retries while fewer than three attempts were made;
	// b always fails.
	c := &calls{}
	var seen []int
	engine := New("retry", []Action{
		NewAction("a", c.ok("a"), func(_ context.Context, cc CompensationContext) error {
			c.add("undo:a")
			seen = append(seen, cc.Attempts())
			if cc.Attempts() < 3 {
				return cc.Retry()
			}
			return nil
		}),
		NewAction("b", c.fail("b", errors.New("boom")), c.undo("b")),
	})

	res := engine.Run(context.Background())
	require.True(t, res.Failed())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []string{
		"a", "b", "undo:a",
		"a", "b", "undo:a",
		"a", "b", "undo:a",
	}, c.all())
	assert.Equal(t, "a", res.Cause.Action)
	assert.Equal(t, 0, res.Cause.Step)
	assert.Equal(t, StepUndoFinished, res.Journal.Status(0))
}

func TestRunRetryResumesAtCompensatingStep(t *testing.T) {
	c := &calls{}
	engine := New("resume", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", c.ok("b"), func(_ context.Context, cc CompensationContext) error {
			c.add("undo:b")
			if cc.Attempts() == 1 {
				return cc.Retry()
			}
			return nil
		}),
		NewAction("c", c.fail("c", errors.New("boom")), c.undo("c")),
	})

	res := engine.Run(context.Background())
	require.True(t, res.Failed())
	assert.Equal(t, 2, res.Attempts)
	// a is neither compensated nor re-run by the retry.
	assert.Equal(t, []string{"a", "b", "c", "undo:b", "b", "c", "undo:b", "undo:a"}, c.all())
	assert.Equal(t, []string{"b", "b", "a"}, res.Journal.Compensated())
}

func TestRunRetryThenSuccess(t *testing.T) {
	c := &calls{}
	failures := 1
	engine := New("heal", []Action{
		NewAction("a", c.ok("a"), func(_ context.Context, cc CompensationContext) error {
			c.add("undo:a")
			return cc.Retry()
		}),
		NewAction("b", func(context.Context, Controls) error {
			c.add("b")
			if failures > 0 {
				failures--
				return errors.New("transient")
			}
			return nil
		}, nil),
	})

	res := engine.Run(context.Background())
	require.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Attempts)
	assert.Nil(t, res.Cause)
	assert.Equal(t, []string{"a", "b", "undo:a", "a", "b"}, c.all())
}

func TestRunNewestCauseWins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	attempt := 0

	engine := New("overwrite", []Action{
		NewAction("a", func(context.Context, Controls) error {
			attempt++
			return nil
		}, func(_ context.Context, cc CompensationContext) error {
			if cc.Attempts() == 1 {
				return cc.Retry()
			}
			return nil
		}),
		NewAction("b", func(context.Context, Controls) error {
			if attempt == 1 {
				return first
			}
			return nil
		}, nil),
		NewAction("c", func(context.Context, Controls) error { return second }, nil),
	})

	res := engine.Run(context.Background())
	require.True(t, res.Failed())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Cause.Step)
	assert.Equal(t, "b", res.Cause.Action)
	assert.ErrorIs(t, res.Cause, second)
	assert.NotErrorIs(t, res.Cause, first)
}

func TestCompensationContext(t *testing.T) {
	boom := errors.New("boom")
	var gotStep, gotAttempts int
	var gotCause error

	New("ctx", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				gotStep = cc.Step()
				gotAttempts = cc.Attempts()
				gotCause = cc.Cause()
				return nil
			}),
		NewAction("b", func(context.Context, Controls) error { return boom }, nil),
	}).Run(context.Background())

	assert.Equal(t, 0, gotStep)
	assert.Equal(t, 1, gotAttempts)
	assert.Equal(t, boom, gotCause)
}

func TestRetryIsIdempotentWithinCompensation(t *testing.T) {
	var first, second error
	engine := New("twice", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				if cc.Attempts() > 1 {
					return nil
				}
				first = cc.Retry()
				second = cc.Retry()
				return second
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	})

	res := engine.Run(context.Background())
	assert.ErrorIs(t, first, ErrRetryRequested)
	assert.ErrorIs(t, second, ErrRetryRequested)
	assert.Equal(t, 2, res.Attempts)
}

func TestRetryRequestedSentinelWithoutRetry(t *testing.T) {
	engine := New("sentinel", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				if cc.Attempts() < 2 {
					return fmt.Errorf("again: %w", ErrRetryRequested)
				}
				return nil
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	})

	res := engine.Run(context.Background())
	assert.True(t, res.Failed())
	assert.Equal(t, 2, res.Attempts)
}

func TestRetryOutsideCompensationIsRefused(t *testing.T) {
	var kept CompensationContext
	New("escape", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				kept = cc
				return nil
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	}).Run(context.Background())

	require.NotNil(t, kept)
	assert.ErrorIs(t, kept.Retry(), ErrRetryNotPermitted)
}

func TestSimpleModeRefusesRetry(t *testing.T) {
	c := &calls{}
	var retryErr error
	engine := New("simple", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", c.ok("b"), func(_ context.Context, cc CompensationContext) error {
			c.add("undo:b")
			retryErr = cc.Retry()
			return nil
		}),
		NewAction("c", c.fail("c", errors.New("boom")), c.undo("c")),
	}, WithMode(ModeSimple))

	res := engine.Run(context.Background())
	assert.ErrorIs(t, retryErr, ErrRetryNotPermitted)
	assert.True(t, res.Failed())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"a", "b", "c", "undo:b", "undo:a"}, c.all())
	assert.Equal(t, ModeSimple, res.Mode)
}

func TestMaxAttempts(t *testing.T) {
	var refused error
	engine := New("bounded", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				err := cc.Retry()
				if !errors.Is(err, ErrRetryRequested) {
					refused = err
					return nil
				}
				return err
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	}, WithMaxAttempts(3))

	res := engine.Run(context.Background())
	assert.True(t, res.Failed())
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, refused, ErrRetryLimit)
}

func TestCompensationErrorDoesNotStopRollback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	c := &calls{}
	releaseErr := errors.New("release failed")
	boom := errors.New("boom")

	res := New("undo-fails", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", c.ok("b"), func(context.Context, CompensationContext) error {
			c.add("undo:b")
			return releaseErr
		}),
		NewAction("c", c.fail("c", boom), nil),
	}, WithLogger(logger)).Run(context.Background())

	require.True(t, res.Failed())
	assert.Equal(t, []string{"a", "b", "c", "undo:b", "undo:a"}, c.all())
	assert.ErrorIs(t, res.Cause, boom)
	assert.NotErrorIs(t, res.Cause, releaseErr)
	assert.Equal(t, StepUndoFailed, res.Journal.Status(1))

	var undoFailed *Event
	for _, e := range res.Journal.Events() {
		if e.Type == EventUndoFailed {
			undoFailed = &e
		}
	}
	require.NotNil(t, undoFailed)
	var compErr *CompensationError
	require.ErrorAs(t, undoFailed.Err, &compErr)
	assert.Equal(t, 1, compErr.Step)
	assert.Equal(t, "b", compErr.Action)
	assert.ErrorIs(t, compErr, releaseErr)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "release failed")
}

func TestPanicsBecomeErrors(t *testing.T) {
	c := &calls{}
	res := New("panics", []Action{
		NewAction("a", c.ok("a"), c.undo("a")),
		NewAction("b", c.ok("b"), func(context.Context, CompensationContext) error {
			panic("undo exploded")
		}),
		NewAction("c", func(context.Context, Controls) error {
			panic(errors.New("forward exploded"))
		}, nil),
	}).Run(context.Background())

	require.True(t, res.Failed())
	var perr *PanicError
	require.ErrorAs(t, res.Cause, &perr)
	assert.EqualError(t, errors.Unwrap(perr), "forward exploded")
	assert.Equal(t, []string{"a", "b", "undo:a"}, c.all())
	assert.Equal(t, StepUndoFailed, res.Journal.Status(1))
}

func TestNilForwardFails(t *testing.T) {
	res := New("nil", []Action{NewAction("a", nil, nil)}).Run(context.Background())
	assert.True(t, res.Failed())
	assert.Contains(t, res.Cause.Error(), "no forward function")
}

func TestSimpleActionUndo(t *testing.T) {
	c := &calls{}
	res := New("simple-undo", []Action{
		NewSimpleAction("a", c.ok("a"), func(context.Context) error {
			c.add("undo:a")
			return nil
		}),
		NewActionWithNoOpCompensate("b", c.ok("b")),
		NewAction("c", c.fail("c", errors.New("boom")), nil),
	}).Run(context.Background())

	assert.True(t, res.Failed())
	assert.Equal(t, []string{"a", "b", "c", "undo:a"}, c.all())
}

func TestGateResumesPausedRun(t *testing.T) {
	c := &calls{}
	gate := NewResumeSignal()

	// Signalled from the observer, before the engine starts waiting.
	res := New("gated", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error {
			c.add("a")
			ctl.Pause()
			return nil
		}, nil),
		NewAction("b", c.ok("b"), nil),
	}, WithGate(gate), WithObserver(ObserverFunc(func(_ context.Context, e Event) {
		if e.Type == EventPaused {
			gate.Signal(e.RunID)
		}
	}))).Run(context.Background())

	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"a", "b"}, c.all())
	assert.Equal(t, []EventType{
		EventRunStarted,
		EventStarted, EventSucceeded, EventPaused, EventResumed,
		EventStarted, EventSucceeded,
		EventRunFinished,
	}, eventTypes(res.Journal))
}

// pausingEngine builds a two-step chain that pauses after the first step
// and reports the run ID of every pause on the returned channel.
func pausingEngine(c *calls, gate Gate) (*Engine, <-chan uuid.UUID) {
	paused := make(chan uuid.UUID, 8)
	engine := New("gated", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error {
			ctl.Pause()
			return nil
		}, nil),
		NewAction("b", c.ok("b"), nil),
	}, WithGate(gate), WithObserver(ObserverFunc(func(_ context.Context, e Event) {
		if e.Type == EventPaused {
			paused <- e.RunID
		}
	})))
	return engine, paused
}

func TestGateSignalledFromAnotherGoroutine(t *testing.T) {
	gate := NewResumeSignal()
	engine, paused := pausingEngine(&calls{}, gate)

	done := make(chan *Result)
	go func() { done <- engine.Run(context.Background()) }()

	gate.Signal(<-paused)

	select {
	case res := <-done:
		assert.True(t, res.Succeeded())
	case <-time.After(5 * time.Second):
		t.Fatal("run did not resume")
	}
}

func TestGateSignalForAbandonedRunDoesNotReleaseNextRun(t *testing.T) {
	c := &calls{}
	gate := NewResumeSignal()
	engine, _ := pausingEngine(c, gate)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	first := engine.Run(cancelled)
	require.True(t, first.Paused())

	// Arrives after the first run gave up waiting.
	gate.Signal(first.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	second := engine.Run(ctx)
	assert.True(t, second.Paused())
	assert.Empty(t, c.all())
}

func TestGateResumesOnlySignalledRun(t *testing.T) {
	c := &calls{}
	gate := NewResumeSignal()
	engine, paused := pausingEngine(c, gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *Result, 2)
	go func() { done <- engine.Run(ctx) }()
	go func() { done <- engine.Run(ctx) }()

	chosen := <-paused
	other := <-paused
	require.NotEqual(t, chosen, other)
	gate.Signal(chosen)

	var resumed *Result
	select {
	case resumed = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("signalled run did not resume")
	}
	assert.Equal(t, chosen, resumed.RunID)
	assert.True(t, resumed.Succeeded())

	select {
	case res := <-done:
		t.Fatalf("run %s finished without a signal: %s", res.RunID, res)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	left := <-done
	assert.Equal(t, other, left.RunID)
	assert.True(t, left.Paused())
	assert.Equal(t, []string{"b"}, c.all())
}

func TestResumeSignalSlotsAreKeyedByRun(t *testing.T) {
	gate := NewResumeSignal()
	first, second := uuid.New(), uuid.New()
	gate.Signal(first)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Wait(ctx, second), context.DeadlineExceeded)
	assert.NoError(t, gate.Wait(context.Background(), first))
}

func TestGateCancelledLeavesRunPaused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &calls{}
	res := New("cancelled", []Action{
		NewAction("a", func(_ context.Context, ctl Controls) error {
			ctl.Pause()
			return nil
		}, nil),
		NewAction("b", c.ok("b"), nil),
	}, WithGate(NewResumeSignal())).Run(ctx)

	assert.True(t, res.Paused())
	assert.Empty(t, c.all())
}

func TestRunStateResetsBetweenRuns(t *testing.T) {
	engine := New("again", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				if cc.Attempts() < 2 {
					return cc.Retry()
				}
				return nil
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	})

	first := engine.Run(context.Background())
	second := engine.Run(context.Background())
	assert.Equal(t, 2, first.Attempts)
	assert.Equal(t, 2, second.Attempts)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, second.Journal.Events(), len(first.Journal.Events()))
}

func TestObserverSeesOrderedEvents(t *testing.T) {
	var seen []Event
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := New("observed", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil }, nil),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	},
		WithObserver(ObserverFunc(func(_ context.Context, e Event) { seen = append(seen, e) })),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)

	res := engine.Run(context.Background())
	require.NotEmpty(t, seen)
	assert.Equal(t, EventRunStarted, seen[0].Type)
	assert.Equal(t, EventRunFinished, seen[len(seen)-1].Type)
	assert.Equal(t, StateFailed, seen[len(seen)-1].State)
	for i, e := range seen {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, res.RunID, e.RunID)
		assert.Equal(t, "observed", e.Chain)
	}
	assert.Equal(t, res.Journal.Events(), seen)
	assert.Positive(t, res.Duration())
}

func TestRunPersistsReport(t *testing.T) {
	store := NewMemoryStore()
	res := New("stored", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil }, nil),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	}, WithStore(store)).Run(context.Background())

	report, err := store.Load(context.Background(), res.RunID.String())
	require.NoError(t, err)
	assert.Equal(t, "failed", report.State)
	assert.Equal(t, "resumable", report.Mode)
	require.NotNil(t, report.Cause)
	assert.Equal(t, "a", report.Cause.Action)
	assert.Equal(t, "boom", report.Cause.Error)
	assert.Len(t, report.Events, len(res.Journal.Events()))
	assert.Equal(t, []ReportStep{{Step: 0, Status: "UndoFinished"}, {Step: 1, Status: "Failed"}}, report.Steps)
}

type failingStore struct{ MemoryStore }

func (*failingStore) Save(context.Context, Report) error { return errors.New("disk full") }

func TestRunStoreFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res := New("lossy", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil }, nil),
	}, WithStore(&failingStore{}), WithLogger(logger)).Run(context.Background())

	assert.True(t, res.Succeeded())
	assert.Contains(t, buf.String(), "failed to persist run report")
	assert.Contains(t, buf.String(), "disk full")
}

func TestEngineAccessors(t *testing.T) {
	engine := New("acc", []Action{
		NewAction("x", func(context.Context, Controls) error { return nil }, nil),
		NewAction("y", func(context.Context, Controls) error { return nil }, nil),
	}, WithMode(ModeSimple))

	assert.Equal(t, "acc", engine.Name())
	assert.Equal(t, ModeSimple, engine.Mode())
	assert.Equal(t, 2, engine.Len())
	assert.Equal(t, []string{"x", "y"}, engine.ActionNames())
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	engine := New("parallel", []Action{
		NewAction("a", func(context.Context, Controls) error { return nil },
			func(_ context.Context, cc CompensationContext) error {
				if cc.Attempts() < 3 {
					return cc.Retry()
				}
				return nil
			}),
		NewAction("b", func(context.Context, Controls) error { return errors.New("boom") }, nil),
	})

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Run(context.Background())
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Failed())
		assert.Equal(t, 3, res.Attempts)
	}
}
