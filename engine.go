package chainable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Engine runs a fixed, ordered list of actions.
//
// The engine itself holds no run state: every call to Run gets a fresh
// cursor, attempt counter, pause flag and journal, so an Engine may be run
// repeatedly and from several goroutines.
type Engine struct {
	name    string
	actions []Action

	mode        Mode
	logger      *slog.Logger
	observers   []Observer
	store       Store
	gate        Gate
	maxAttempts int
	now         func() time.Time
}

// New creates an Engine for the given actions. An empty list succeeds
// immediately when run.
func New(name string, actions []Action, opts ...Option) *Engine {
	e := &Engine{
		name:    name,
		actions: append([]Action(nil), actions...),
		mode:    ModeResumable,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.observers = append([]Observer{NewLogObserver(e.logger)}, e.observers...)
	return e
}

// Name returns the chain name.
func (e *Engine) Name() string {
	return e.name
}

// Mode returns the configured variant.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Len returns the number of actions.
func (e *Engine) Len() int {
	return len(e.actions)
}

// ActionNames returns the action names in chain order.
func (e *Engine) ActionNames() []string {
	names := make([]string, len(e.actions))
	for i, a := range e.actions {
		names[i] = a.Name()
	}
	return names
}

// Run executes the chain and returns its outcome.
//
// Actions run forward in order. When one fails, the actions that completed
// are compensated newest first and the run fails with a Cause naming the
// last completed action. In ModeResumable a compensation that calls Retry
// ends the rollback on the spot and a new forward pass starts at that
// compensation's step; an attempt that fails again starts its own rollback
// from there, and its Cause replaces the previous one.
func (e *Engine) Run(ctx context.Context) *Result {
	r := e.newRun()
	startedAt := e.now()
	r.record(ctx, Event{Type: EventRunStarted, Step: -1})

	for {
		r.attempts++
		r.state = StateRunning
		r.paused.Store(false)

		err := r.forward(ctx)
		if err == nil {
			break
		}
		if r.rollback(ctx, err) {
			continue
		}
		r.state = StateFailed
		break
	}

	res := &Result{
		RunID:     r.id,
		Chain:     e.name,
		Mode:      e.mode,
		State:     r.state,
		Attempts:  r.attempts,
		Journal:   r.journal,
		StartedAt: startedAt,
	}
	if r.state == StateFailed {
		res.Cause = r.cause
	}
	r.record(ctx, Event{Type: EventRunFinished, Step: -1, Err: res.Err()})
	res.FinishedAt = e.now()

	e.persist(ctx, res)
	return res
}

// Execute runs the chain and returns nil on success, the *Cause on failure
// and ErrPaused when the run stopped on a pause.
func (e *Engine) Execute(ctx context.Context) error {
	res := e.Run(ctx)
	switch res.State {
	case StatePaused:
		return ErrPaused
	case StateFailed:
		return res.Cause
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, res *Result) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, NewReport(res)); err != nil {
		e.logger.WarnContext(ctx, "failed to persist run report",
			slog.String("run_id", res.RunID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// run is the mutable state of one Run call.
type run struct {
	e       *Engine
	id      uuid.UUID
	journal *Journal

	cursor   int
	attempts int
	state    RunState
	paused   atomic.Bool
	cause    *Cause

	// completed is the append-only list of finished steps used by ModeSimple.
	completed []int

	// compensating is the step whose compensation is running, or -1.
	compensating int
}

func (e *Engine) newRun() *run {
	id := uuid.New()
	return &run{
		e:            e,
		id:           id,
		journal:      NewJournal(id),
		state:        StateIdle,
		completed:    make([]int, 0, len(e.actions)),
		compensating: -1,
	}
}

// forward runs actions from the cursor until the end, a pause or an error.
// On a nil return the state is StateSucceeded or StatePaused.
func (r *run) forward(ctx context.Context) error {
	actions := r.e.actions
	controls := runControls{r: r}

	for r.cursor < len(actions) {
		step := r.cursor
		r.recordStep(ctx, EventStarted, step, nil)
		if err := actions[step].doIt(ctx, controls); err != nil {
			r.recordStep(ctx, EventFailed, step, err)
			return err
		}
		r.recordStep(ctx, EventSucceeded, step, nil)
		if r.e.mode == ModeSimple {
			r.completed = append(r.completed, step)
		}
		r.cursor++

		// A pause requested by the last action has nothing left to hold back.
		if r.paused.Load() && r.cursor < len(actions) {
			if !r.pause(ctx, step) {
				return nil
			}
		}
	}

	r.state = StateSucceeded
	return nil
}

// pause parks the run after step. It reports whether forward execution
// should continue.
func (r *run) pause(ctx context.Context, step int) bool {
	r.state = StatePaused
	r.recordStep(ctx, EventPaused, step, nil)
	if r.e.gate == nil {
		return false
	}

	if err := r.e.gate.Wait(ctx, r.id); err != nil {
		r.e.logger.WarnContext(ctx, "paused run was not resumed",
			slog.String("run_id", r.id.String()),
			slog.Int("step", step),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.paused.Store(false)
	r.state = StateRunning
	r.recordStep(ctx, EventResumed, step, nil)
	return true
}

// rollback compensates completed actions after a forward failure. It
// reports whether a compensation requested a retry.
func (r *run) rollback(ctx context.Context, err error) bool {
	r.state = StateRollingBack

	if r.e.mode == ModeSimple {
		last := -1
		if n := len(r.completed); n > 0 {
			last = r.completed[n-1]
		}
		r.cause = newCause(r.e.actions, last, err)
		r.unwindCompleted(ctx)
		return false
	}

	// The failing action never completed, so it is not compensated.
	r.cause = newCause(r.e.actions, r.cursor-1, err)
	r.cursor--
	for r.state == StateRollingBack && r.cursor >= 0 {
		r.compensate(ctx, r.cursor)
		if r.state != StateRollingBack {
			break
		}
		r.cursor--
	}

	return r.state != StateRollingBack
}

func (r *run) unwindCompleted(ctx context.Context) {
	for i := len(r.completed) - 1; i >= 0; i-- {
		r.cursor = r.completed[i]
		r.compensate(ctx, r.cursor)
	}
	r.cursor = -1
}

func (r *run) compensate(ctx context.Context, step int) {
	action := r.e.actions[step]
	r.recordStep(ctx, EventUndoStarted, step, nil)

	r.compensating = step
	err := action.undoIt(ctx, &compensationContext{r: r, step: step})
	if r.state == StateRollingBack && errors.Is(err, ErrRetryRequested) {
		// Returned the sentinel without going through Retry.
		if rerr := r.requestRetry(step); !errors.Is(rerr, ErrRetryRequested) {
			err = rerr
		}
	}
	r.compensating = -1

	if r.state != StateRollingBack {
		r.recordStep(ctx, EventRetryRequested, step, nil)
		return
	}
	if err != nil {
		r.recordStep(ctx, EventUndoFailed, step, &CompensationError{Step: step, Action: action.Name(), Err: err})
		return
	}
	r.recordStep(ctx, EventUndoFinished, step, nil)
}

func (r *run) requestRetry(step int) error {
	if r.e.mode == ModeSimple {
		return ErrRetryNotPermitted
	}
	if r.compensating != step {
		return fmt.Errorf("%w: step %d is not being compensated", ErrRetryNotPermitted, step)
	}
	if r.state == StateRunning {
		// Already accepted for this compensation.
		return ErrRetryRequested
	}
	if r.e.maxAttempts > 0 && r.attempts >= r.e.maxAttempts {
		return ErrRetryLimit
	}
	r.state = StateRunning
	return ErrRetryRequested
}

func (r *run) recordStep(ctx context.Context, eventType EventType, step int, err error) {
	r.record(ctx, Event{
		Type:   eventType,
		Step:   step,
		Action: r.e.actions[step].Name(),
		Err:    err,
	})
}

func (r *run) record(ctx context.Context, event Event) {
	event.RunID = r.id
	event.Chain = r.e.name
	event.Attempt = r.attempts
	event.State = r.state
	event.At = r.e.now()

	stored, err := r.journal.Record(event)
	if err != nil {
		r.e.logger.WarnContext(ctx, "failed to record run event",
			slog.String("run_id", r.id.String()),
			slog.String("event", event.Type.String()),
			slog.String("error", err.Error()),
		)
	}
	for _, o := range r.e.observers {
		o.Observe(ctx, stored)
	}
}
