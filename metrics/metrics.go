// Package metrics exports chain run events as Prometheus metrics.
package metrics

import (
	"context"
	"io"
	"time"

	"github.com/fortressi/chainable"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/puzpuzpuz/xsync/v3"
)

// Observer is a chainable.Observer that maintains run, step and
// compensation metrics labelled by chain name.
type Observer struct {
	runs                 *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	attempts             *prometheus.HistogramVec
	steps                *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	retries              *prometheus.CounterVec

	started *xsync.MapOf[uuid.UUID, time.Time]
}

// NewObserver creates an Observer and registers its collectors.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainable_runs_total",
				Help: "Finished chain runs by final state.",
			},
			[]string{"chain", "state"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainable_run_duration_seconds",
				Help:    "Wall time of chain runs.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"chain"},
		),
		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainable_run_attempts",
				Help:    "Forward passes made per run.",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
			[]string{"chain"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainable_step_events_total",
				Help: "Step events by type.",
			},
			[]string{"chain", "event"},
		),
		compensationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainable_compensation_failures_total",
				Help: "Compensations that returned an error or panicked.",
			},
			[]string{"chain", "action"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainable_retries_total",
				Help: "Retries requested by compensations.",
			},
			[]string{"chain", "action"},
		),
		started: xsync.NewMapOf[uuid.UUID, time.Time](),
	}

	for _, c := range []prometheus.Collector{
		o.runs, o.runDuration, o.attempts, o.steps, o.compensationFailures, o.retries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Observe implements chainable.Observer.
func (o *Observer) Observe(_ context.Context, event chainable.Event) {
	switch event.Type {
	case chainable.EventRunStarted:
		o.started.Store(event.RunID, event.At)
		return
	case chainable.EventRunFinished:
		o.runs.WithLabelValues(event.Chain, event.State.String()).Inc()
		o.attempts.WithLabelValues(event.Chain).Observe(float64(event.Attempt))
		if at, ok := o.started.LoadAndDelete(event.RunID); ok {
			o.runDuration.WithLabelValues(event.Chain).Observe(event.At.Sub(at).Seconds())
		}
		return
	case chainable.EventUndoFailed:
		o.compensationFailures.WithLabelValues(event.Chain, event.Action).Inc()
	case chainable.EventRetryRequested:
		o.retries.WithLabelValues(event.Chain, event.Action).Inc()
	}
	o.steps.WithLabelValues(event.Chain, event.Type.String()).Inc()
}

// WriteText writes the gathered metrics in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
