// Package tracing records chain runs as OpenTelemetry spans.
//
// Each run becomes a "chain.run" span with one "chain.step" child per
// forward call and one "chain.compensate" child per compensation.
package tracing

import (
	"context"
	"errors"
	"sync"

	"github.com/fortressi/chainable"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fortressi/chainable"

// Config configures the OTLP exporter.
type Config struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// InitProvider installs a batching TracerProvider that exports to an OTLP
// HTTP collector. The caller shuts it down.
func InitProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Observer is a chainable.Observer that turns journal events into spans.
type Observer struct {
	tracer trace.Tracer
	runs   *xsync.MapOf[uuid.UUID, *runSpans]
}

type runSpans struct {
	mu   sync.Mutex
	ctx  context.Context
	root trace.Span
	step trace.Span
}

// NewObserver creates an Observer. A nil provider uses the global one.
func NewObserver(tp trace.TracerProvider) *Observer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Observer{
		tracer: tp.Tracer(instrumentationName),
		runs:   xsync.NewMapOf[uuid.UUID, *runSpans](),
	}
}

// Observe implements chainable.Observer.
func (o *Observer) Observe(ctx context.Context, event chainable.Event) {
	if event.Type == chainable.EventRunStarted {
		runCtx, span := o.tracer.Start(ctx, "chain.run",
			trace.WithAttributes(
				attribute.String("chain.name", event.Chain),
				attribute.String("chain.run_id", event.RunID.String()),
			),
			trace.WithTimestamp(event.At),
		)
		o.runs.Store(event.RunID, &runSpans{ctx: runCtx, root: span})
		return
	}

	rs, ok := o.runs.Load(event.RunID)
	if !ok {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch event.Type {
	case chainable.EventStarted:
		rs.startStep(o.tracer, "chain.step", event)
	case chainable.EventUndoStarted:
		rs.startStep(o.tracer, "chain.compensate", event)
	case chainable.EventSucceeded, chainable.EventUndoFinished:
		rs.endStep(event, nil)
	case chainable.EventFailed, chainable.EventUndoFailed:
		err := event.Err
		if err == nil {
			err = errors.New(event.Type.String())
		}
		rs.endStep(event, err)
	case chainable.EventRetryRequested:
		if rs.step != nil {
			rs.step.SetAttributes(attribute.Bool("chain.retry_requested", true))
		}
		rs.endStep(event, nil)
	case chainable.EventPaused, chainable.EventResumed:
		rs.root.AddEvent(event.Type.String(),
			trace.WithAttributes(attribute.Int("chain.step", event.Step)),
			trace.WithTimestamp(event.At),
		)
	case chainable.EventRunFinished:
		o.runs.Delete(event.RunID)
		rs.endStep(event, nil)
		rs.root.SetAttributes(
			attribute.String("chain.state", event.State.String()),
			attribute.Int("chain.attempts", event.Attempt),
		)
		if event.Err != nil {
			rs.root.RecordError(event.Err)
			rs.root.SetStatus(codes.Error, event.Err.Error())
		}
		rs.root.End(trace.WithTimestamp(event.At))
	}
}

func (rs *runSpans) startStep(tracer trace.Tracer, name string, event chainable.Event) {
	_, rs.step = tracer.Start(rs.ctx, name,
		trace.WithAttributes(
			attribute.Int("chain.step", event.Step),
			attribute.String("chain.action", event.Action),
			attribute.Int("chain.attempt", event.Attempt),
		),
		trace.WithTimestamp(event.At),
	)
}

func (rs *runSpans) endStep(event chainable.Event, err error) {
	if rs.step == nil {
		return
	}
	if err != nil {
		rs.step.RecordError(err)
		rs.step.SetStatus(codes.Error, err.Error())
	}
	rs.step.End(trace.WithTimestamp(event.At))
	rs.step = nil
}
