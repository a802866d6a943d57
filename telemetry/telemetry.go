// Package telemetry defines the logging, metrics, and tracing facades used
// throughout the runtime. Interfaces are kept deliberately small so tests can
// supply lightweight stubs; concrete implementations live in noop.go (the
// library default) and clue.go (a goa.design/clue/log + OTEL backend for
// applications that already run Clue).
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the structured logging facade a runtime.Runtime carries in its
// telemetry Bundle; the pipeline, agent, and workflow packages do not call
// it themselves. Every call takes a context so implementations can pull
// request-scoped fields (trace ID, session ID) the way Clue's log.Context
// does.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge primitives. The runtime's own
// packages record no metrics through it; it is available to applications
// via runtime.Runtime.Telemetry.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying tracing provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight trace span.
//
//	ctx, span := tracer.Start(ctx, "agent.run", trace.WithSpanKind(trace.SpanKindInternal))
//	defer span.End()
//	span.SetStatus(codes.Ok, "completed")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Bundle groups the three facades so runtime.Options can be configured (or
// defaulted) with a single field. A zero Bundle is not valid; use
// NewNoopBundle for the library default.
type Bundle struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NewNoopBundle returns a Bundle wired entirely to no-op implementations.
func NewNoopBundle() Bundle {
	return Bundle{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
