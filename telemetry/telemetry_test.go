package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopBundleSatisfiesInterfaces(t *testing.T) {
	b := NewNoopBundle()

	assert.NotPanics(t, func() {
		b.Logger.Info(context.Background(), "hello", "key", "value")
		b.Metrics.IncCounter("calls", 1, "tool", "search")
		ctx, span := b.Tracer.Start(context.Background(), "op")
		span.AddEvent("started")
		span.End()
		_ = ctx
	})
}

func TestNoopLoggerToleratesOddKeyvals(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Warn(context.Background(), "odd", "dangling-key")
	})
}
