package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// OTLPConfig configures an optional OTLP trace exporter. It is not required
// to use the runtime — NewNoopBundle/NewClueTracer cover the common cases —
// but a hosting application that wants its own collector can call
// ConfigureOTLP once at startup.
type OTLPConfig struct {
	// ServiceName identifies this process in exported spans.
	ServiceName string
	// Endpoint is the OTLP/gRPC collector address, e.g. "localhost:4317".
	Endpoint string
	// Insecure disables TLS on the OTLP connection (dev/testing only).
	Insecure bool
}

// ConfigureOTLP registers a global TracerProvider exporting to an OTLP/gRPC
// collector and returns a shutdown function that flushes and closes it. It
// returns no Tracer: a NewClueTracer() created after this call exports
// through this provider, since it reads the global provider — this helper
// exists purely to set that provider up.
func ConfigureOTLP(ctx context.Context, cfg OTLPConfig) (shutdown func(context.Context) error, err error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	client := otlptracegrpc.NewClient(opts...)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("configure otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("configure otlp resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return provider.Shutdown, nil
}
