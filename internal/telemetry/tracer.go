package telemetry

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is reported on every span.
const ServiceName = "democlip"

// TracerProvider is the global tracer provider, nil until InitTracer.
var TracerProvider *sdktrace.TracerProvider

// InitTracer installs a tracer provider exporting to w (stdout when nil).
func InitTracer(version string, w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	TracerProvider = tp
	return tp, nil
}

// ShutdownTracer flushes pending spans.
func ShutdownTracer(ctx context.Context, logger zerolog.Logger) {
	if TracerProvider == nil {
		return
	}
	if err := TracerProvider.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown tracer provider")
	}
	TracerProvider = nil
}

// Tracer returns a named tracer from the global provider. Without
// InitTracer it is a no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
