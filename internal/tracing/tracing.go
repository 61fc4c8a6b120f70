// Package tracing configures the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"

	// ServiceName is reported as service.name and used as the otelgin server name.
	ServiceName = "cookbook-api"
)

// ErrUnknownExporter is returned for exporter names other than none and stdout.
var ErrUnknownExporter = errors.New("tracing: unknown exporter")

// Config selects the span exporter.
type Config struct {
	Exporter string
	Version  string
	// Writer receives stdout spans; defaults to os.Stdout.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider and propagator and returns the
// provider along with its shutdown function. The none exporter installs a
// no-op provider.
func Setup(cfg Config) (trace.TracerProvider, ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	switch cfg.Exporter {
	case "", ExporterNone:
		provider := noop.NewTracerProvider()
		otel.SetTracerProvider(provider)
		return provider, func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
	}

	attributes := []attribute.KeyValue{attribute.String("service.name", ServiceName)}
	if cfg.Version != "" {
		attributes = append(attributes, attribute.String("service.version", cfg.Version))
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attributes...)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	return provider, provider.Shutdown, nil
}
