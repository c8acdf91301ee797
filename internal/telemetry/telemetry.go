// Package telemetry wires the OpenTelemetry meter/tracer providers used
// across the gateway: tracker HTTP calls, LLM calls, cache refresh, and
// tool dispatch (SPEC_FULL §4.10). It follows the teacher's
// compact/haiku.go accessor pattern — package-level Meter(name)/Tracer(name)
// functions backed by a lazily-installed global provider — generalized
// here into an explicit Setup so the gateway controls exporter selection
// instead of relying on the no-op default provider.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter selects the telemetry backend (spec §4.10: "stdout default,
// OTLP HTTP behind a configuration flag").
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
	ExporterNone   Exporter = "none"
)

// Shutdown flushes and stops the installed providers.
type Shutdown func(context.Context) error

// Setup installs a MeterProvider and TracerProvider for the given
// exporter choice and returns a Shutdown func. Call once at process
// startup (cmd/gateway's serve command).
func Setup(ctx context.Context, serviceName string, exp Exporter) (Shutdown, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	var shutdowns []Shutdown

	switch exp {
	case ExporterNone:
		return func(context.Context) error { return nil }, nil
	case ExporterOTLP:
		metricExp, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)

		traceExp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithBatcher(traceExp))
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	default: // ExporterStdout
		metricExp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)

		traceExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res), sdktrace.WithBatcher(traceExp))
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	return func(ctx context.Context) error {
		var firstErr error
		for _, s := range shutdowns {
			if err := s(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

var (
	meterOnce sync.Once
)

// Meter returns a named Meter off the globally installed MeterProvider,
// matching the teacher's telemetry.Meter(name) accessor used throughout
// compact/haiku.go.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Tracer returns a named Tracer off the globally installed TracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
