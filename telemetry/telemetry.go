// Package telemetry wires OpenTelemetry for contribsplit.
//
// Telemetry is off unless CONTRIBSPLIT_OTEL=true, in which case spans and
// metrics are written to stderr by the stdout exporters. Components always
// obtain tracers and meters from the global providers, so they run unchanged
// either way.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// EnvEnabled is the switch read by Enabled.
const EnvEnabled = "CONTRIBSPLIT_OTEL"

const instrumentationScope = "github.com/bitfsorg/contribsplit"

// MetricInterval is how often the stdout metric reader exports.
var MetricInterval = 30 * time.Second

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry export is switched on.
func Enabled() bool {
	return os.Getenv(EnvEnabled) == "true"
}

// Init installs the global providers. When disabled it installs no-op
// providers and returns.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	texp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(texp),
	)
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mexp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(MetricInterval))),
	)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// Tracer returns a tracer for name, or for the module scope when name is empty.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, or for the module scope when name is empty.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Int64Counter creates a counter on m. When the meter refuses the
// instrument the failure is logged and a no-op counter is returned, so
// callers can always record.
func Int64Counter(m metric.Meter, name, description string, logger *slog.Logger) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err == nil {
		return c
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("telemetry_instrument_failed", "instrument", name, "error", err)
	return metricnoop.Int64Counter{}
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
