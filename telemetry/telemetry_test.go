package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInit_DisabledInstallsNoop(t *testing.T) {
	t.Setenv(EnvEnabled, "")
	require.NoError(t, Init(context.Background(), "contribsplit", "test"))
	assert.False(t, Enabled())

	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	c, err := Meter("").Int64Counter("noop.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)
	Shutdown(context.Background())
}

func TestInit_Enabled(t *testing.T) {
	t.Setenv(EnvEnabled, "true")
	require.NoError(t, Init(context.Background(), "contribsplit", "test"))
	t.Cleanup(func() { Shutdown(context.Background()) })

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInt64Counter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m := mp.Meter("test")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	good := Int64Counter(m, "things.done", "Things done", logger)
	good.Add(context.Background(), 2)
	assert.Empty(t, buf.String())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	assert.Equal(t, "things.done", rm.ScopeMetrics[0].Metrics[0].Name)

	// Instrument names must start with a letter.
	bad := Int64Counter(m, "9 bad name", "", logger)
	require.NotNil(t, bad)
	bad.Add(context.Background(), 1)
	assert.Contains(t, buf.String(), "telemetry_instrument_failed")
	assert.Contains(t, buf.String(), "9 bad name")
}
