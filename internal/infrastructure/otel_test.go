package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdwarehouse/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestInitializeOTel_MetricsOnly(t *testing.T) {
	providers, err := InitializeOTel(OTelConfigFrom(config.Default().Telemetry), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Registry)
}

func TestInitializeOTel_UnsupportedExporter(t *testing.T) {
	cfg := OTelConfigFrom(config.Default().Telemetry)
	cfg.EnableTracing = true
	cfg.TraceExporter = "jaeger"

	_, err := InitializeOTel(cfg, testLogger())
	assert.Error(t, err)
}

func TestBusinessMetrics_WriteMetricsFile(t *testing.T) {
	providers, err := InitializeOTel(OTelConfigFrom(config.Default().Telemetry), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordSnapshotWritten(ctx, "us_stock", "close")
	metrics.RecordFanoutUnit(ctx, "prices", true)
	metrics.RecordFanoutUnit(ctx, "prices", false)
	metrics.RecordTransition(ctx, "rebuild", "us_stock", "close", 2*time.Second, errors.New("boom"))
	metrics.RecordAssemble(ctx, "us_stock", "close", time.Millisecond)
	metrics.RecordCacheLookup(ctx, true)

	path := filepath.Join(t.TempDir(), "warehouse.prom")
	require.NoError(t, providers.WriteMetricsFile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "warehouse_snapshots_written")
	assert.Contains(t, string(content), "warehouse_fanout_units")
}

func TestBusinessMetrics_NilIsNoop(t *testing.T) {
	var metrics *BusinessMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordSnapshotWritten(ctx, "s", "i")
		metrics.RecordFanoutUnit(ctx, "op", true)
		metrics.RecordTransition(ctx, "op", "s", "i", time.Second, nil)
		metrics.RecordAssemble(ctx, "s", "i", time.Second)
		metrics.RecordCacheLookup(ctx, false)
	})

	var providers *OTelProviders
	assert.NoError(t, providers.WriteMetricsFile("ignored.prom"))
}

func TestSpanHelpers_NoRecordingSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "assemble", map[string]interface{}{"item": "close", "days": 3})
	defer span.End()

	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "loaded", map[string]interface{}{"files": int64(2), "ok": true})
		RecordError(ctx, errors.New("boom"))
		SetSpanAttributes(ctx, map[string]interface{}{"ratio": 0.5})
	})
}
