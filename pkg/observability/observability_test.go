package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/branchbound/treewatch/pkg/observability"
)

func TestNewLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := observability.NewLogger(&buf, "warn", observability.FormatText)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int("nodes", 7))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "nodes=7")
}

func TestNewLoggerJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := observability.NewLogger(&buf, "info", observability.FormatJSON)

	logger.Info("restart requested", slog.Int("restart", 1))

	assert.Contains(t, buf.String(), `"msg":"restart requested"`)
	assert.Contains(t, buf.String(), `"restart":1`)
}

func TestNewLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := observability.NewLogger(&buf, "chatty", observability.FormatText)

	logger.Debug("hidden")
	logger.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	byName := make(map[string]metricdata.Metrics)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	return byName
}

func TestMetricsRecordEventAndRestart(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := observability.NewMetrics(provider.Meter("treewatch-test"))
	require.NoError(t, err)

	ctx := context.Background()

	m.RecordEvent(ctx, "branched", 0.8, 0.25)
	m.RecordEvent(ctx, "pq_pruned", 0.6, 0.5)
	m.RecordRestart(ctx)

	byName := collect(t, reader)

	events, ok := byName["treewatch.events.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	// One data point per event kind.
	require.Len(t, events.DataPoints, 2)

	var total int64
	for _, dp := range events.DataPoints {
		total += dp.Value
	}

	assert.Equal(t, int64(2), total)

	restarts, ok := byName["treewatch.restarts.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, restarts.DataPoints, 1)
	assert.Equal(t, int64(1), restarts.DataPoints[0].Value)

	ssg, ok := byName["treewatch.ssg.value"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, ssg.DataPoints, 1)
	assert.InDelta(t, 0.6, ssg.DataPoints[0].Value, 1e-9)

	progress, ok := byName["treewatch.tree.progress"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, progress.DataPoints, 1)
	assert.InDelta(t, 0.5, progress.DataPoints[0].Value, 1e-9)
}

func TestNoopMetricsRecordWithoutProvider(t *testing.T) {
	t.Parallel()

	m := observability.NewNoopMetrics()

	assert.NotPanics(t, func() {
		m.RecordEvent(context.Background(), "branched", 1.0, 0.0)
		m.RecordRestart(context.Background())
	})
}
