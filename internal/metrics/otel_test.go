package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	ResetOTelForTesting()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		ResetOTelForTesting()
	})
	require.NoError(t, InitOTelMetrics())
	return reader
}

func collectGauge(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scopeMetrics := range rm.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func gaugeValues(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected Gauge[int64], got %T", m.Data)

	results := make(map[string]int64)
	for _, dp := range gauge.DataPoints {
		attrs := dp.Attributes.ToSlice()
		require.Len(t, attrs, 1)
		assert.Equal(t, "mode", string(attrs[0].Key))
		results[attrs[0].Value.AsString()] = dp.Value
	}
	return results
}

func TestOTelMetrics_ReflectStoreTotals(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	store := newTestStore(t)
	SetStoreForTesting(store)
	reader := setupManualReader(t)

	m, found := collectGauge(t, reader, invocationsTotalName)
	require.True(t, found)
	assert.Equal(t, map[string]int64{"batch": 0, "stream": 0, "search_only": 0, "mcp": 0}, gaugeValues(t, m))

	require.NoError(t, store.Increment(ModeBatch))
	require.NoError(t, store.Increment(ModeBatch))
	require.NoError(t, store.Increment(ModeMCP))

	m, found = collectGauge(t, reader, invocationsTotalName)
	require.True(t, found)
	assert.Equal(t, map[string]int64{"batch": 2, "stream": 0, "search_only": 0, "mcp": 1}, gaugeValues(t, m))
}

func TestOTelMetrics_Metadata(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	reader := setupManualReader(t)

	m, found := collectGauge(t, reader, invocationsTotalName)
	require.True(t, found)
	assert.Equal(t, "Cumulative prompts handled by mode (batch, stream, search_only, mcp)", m.Description)
	assert.Equal(t, "{invocations}", m.Unit)
}

func TestOTelMetrics_WithoutStoreReportsZeros(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()
	reader := setupManualReader(t)

	m, found := collectGauge(t, reader, invocationsTotalName)
	require.True(t, found)
	values := gaugeValues(t, m)
	assert.Len(t, values, len(Modes))
	for _, mode := range Modes {
		assert.Zero(t, values[string(mode)])
	}
}

func TestOTelMetrics_TodayGauge(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	store := newTestStore(t)
	yesterday := time.Now().AddDate(0, 0, -1)
	store.now = func() time.Time { return yesterday }
	require.NoError(t, store.Increment(ModeStream))
	store.now = time.Now
	require.NoError(t, store.Increment(ModeStream))
	require.NoError(t, store.Increment(ModeSearchOnly))

	SetStoreForTesting(store)
	reader := setupManualReader(t)

	today, found := collectGauge(t, reader, invocationsTodayName)
	require.True(t, found)
	assert.Equal(t, map[string]int64{"batch": 0, "stream": 1, "search_only": 1, "mcp": 0}, gaugeValues(t, today))

	total, found := collectGauge(t, reader, invocationsTotalName)
	require.True(t, found)
	assert.EqualValues(t, 2, gaugeValues(t, total)["stream"])
}

func TestInitOTelMetricsIsIdempotent(t *testing.T) {
	setupManualReader(t)
	assert.NoError(t, InitOTelMetrics())
}
