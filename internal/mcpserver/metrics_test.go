package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ca-srg/searchagent/internal/types"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string][]metricdata.DataPoint[int64])
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum.DataPoints
			}
		}
	}
	return sums
}

func TestToolMetricsRecordsCallsAndErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	agent := &mockAgent{}
	agent.On("ProcessPromptSearchOnly", mock.Anything, "go", "").Return(&types.SearchResultsResponse{OriginalPrompt: "go"}).Once()

	handler, _ := newTestHandler(agent)
	handler.metrics = newToolMetrics(provider.Meter("test"))

	_, err := handler.HandleResultsTool(context.Background(), toolRequest(ResultsToolName, `{"prompt":"go"}`))
	require.NoError(t, err)
	_, err = handler.HandleResultsTool(context.Background(), toolRequest(ResultsToolName, `{"prompt":"  "}`))
	require.NoError(t, err)

	sums := collectSums(t, reader)

	var calls int64
	for _, dp := range sums["searchagent.mcp.requests.total"] {
		calls += dp.Value
	}
	assert.EqualValues(t, 2, calls)

	errorPoints := sums["searchagent.mcp.errors.total"]
	require.Len(t, errorPoints, 1)
	assert.EqualValues(t, 1, errorPoints[0].Value)
	errType, ok := errorPoints[0].Attributes.Value("error.type")
	require.True(t, ok)
	assert.Equal(t, "invalid_arguments", errType.AsString())
	agent.AssertExpectations(t)
}

func TestToolMetricsNilIsSafe(t *testing.T) {
	var m *toolMetrics
	assert.NotPanics(t, func() { m.record(context.Background(), nil, 0, "boom") })
}
