package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	invocationsTotalName = "searchagent.invocations.total"
	invocationsTodayName = "searchagent.invocations.today"
	modeAttributeKey     = "mode"
)

var (
	gaugeMu         sync.Mutex
	gaugeRegistered bool
	gaugeErr        error
)

// InitOTelMetrics registers observable gauges reporting the SQLite counts.
// Call it after observability.Init so the global meter provider is set.
func InitOTelMetrics() error {
	gaugeMu.Lock()
	defer gaugeMu.Unlock()
	if gaugeRegistered {
		return gaugeErr
	}
	gaugeRegistered = true

	meter := otel.Meter("searchagent/metrics")
	gauges := []struct {
		name        string
		description string
		read        func() map[Mode]int64
	}{
		{
			name:        invocationsTotalName,
			description: "Cumulative prompts handled by mode (batch, stream, search_only, mcp)",
			read:        GetStats,
		},
		{
			name:        invocationsTodayName,
			description: "Prompts handled today by mode",
			read:        GetTodayStats,
		},
	}

	for _, g := range gauges {
		_, err := meter.Int64ObservableGauge(
			g.name,
			metric.WithDescription(g.description),
			metric.WithUnit("{invocations}"),
			metric.WithInt64Callback(observeModes(g.read)),
		)
		if err != nil {
			log.Printf("metrics: failed to create gauge %s: %v", g.name, err)
			gaugeErr = err
			return err
		}
	}
	return nil
}

// observeModes reports one point per mode. A nil map reports zeros.
func observeModes(read func() map[Mode]int64) metric.Int64Callback {
	return func(_ context.Context, observer metric.Int64Observer) error {
		counts := read()
		for _, mode := range Modes {
			observer.Observe(counts[mode], metric.WithAttributes(
				attribute.String(modeAttributeKey, string(mode)),
			))
		}
		return nil
	}
}

// ResetOTelForTesting allows InitOTelMetrics to register again.
func ResetOTelForTesting() {
	gaugeMu.Lock()
	defer gaugeMu.Unlock()
	gaugeRegistered = false
	gaugeErr = nil
}
