package mcpserver

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// toolMetrics holds the per-call instruments. Instruments that fail to
// register stay nil and are skipped.
type toolMetrics struct {
	calls   metric.Int64Counter
	errors  metric.Int64Counter
	latency metric.Float64Histogram
}

func newToolMetrics(meter metric.Meter) *toolMetrics {
	m := &toolMetrics{}
	var err error

	if m.calls, err = meter.Int64Counter(
		"searchagent.mcp.requests.total",
		metric.WithDescription("Total MCP tool calls"),
	); err != nil {
		log.Printf("mcpserver: failed to create request counter: %v", err)
	}

	if m.errors, err = meter.Int64Counter(
		"searchagent.mcp.errors.total",
		metric.WithDescription("MCP tool calls that returned an error result"),
	); err != nil {
		log.Printf("mcpserver: failed to create error counter: %v", err)
	}

	if m.latency, err = meter.Float64Histogram(
		"searchagent.mcp.response_time",
		metric.WithDescription("MCP tool response time"),
		metric.WithUnit("ms"),
	); err != nil {
		log.Printf("mcpserver: failed to create latency histogram: %v", err)
	}
	return m
}

// record adds one call. errType is empty for a successful call and is
// attached as error.type on the error counter only.
func (m *toolMetrics) record(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, errType string) {
	if m == nil {
		return
	}
	set := metric.WithAttributes(attrs...)
	if m.calls != nil {
		m.calls.Add(ctx, 1, set)
	}
	if m.latency != nil {
		m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), set)
	}
	if errType == "" || m.errors == nil {
		return
	}
	withType := append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", errType))
	m.errors.Add(ctx, 1, metric.WithAttributes(withType...))
}
