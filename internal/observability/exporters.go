package observability

import (
	"context"
	"fmt"
	"strings"

	otlpmetricgrpc "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otlpmetrichttp "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
)

// NewOTLPTraceExporter builds the span exporter for the configured protocol.
func NewOTLPTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: trace exporter requires a config")
	}

	switch cfg.ExporterProtocol {
	case defaultExporterProtocol:
		endpoint, err := normalizeOTLPHTTPPath(cfg.ExporterEndpoint, tracesPath)
		if err != nil {
			return nil, fmt.Errorf("observability: invalid OTLP HTTP endpoint: %w", err)
		}
		options := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
		if isPlaintextHTTP(endpoint) {
			options = append(options, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, options...)
	case protocolGRPC:
		endpoint, plaintext, err := parseGRPCEndpoint(cfg.ExporterEndpoint)
		if err != nil {
			return nil, fmt.Errorf("observability: invalid OTLP gRPC endpoint: %w", err)
		}
		options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if plaintext {
			options = append(options, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, options...)
	default:
		return nil, fmt.Errorf("observability: unsupported trace exporter protocol %q", cfg.ExporterProtocol)
	}
}

// NewOTLPMetricExporter builds the metric exporter for the configured protocol.
func NewOTLPMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: metric exporter requires a config")
	}

	switch cfg.ExporterProtocol {
	case defaultExporterProtocol:
		endpoint, err := normalizeOTLPHTTPPath(cfg.ExporterEndpoint, metricsPath)
		if err != nil {
			return nil, fmt.Errorf("observability: invalid OTLP HTTP endpoint: %w", err)
		}
		options := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(endpoint)}
		if isPlaintextHTTP(endpoint) {
			options = append(options, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, options...)
	case protocolGRPC:
		endpoint, plaintext, err := parseGRPCEndpoint(cfg.ExporterEndpoint)
		if err != nil {
			return nil, fmt.Errorf("observability: invalid OTLP gRPC endpoint: %w", err)
		}
		options := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
		if plaintext {
			options = append(options, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, options...)
	default:
		return nil, fmt.Errorf("observability: unsupported metric exporter protocol %q", cfg.ExporterProtocol)
	}
}

func isPlaintextHTTP(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://")
}
