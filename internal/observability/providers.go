package observability

import (
	"context"
	"fmt"
	"log"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ca-srg/searchagent/internal/types"
)

// Init installs the global tracer and meter providers. With telemetry
// disabled it installs non-exporting providers so instrumented code still
// runs. The returned ShutdownFunc flushes exporters.
func Init(ctx context.Context, rootCfg *types.Config, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if ctx == nil {
		ctx = context.Background()
	}

	otelCfg, err := LoadConfig(rootCfg, version)
	if err != nil {
		return noop, err
	}

	tracerProvider, err := InitTracer(ctx, otelCfg)
	if err != nil {
		return noop, err
	}

	meterProvider, err := InitMeter(ctx, otelCfg)
	if err != nil {
		_ = NewShutdownFunc(tracerProvider, nil)(ctx)
		return noop, err
	}

	if otelCfg.Enabled {
		log.Printf("observability: exporting to %s via %s as %s", otelCfg.ExporterEndpoint, otelCfg.ExporterProtocol, otelCfg.ServiceName)
	}
	return NewShutdownFunc(tracerProvider, meterProvider), nil
}

// InitTracer builds and installs the global tracer provider.
func InitTracer(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: tracer initialization requires a config")
	}

	var exporter sdktrace.SpanExporter
	if cfg.Enabled {
		var err error
		exporter, err = NewOTLPTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observability: failed to create OTLP trace exporter: %w", err)
		}
	}

	tp, err := NewTracerProvider(ctx, cfg, exporter)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(defaultPropagator())
	return tp, nil
}

// NewTracerProvider constructs a TracerProvider around exporter.
func NewTracerProvider(ctx context.Context, cfg *Config, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: tracer provider requires a config")
	}
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample())), nil
	}
	if exporter == nil {
		return nil, fmt.Errorf("observability: trace exporter cannot be nil when OpenTelemetry is enabled")
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFromConfig(cfg)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	), nil
}

// InitMeter builds and installs the global meter provider.
func InitMeter(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: meter initialization requires a config")
	}

	var exporter sdkmetric.Exporter
	if cfg.Enabled {
		var err error
		exporter, err = NewOTLPMetricExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("observability: failed to create OTLP metric exporter: %w", err)
		}
	}

	mp, err := NewMeterProvider(ctx, cfg, exporter)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	return mp, nil
}

// NewMeterProvider constructs a MeterProvider reading into exporter.
func NewMeterProvider(ctx context.Context, cfg *Config, exporter sdkmetric.Exporter) (*sdkmetric.MeterProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: meter provider requires a config")
	}
	if !cfg.Enabled {
		return sdkmetric.NewMeterProvider(), nil
	}
	if exporter == nil {
		return nil, fmt.Errorf("observability: metric exporter cannot be nil when OpenTelemetry is enabled")
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricExportInterval))),
	), nil
}

func samplerFromConfig(cfg *Config) sdktrace.Sampler {
	switch cfg.TracesSampler {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracesSamplerArg))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.AlwaysSample()
	}
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attributes := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes))
	for _, key := range slices.Sorted(maps.Keys(cfg.ResourceAttributes)) {
		attributes = append(attributes, attribute.String(key, cfg.ResourceAttributes[key]))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attributes...),
	)
}

func defaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
