package observability

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/searchagent/internal/types"
)

const (
	defaultServiceName      = "searchagent"
	defaultExporterProtocol = "http/protobuf"
	protocolGRPC            = "grpc"
	defaultSampler          = "always_on"
	defaultMetricInterval   = 60 * time.Second

	resourceServiceNameKey    = "service.name"
	resourceServiceVersionKey = "service.version"
)

// Config holds the OpenTelemetry settings resolved from the root config.
type Config struct {
	Enabled              bool
	ServiceName          string
	ServiceVersion       string
	ExporterEndpoint     string
	ExporterProtocol     string
	ResourceAttributes   map[string]string
	TracesSampler        string
	TracesSamplerArg     float64
	MetricExportInterval time.Duration
}

// LoadConfig resolves and validates telemetry settings. version is the
// build version reported as service.version.
func LoadConfig(cfg *types.Config, version string) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	resourceAttributes, err := parseResourceAttributes(cfg.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to parse resource attributes: %w", err)
	}

	otelCfg := &Config{
		Enabled:            cfg.OTelEnabled,
		ServiceName:        strings.TrimSpace(cfg.OTelServiceName),
		ServiceVersion:     strings.TrimSpace(version),
		ExporterEndpoint:   strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		ExporterProtocol:   strings.TrimSpace(cfg.OTelExporterOTLPProtocol),
		ResourceAttributes: resourceAttributes,
		TracesSampler:      strings.TrimSpace(cfg.OTelTracesSampler),
		TracesSamplerArg:   cfg.OTelTracesSamplerArg,
	}
	if err := otelCfg.Validate(); err != nil {
		return nil, err
	}
	return otelCfg, nil
}

// Validate fills defaults and, when telemetry is enabled, checks the
// exporter settings.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("observability: config is nil")
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	c.ExporterProtocol = strings.ToLower(c.ExporterProtocol)
	if c.ExporterProtocol == "" {
		c.ExporterProtocol = defaultExporterProtocol
	}
	c.TracesSampler = strings.ToLower(c.TracesSampler)
	if c.TracesSampler == "" {
		c.TracesSampler = defaultSampler
	}
	if c.MetricExportInterval <= 0 {
		c.MetricExportInterval = defaultMetricInterval
	}
	c.ensureResourceDefaults()

	if !c.Enabled {
		return nil
	}

	if c.ExporterEndpoint == "" {
		return fmt.Errorf("observability: OTLP exporter endpoint is required when OpenTelemetry is enabled")
	}
	if err := validateEndpoint(c.ExporterProtocol, c.ExporterEndpoint); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	if c.TracesSamplerArg < 0 {
		return fmt.Errorf("observability: traces sampler argument must be non-negative")
	}
	if c.TracesSampler == "traceidratio" && (c.TracesSamplerArg <= 0 || c.TracesSamplerArg > 1) {
		return fmt.Errorf("observability: traces sampler argument must be between 0 and 1 when sampler is traceidratio")
	}
	return nil
}

func validateEndpoint(protocol, endpoint string) error {
	switch protocol {
	case defaultExporterProtocol:
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return fmt.Errorf("OTLP endpoint must use http or https with http/protobuf")
		}
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid OTLP endpoint: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("OTLP endpoint must include a host")
		}
	case protocolGRPC:
		if _, _, err := parseGRPCEndpoint(endpoint); err != nil {
			return fmt.Errorf("invalid OTLP gRPC endpoint: %w", err)
		}
		if !strings.Contains(endpoint, "://") && !strings.Contains(endpoint, ":") {
			return fmt.Errorf("OTLP gRPC endpoint should be host:port")
		}
	default:
		return fmt.Errorf("unsupported OTLP exporter protocol %q", protocol)
	}
	return nil
}

// parseResourceAttributes reads the OTEL_RESOURCE_ATTRIBUTES form
// "k1=v1,k2=v2".
func parseResourceAttributes(input string) (map[string]string, error) {
	attributes := make(map[string]string)
	for pair := range strings.SplitSeq(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid resource attribute %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("resource attribute key cannot be empty")
		}
		attributes[key] = strings.TrimSpace(value)
	}
	return attributes, nil
}

func (c *Config) ensureResourceDefaults() {
	if c.ResourceAttributes == nil {
		c.ResourceAttributes = make(map[string]string)
	}
	if _, ok := c.ResourceAttributes[resourceServiceNameKey]; !ok {
		c.ResourceAttributes[resourceServiceNameKey] = c.ServiceName
	}
	if _, ok := c.ResourceAttributes[resourceServiceVersionKey]; !ok && c.ServiceVersion != "" {
		c.ResourceAttributes[resourceServiceVersionKey] = c.ServiceVersion
	}
}
