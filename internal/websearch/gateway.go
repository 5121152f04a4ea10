package websearch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ca-srg/searchagent/internal/types"
)

const defaultSearchTimeout = 15 * time.Second

// GatewayConfig holds the gateway's runtime policy.
type GatewayConfig struct {
	Provider      ProviderName
	Timeout       time.Duration
	RatePerMinute int
}

// Gateway dispatches queries to providers. It never fails: provider errors
// become empty result sets, and an empty answer from a non-default provider
// is retried once against DefaultProvider.
type Gateway struct {
	providers  map[ProviderName]Provider
	configured ProviderName
	timeout    time.Duration
	limiter    *RateLimiter
	logger     *log.Logger
}

// NewGateway wires the given providers behind one fail-soft entry point.
func NewGateway(cfg GatewayConfig, providers ...Provider) *Gateway {
	registry := make(map[ProviderName]Provider, len(providers))
	for _, provider := range providers {
		if provider != nil {
			registry[provider.Name()] = provider
		}
	}

	configured, ok := ParseProvider(string(cfg.Provider))
	if !ok {
		configured = DefaultProvider
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}

	return &Gateway{
		providers:  registry,
		configured: configured,
		timeout:    timeout,
		limiter:    NewRateLimiter(cfg.RatePerMinute),
		logger:     log.New(log.Default().Writer(), "websearch/gateway ", log.LstdFlags),
	}
}

// NewGatewayFromConfig registers every provider whose credentials are present.
// DuckDuckGo needs none and is always available.
func NewGatewayFromConfig(ctx context.Context, cfg *types.Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("websearch: nil configuration provided")
	}

	client := &http.Client{}
	providers := []Provider{NewDuckDuckGoProvider(client)}

	if cfg.GoogleSearchAPIKey != "" && cfg.GoogleSearchEngineID != "" {
		google, err := NewGoogleProvider(ctx, cfg.GoogleSearchAPIKey, cfg.GoogleSearchEngineID, "")
		if err != nil {
			return nil, err
		}
		providers = append(providers, google)
	}
	if cfg.SearxNGURL != "" {
		providers = append(providers, NewSearxNGProvider(cfg.SearxNGURL, client))
	}
	if cfg.TavilyAPIKey != "" {
		providers = append(providers, NewTavilyProvider(cfg.TavilyAPIKey, client))
	}
	if cfg.SerperAPIKey != "" {
		providers = append(providers, NewSerperProvider(cfg.SerperAPIKey, client))
	}
	if cfg.BraveAPIKey != "" {
		providers = append(providers, NewBraveProvider(cfg.BraveAPIKey, client))
	}

	return NewGateway(GatewayConfig{
		Provider:      ProviderName(cfg.SearchProvider),
		Timeout:       cfg.SearchTimeout,
		RatePerMinute: cfg.SearchRatePerMinute,
	}, providers...), nil
}

// Configured returns the provider used when no valid override is given.
func (g *Gateway) Configured() ProviderName {
	return g.configured
}

// Resolve maps an optional override to the provider that will serve it.
// Invalid overrides are ignored.
func (g *Gateway) Resolve(override string) ProviderName {
	if name, ok := ParseProvider(override); ok {
		return name
	}
	return g.configured
}

// Search returns up to n results for query from provider, falling back to
// DefaultProvider once when provider is not the default and yields nothing.
func (g *Gateway) Search(ctx context.Context, query string, provider ProviderName, n int) []types.SearchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ParseProvider(string(provider)); !ok {
		provider = g.configured
	}

	ctx, span := websearchTracer.Start(ctx, "websearch.gateway.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("websearch.provider", string(provider)),
		attribute.String("websearch.query_hash", telemetryFingerprint(query)),
		attribute.Int("websearch.requested", n),
	)

	results, err := g.call(ctx, provider, query, n)
	if err != nil {
		span.RecordError(err)
		g.logger.Printf("Gateway: provider failed provider=%s hash=%s err=%v", provider, telemetryFingerprint(query), err)
	}

	if len(results) == 0 && provider != DefaultProvider && ctx.Err() == nil {
		span.AddEvent("websearch.fallback", trace.WithAttributes(attribute.String("websearch.fallback_provider", string(DefaultProvider))))
		g.logger.Printf("Gateway: falling back provider=%s fallback=%s hash=%s", provider, DefaultProvider, telemetryFingerprint(query))
		results, err = g.call(ctx, DefaultProvider, query, n)
		if err != nil {
			span.RecordError(err)
			g.logger.Printf("Gateway: fallback failed provider=%s hash=%s err=%v", DefaultProvider, telemetryFingerprint(query), err)
		}
		span.SetAttributes(attribute.Bool("websearch.fallback", true))
	}

	if results == nil {
		results = []types.SearchResult{}
	}
	if len(results) == 0 && err != nil {
		span.SetStatus(codes.Error, "provider_failed")
	}
	span.SetAttributes(attribute.Int("websearch.results", len(results)))
	return results
}

func (g *Gateway) call(ctx context.Context, name ProviderName, query string, n int) ([]types.SearchResult, error) {
	provider, ok := g.providers[name]
	if !ok {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: name, Message: "provider is not configured"}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(callCtx, name); err != nil {
		return nil, &SearchError{Type: ErrorTypeRateLimit, Provider: name, Message: "rate limit wait aborted", Cause: err}
	}
	if err := callCtx.Err(); err != nil {
		return nil, err
	}

	results, err := provider.Search(callCtx, query, n)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &SearchError{Type: ErrorTypeTransport, Provider: name, Message: fmt.Sprintf("timed out after %s", g.timeout), Cause: err, Retryable: true}
		}
		return nil, err
	}
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}
