package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/ca-srg/searchagent/internal/types"
)

var websearchTracer = otel.Tracer("searchagent/websearch")

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ProviderName identifies a web search backend.
type ProviderName string

const (
	ProviderDuckDuckGo ProviderName = "duckduckgo"
	ProviderGoogle     ProviderName = "google"
	ProviderSearxNG    ProviderName = "searxng"
	ProviderTavily     ProviderName = "tavily"
	ProviderSerper     ProviderName = "serper"
	ProviderBrave      ProviderName = "brave"
)

// DefaultProvider is queried when the selected provider returns nothing.
const DefaultProvider = ProviderDuckDuckGo

// AllProviders lists every selectable provider.
var AllProviders = []ProviderName{
	ProviderDuckDuckGo,
	ProviderGoogle,
	ProviderSearxNG,
	ProviderTavily,
	ProviderSerper,
	ProviderBrave,
}

// ParseProvider normalizes a provider hint. Unknown or empty values report false.
func ParseProvider(raw string) (ProviderName, bool) {
	name := ProviderName(strings.ToLower(strings.TrimSpace(raw)))
	for _, candidate := range AllProviders {
		if candidate == name {
			return name, true
		}
	}
	return "", false
}

// Provider is one web search backend.
type Provider interface {
	Name() ProviderName
	Search(ctx context.Context, query string, n int) ([]types.SearchResult, error)
}

// fetchJSON performs req and decodes a 2xx JSON body into out.
func fetchJSON(client *http.Client, provider ProviderName, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &SearchError{Type: ErrorTypeTransport, Provider: provider, Message: "request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newStatusError(provider, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &SearchError{Type: ErrorTypeDecode, Provider: provider, Message: "failed to decode response", Cause: err}
	}
	return nil
}

func clampResults(n, limit int) int {
	if n <= 0 {
		n = 5
	}
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

func telemetryFingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:8])
}
