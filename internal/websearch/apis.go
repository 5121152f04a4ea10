package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ca-srg/searchagent/internal/types"
)

const (
	serperEndpoint = "https://google.serper.dev/search"
	tavilyEndpoint = "https://api.tavily.com/search"
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	braveMaxCount  = 20
)

// SerperProvider queries the Serper Google proxy.
type SerperProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSerperProvider creates a Serper provider.
func NewSerperProvider(apiKey string, client *http.Client) *SerperProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &SerperProvider{apiKey: apiKey, endpoint: serperEndpoint, client: client}
}

// Name implements Provider.
func (p *SerperProvider) Name() ProviderName { return ProviderSerper }

// Search implements Provider.
func (p *SerperProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	if p.apiKey == "" {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: ProviderSerper, Message: "SERPER_API_KEY is not configured"}
	}
	n = clampResults(n, 0)

	payload, err := json.Marshal(map[string]any{"q": query, "num": n})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal serper request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build serper request: %w", err)
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var decoded struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := fetchJSON(p.client, ProviderSerper, req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, n)
	for _, item := range decoded.Organic {
		if len(results) >= n {
			break
		}
		results = append(results, types.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

// TavilyProvider queries the Tavily search API.
type TavilyProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewTavilyProvider creates a Tavily provider.
func NewTavilyProvider(apiKey string, client *http.Client) *TavilyProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &TavilyProvider{apiKey: apiKey, endpoint: tavilyEndpoint, client: client}
}

// Name implements Provider.
func (p *TavilyProvider) Name() ProviderName { return ProviderTavily }

// Search implements Provider.
func (p *TavilyProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	if p.apiKey == "" {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: ProviderTavily, Message: "TAVILY_API_KEY is not configured"}
	}
	n = clampResults(n, 0)

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  n,
		"search_depth": "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tavily request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tavily request: %w", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var decoded struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := fetchJSON(p.client, ProviderTavily, req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, n)
	for _, item := range decoded.Results {
		if len(results) >= n {
			break
		}
		results = append(results, types.SearchResult{Title: item.Title, Link: item.URL, Snippet: item.Content})
	}
	return results, nil
}

// BraveProvider queries the Brave Search web API.
type BraveProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBraveProvider creates a Brave provider.
func NewBraveProvider(apiKey string, client *http.Client) *BraveProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &BraveProvider{apiKey: apiKey, endpoint: braveEndpoint, client: client}
}

// Name implements Provider.
func (p *BraveProvider) Name() ProviderName { return ProviderBrave }

// Search implements Provider.
func (p *BraveProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	if p.apiKey == "" {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: ProviderBrave, Message: "BRAVE_API_KEY is not configured"}
	}
	n = clampResults(n, 0)

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(min(n, braveMaxCount)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	var decoded struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := fetchJSON(p.client, ProviderBrave, req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, n)
	for _, item := range decoded.Web.Results {
		if len(results) >= n {
			break
		}
		results = append(results, types.SearchResult{Title: item.Title, Link: item.URL, Snippet: item.Description})
	}
	return results, nil
}

// SearxNGProvider queries a self-hosted SearXNG instance.
type SearxNGProvider struct {
	baseURL string
	client  *http.Client
}

// NewSearxNGProvider creates a SearXNG provider rooted at baseURL.
func NewSearxNGProvider(baseURL string, client *http.Client) *SearxNGProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &SearxNGProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name implements Provider.
func (p *SearxNGProvider) Name() ProviderName { return ProviderSearxNG }

// Search implements Provider.
func (p *SearxNGProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	if p.baseURL == "" {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: ProviderSearxNG, Message: "SEARXNG_URL is not configured"}
	}
	n = clampResults(n, 0)

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	params.Set("language", "en-US")
	params.Set("count", strconv.Itoa(n))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build searxng request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var decoded struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := fetchJSON(p.client, ProviderSearxNG, req, &decoded); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, n)
	for _, item := range decoded.Results {
		if len(results) >= n {
			break
		}
		results = append(results, types.SearchResult{Title: item.Title, Link: item.URL, Snippet: item.Content})
	}
	return results, nil
}
