package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/ca-srg/searchagent/internal/types"
)

const (
	ddgAPIEndpoint    = "https://api.duckduckgo.com"
	ddgHTMLEndpoint   = "https://html.duckduckgo.com/html/"
	ddgDirectEndpoint = "https://duckduckgo.com/"
	ddgAppName        = "AiWebSearchAgent"
	ddgRegion         = "kr-kr"
	ddgAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// DuckDuckGoProvider uses the Instant Answer API and falls back to scraping
// the HTML results page. It needs no credentials.
type DuckDuckGoProvider struct {
	apiURL    string
	htmlURL   string
	directURL string
	client    *http.Client
	logger    *log.Logger
}

// NewDuckDuckGoProvider creates a DuckDuckGo provider.
func NewDuckDuckGoProvider(client *http.Client) *DuckDuckGoProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGoProvider{
		apiURL:    ddgAPIEndpoint,
		htmlURL:   ddgHTMLEndpoint,
		directURL: ddgDirectEndpoint,
		client:    client,
		logger:    log.New(log.Default().Writer(), "websearch/duckduckgo ", log.LstdFlags),
	}
}

// Name implements Provider.
func (p *DuckDuckGoProvider) Name() ProviderName { return ProviderDuckDuckGo }

type ddgAPIResponse struct {
	Heading       string          `json:"Heading"`
	AbstractText  string          `json:"AbstractText"`
	AbstractURL   string          `json:"AbstractURL"`
	RelatedTopics []ddgTopic      `json:"RelatedTopics"`
	Infobox       json.RawMessage `json:"Infobox"`
}

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

type ddgInfobox struct {
	Content []struct {
		DataType string `json:"data_type"`
		Label    string `json:"label"`
		Value    any    `json:"value"`
	} `json:"content"`
}

// Search implements Provider. Hangul queries skip the API because it rarely
// answers them. API failures and empty answers fall through to scraping.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	n = clampResults(n, 0)

	if containsHangul(query) {
		p.logger.Printf("DuckDuckGoProvider: hangul query, using html hash=%s", telemetryFingerprint(query))
		return p.searchHTML(ctx, query, n)
	}

	results, err := p.searchAPI(ctx, query, n)
	if err != nil {
		p.logger.Printf("DuckDuckGoProvider: api failed, using html hash=%s err=%v", telemetryFingerprint(query), err)
		return p.searchHTML(ctx, query, n)
	}
	if len(results) == 0 {
		return p.searchHTML(ctx, query, n)
	}
	return results, nil
}

func (p *DuckDuckGoProvider) searchAPI(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("no_redirect", "1")
	params.Set("t", ddgAppName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build duckduckgo request: %w", err)
	}

	var decoded ddgAPIResponse
	if err := fetchJSON(p.client, ProviderDuckDuckGo, req, &decoded); err != nil {
		return nil, err
	}
	return decoded.results(n), nil
}

func (r *ddgAPIResponse) results(n int) []types.SearchResult {
	var results []types.SearchResult

	if r.AbstractText != "" && r.AbstractURL != "" {
		results = append(results, types.SearchResult{Title: r.Heading, Link: r.AbstractURL, Snippet: r.AbstractText})
	}

	topics := r.RelatedTopics
	if len(topics) > n {
		topics = topics[:n]
	}
	for _, topic := range topics {
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title := topic.Text
		if head, _, found := strings.Cut(topic.Text, " - "); found {
			title = head
		}
		results = append(results, types.SearchResult{Title: title, Link: topic.FirstURL, Snippet: topic.Text})
	}

	if len(results) < n && len(r.Infobox) > 0 && r.Infobox[0] == '{' {
		var box ddgInfobox
		if err := json.Unmarshal(r.Infobox, &box); err == nil {
			remaining := n - len(results)
			entries := box.Content
			if len(entries) > remaining {
				entries = entries[:remaining]
			}
			for _, entry := range entries {
				value, ok := entry.Value.(string)
				if entry.DataType != "link" || !ok || value == "" || entry.Label == "" {
					continue
				}
				results = append(results, types.SearchResult{Title: entry.Label, Link: value, Snippet: entry.Label})
			}
		}
	}

	if len(results) > n {
		results = results[:n]
	}
	return results
}

// searchHTML scrapes the HTML endpoint. It never returns an error: every
// failure degrades to an empty result set.
func (p *DuckDuckGoProvider) searchHTML(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("kl", ddgRegion)

	body, err := p.fetchPage(ctx, p.htmlURL+"?"+params.Encode())
	if err != nil {
		p.logger.Printf("DuckDuckGoProvider: html fetch failed hash=%s err=%v", telemetryFingerprint(query), err)
		return []types.SearchResult{}, nil
	}

	results, err := parseDuckDuckGoHTML(body, n)
	if err != nil {
		p.logger.Printf("DuckDuckGoProvider: html parse failed hash=%s err=%v", telemetryFingerprint(query), err)
		return []types.SearchResult{}, nil
	}
	if len(results) > 0 {
		return results, nil
	}

	directParams := url.Values{}
	directParams.Set("q", query)
	directParams.Set("kl", ddgRegion)
	directParams.Set("ia", "web")
	directURL := p.directURL + "?" + directParams.Encode()
	if _, err := p.fetchPage(ctx, directURL); err != nil {
		p.logger.Printf("DuckDuckGoProvider: direct link check failed hash=%s err=%v", telemetryFingerprint(query), err)
		return []types.SearchResult{}, nil
	}

	return []types.SearchResult{{
		Title:   fmt.Sprintf("DuckDuckGo search results for: %s", query),
		Link:    directURL,
		Snippet: fmt.Sprintf("Click to view web search results for '%s' on DuckDuckGo.", query),
	}}, nil
}

func (p *DuckDuckGoProvider) fetchPage(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", ddgAcceptLanguage)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newStatusError(ProviderDuckDuckGo, resp.StatusCode, "")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
