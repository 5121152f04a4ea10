package websearch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ca-srg/searchagent/internal/types"
)

const googleMaxNum = 10

// GoogleProvider queries the Programmable Search Engine JSON API.
type GoogleProvider struct {
	service  *customsearch.Service
	engineID string
}

// NewGoogleProvider creates a provider for the given API key and engine id.
// endpoint overrides the API root and is empty in production.
func NewGoogleProvider(ctx context.Context, apiKey, engineID, endpoint string) (*GoogleProvider, error) {
	if apiKey == "" || engineID == "" {
		return nil, &SearchError{Type: ErrorTypeConfig, Provider: ProviderGoogle, Message: "GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_ENGINE_ID are required"}
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}
	return &GoogleProvider{service: service, engineID: engineID}, nil
}

// Name implements Provider.
func (p *GoogleProvider) Name() ProviderName { return ProviderGoogle }

// Search implements Provider.
func (p *GoogleProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	n = clampResults(n, googleMaxNum)

	resp, err := p.service.Cse.List().
		Cx(p.engineID).
		Q(query).
		Num(int64(n)).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, newStatusError(ProviderGoogle, apiErr.Code, apiErr.Message)
		}
		return nil, &SearchError{Type: ErrorTypeTransport, Provider: ProviderGoogle, Message: "request failed", Cause: err, Retryable: true}
	}

	results := make([]types.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		results = append(results, types.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}
