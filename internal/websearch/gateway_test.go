package websearch

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/types"
)

type mockProvider struct {
	mock.Mock
	name ProviderName
}

func (m *mockProvider) Name() ProviderName { return m.name }

func (m *mockProvider) Search(ctx context.Context, query string, n int) ([]types.SearchResult, error) {
	args := m.Called(ctx, query, n)
	results, _ := args.Get(0).([]types.SearchResult)
	return results, args.Error(1)
}

func newTestGateway(cfg GatewayConfig, providers ...Provider) *Gateway {
	gateway := NewGateway(cfg, providers...)
	gateway.logger = log.New(io.Discard, "", 0)
	return gateway
}

func sampleResults(titles ...string) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(titles))
	for _, title := range titles {
		results = append(results, types.SearchResult{Title: title, Link: "https://example.com/" + title, Snippet: title + " snippet"})
	}
	return results
}

func TestParseProvider(t *testing.T) {
	name, ok := ParseProvider("  Brave ")
	assert.True(t, ok)
	assert.Equal(t, ProviderBrave, name)

	_, ok = ParseProvider("unknown_provider")
	assert.False(t, ok)

	_, ok = ParseProvider("")
	assert.False(t, ok)
}

func TestGateway_Search(t *testing.T) {
	t.Run("uses selected provider", func(t *testing.T) {
		brave := &mockProvider{name: ProviderBrave}
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		brave.On("Search", mock.Anything, "golang", 5).Return(sampleResults("a", "b"), nil).Once()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderBrave}, brave, ddg)
		results := gateway.Search(context.Background(), "golang", ProviderBrave, 5)

		assert.Len(t, results, 2)
		brave.AssertExpectations(t)
		ddg.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to default on error", func(t *testing.T) {
		tavily := &mockProvider{name: ProviderTavily}
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		tavily.On("Search", mock.Anything, "q", 5).Return(nil, errors.New("boom")).Once()
		ddg.On("Search", mock.Anything, "q", 5).Return(sampleResults("fallback"), nil).Once()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderTavily}, tavily, ddg)
		results := gateway.Search(context.Background(), "q", ProviderTavily, 5)

		require.Len(t, results, 1)
		assert.Equal(t, "fallback", results[0].Title)
		tavily.AssertExpectations(t)
		ddg.AssertExpectations(t)
	})

	t.Run("falls back to default on empty", func(t *testing.T) {
		serper := &mockProvider{name: ProviderSerper}
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		serper.On("Search", mock.Anything, "q", 3).Return([]types.SearchResult{}, nil).Once()
		ddg.On("Search", mock.Anything, "q", 3).Return([]types.SearchResult{}, nil).Once()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderSerper}, serper, ddg)
		results := gateway.Search(context.Background(), "q", ProviderSerper, 3)

		assert.NotNil(t, results)
		assert.Empty(t, results)
		serper.AssertExpectations(t)
		ddg.AssertExpectations(t)
	})

	t.Run("default provider failure does not retry", func(t *testing.T) {
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		ddg.On("Search", mock.Anything, "q", 5).Return(nil, errors.New("offline")).Once()

		gateway := newTestGateway(GatewayConfig{}, ddg)
		results := gateway.Search(context.Background(), "q", ProviderDuckDuckGo, 5)

		assert.Empty(t, results)
		ddg.AssertNumberOfCalls(t, "Search", 1)
	})

	t.Run("unknown provider uses configured", func(t *testing.T) {
		brave := &mockProvider{name: ProviderBrave}
		brave.On("Search", mock.Anything, "q", 5).Return(sampleResults("x"), nil).Once()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderBrave}, brave)
		results := gateway.Search(context.Background(), "q", ProviderName("unknown_provider"), 5)

		assert.Len(t, results, 1)
		brave.AssertExpectations(t)
	})

	t.Run("unregistered provider falls back", func(t *testing.T) {
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		ddg.On("Search", mock.Anything, "q", 5).Return(sampleResults("d"), nil).Once()

		gateway := newTestGateway(GatewayConfig{}, ddg)
		results := gateway.Search(context.Background(), "q", ProviderGoogle, 5)

		assert.Len(t, results, 1)
		ddg.AssertExpectations(t)
	})

	t.Run("truncates to n", func(t *testing.T) {
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		ddg.On("Search", mock.Anything, "q", 2).Return(sampleResults("a", "b", "c"), nil).Once()

		gateway := newTestGateway(GatewayConfig{}, ddg)
		results := gateway.Search(context.Background(), "q", ProviderDuckDuckGo, 2)
		assert.Len(t, results, 2)
	})

	t.Run("per call timeout", func(t *testing.T) {
		slow := &mockProvider{name: ProviderBrave}
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		slow.On("Search", mock.Anything, "q", 5).Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).Return(nil, context.DeadlineExceeded).Once()
		ddg.On("Search", mock.Anything, "q", 5).Return(sampleResults("fast"), nil).Once()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderBrave, Timeout: 20 * time.Millisecond}, slow, ddg)
		results := gateway.Search(context.Background(), "q", ProviderBrave, 5)

		require.Len(t, results, 1)
		assert.Equal(t, "fast", results[0].Title)
	})

	t.Run("cancelled context skips fallback", func(t *testing.T) {
		brave := &mockProvider{name: ProviderBrave}
		ddg := &mockProvider{name: ProviderDuckDuckGo}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		gateway := newTestGateway(GatewayConfig{Provider: ProviderBrave}, brave, ddg)
		results := gateway.Search(ctx, "q", ProviderBrave, 5)

		assert.Empty(t, results)
		ddg.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGateway_Resolve(t *testing.T) {
	gateway := newTestGateway(GatewayConfig{Provider: ProviderSearxNG})
	assert.Equal(t, ProviderSearxNG, gateway.Configured())
	assert.Equal(t, ProviderTavily, gateway.Resolve("TAVILY"))
	assert.Equal(t, ProviderSearxNG, gateway.Resolve("bing"))
	assert.Equal(t, ProviderSearxNG, gateway.Resolve(""))

	fallback := newTestGateway(GatewayConfig{Provider: "nope"})
	assert.Equal(t, DefaultProvider, fallback.Configured())
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2)
	require.NoError(t, limiter.Wait(context.Background(), ProviderBrave))
	require.NoError(t, limiter.Wait(context.Background(), ProviderBrave))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, ProviderBrave), "budget exhausted within the deadline")
	assert.NoError(t, limiter.Wait(context.Background(), ProviderSerper), "budgets are per provider")

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, unlimited.Wait(context.Background(), ProviderBrave))
	}
}
