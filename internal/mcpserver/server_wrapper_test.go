package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/metrics"
	"github.com/ca-srg/searchagent/internal/types"
)

func newTestWrapper(t *testing.T, agent agentService) *ServerWrapper {
	t.Helper()
	metrics.ResetForTesting()
	store, err := metrics.NewStoreWithPath(t.TempDir() + "/stats.db")
	require.NoError(t, err)
	metrics.SetStoreForTesting(store)
	t.Cleanup(metrics.ResetForTesting)

	wrapper, err := NewServerWrapper(testConfig(), agent)
	require.NoError(t, err)
	wrapper.logger = log.New(io.Discard, "", 0)
	return wrapper
}

func TestNewServerWrapper_RequiresDependencies(t *testing.T) {
	_, err := NewServerWrapper(nil, &mockAgent{})
	assert.Error(t, err)

	_, err = NewServerWrapper(testConfig(), nil)
	assert.Error(t, err)
}

func TestServerWrapper_HealthCheck(t *testing.T) {
	wrapper := newTestWrapper(t, &mockAgent{})

	rec := httptest.NewRecorder()
	wrapper.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{AgentToolName, ResultsToolName}, body["tools"])
}

func TestServerWrapper_ToolsOverClientSession(t *testing.T) {
	agent := &mockAgent{}
	wrapper := newTestWrapper(t, agent)
	agent.On("ProcessPromptSearchOnly", mock.Anything, "latest go release", "").Return(&types.SearchResultsResponse{
		OriginalPrompt: "latest go release",
		SearchSteps:    []types.SearchStep{},
		Sources:        []types.SearchResult{{Title: "Go 1.26", Link: "https://go.dev/doc/go1.26", Snippet: "release notes"}},
	}).Once()

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := wrapper.GetSDKServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{AgentToolName, ResultsToolName}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ResultsToolName,
		Arguments: map[string]any{"prompt": "latest go release"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "https://go.dev/doc/go1.26")
	agent.AssertExpectations(t)

	assert.EqualValues(t, 1, metrics.GetTotalForMode(metrics.ModeMCP))
}

func TestServerWrapper_SSEAndStreamableOnMCPPath(t *testing.T) {
	wrapper := newTestWrapper(t, &mockAgent{})
	server := httptest.NewServer(wrapper.Handler())
	defer server.Close()

	transports := map[string]mcp.Transport{
		"sse":        &mcp.SSEClientTransport{Endpoint: server.URL + "/mcp"},
		"streamable": &mcp.StreamableClientTransport{Endpoint: server.URL + "/mcp"},
	}
	for name, transport := range transports {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
			session, err := client.Connect(ctx, transport, nil)
			require.NoError(t, err)
			defer func() { _ = session.Close() }()

			tools, err := session.ListTools(ctx, nil)
			require.NoError(t, err)
			assert.Len(t, tools.Tools, 2)
		})
	}
}

func TestServerWrapper_StartStop(t *testing.T) {
	wrapper := newTestWrapper(t, &mockAgent{})

	require.NoError(t, wrapper.Start())
	assert.True(t, wrapper.IsRunning())
	assert.Error(t, wrapper.Start())

	require.NoError(t, wrapper.Stop())
	assert.False(t, wrapper.IsRunning())
	assert.Error(t, wrapper.Stop())

	wrapper.WaitForShutdown()
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	assert.Equal(t, "10.0.0.5", extractClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", extractClientIP(req))
}

func TestAcceptsEventStream(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	assert.False(t, acceptsEventStream(req))

	req.Header.Set("Accept", "application/json, text/event-stream;q=0.9")
	assert.True(t, acceptsEventStream(req))
}
