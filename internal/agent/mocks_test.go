package agent

import (
	"context"
	"io"
	"iter"
	"log"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Complete(ctx context.Context, messages []llm.ChatMessage, model string) (string, error) {
	args := m.Called(ctx, messages, model)
	return args.String(0), args.Error(1)
}

func (m *mockLLMClient) CompleteStream(ctx context.Context, messages []llm.ChatMessage, model string) iter.Seq2[string, error] {
	args := m.Called(ctx, messages, model)
	seq, _ := args.Get(0).(iter.Seq2[string, error])
	return seq
}

// userMessageContains matches a message list whose user turn contains substr.
func userMessageContains(substr string) any {
	return mock.MatchedBy(func(messages []llm.ChatMessage) bool {
		for _, msg := range messages {
			if msg.Role == llm.RoleUser && strings.Contains(msg.Content, substr) {
				return true
			}
		}
		return false
	})
}

func chunkSeq(chunks []string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Search(ctx context.Context, query string, provider websearch.ProviderName, n int) []types.SearchResult {
	args := m.Called(ctx, query, provider, n)
	results, _ := args.Get(0).([]types.SearchResult)
	return results
}

func (m *mockGateway) Resolve(override string) websearch.ProviderName {
	if name, ok := websearch.ParseProvider(override); ok {
		return name
	}
	return websearch.DefaultProvider
}

type mockDecomposer struct {
	mock.Mock
}

func (m *mockDecomposer) Decompose(ctx context.Context, prompt string) []string {
	args := m.Called(ctx, prompt)
	queries, _ := args.Get(0).([]string)
	return queries
}

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) SummarizeAll(ctx context.Context, prompt, query string, results []types.SearchResult, progress func(current, total int)) []types.SearchResult {
	args := m.Called(ctx, prompt, query, results)
	for i := range results {
		if progress != nil {
			progress(i+1, len(results))
		}
	}
	if out, ok := args.Get(0).([]types.SearchResult); ok {
		return out
	}
	return results
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, prompt string, results []types.SearchResult) types.EvaluationVerdict {
	args := m.Called(ctx, prompt, results)
	verdict, _ := args.Get(0).(types.EvaluationVerdict)
	return verdict
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Generate(ctx context.Context, prompt string, steps []types.SearchStep) string {
	args := m.Called(ctx, prompt, steps)
	return args.String(0)
}

func (m *mockReporter) GenerateStream(ctx context.Context, prompt string, steps []types.SearchStep) iter.Seq2[string, error] {
	args := m.Called(ctx, prompt, steps)
	seq, _ := args.Get(0).(iter.Seq2[string, error])
	return seq
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
