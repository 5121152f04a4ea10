package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/types"
)

func newTestSummarizer(client *mockLLMClient, concurrency int) *Summarizer {
	s := NewSummarizer(client, "low-model", nil, 0, concurrency)
	s.logger = discardLogger()
	return s
}

func TestSummarizer_Summarize(t *testing.T) {
	result := types.SearchResult{Title: "Paris", Link: "https://paris.example", Snippet: "Paris is the capital of France"}

	t.Run("attaches summary", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, userMessageContains("Snippet: Paris is the capital of France"), "low-model").
			Return("  Paris is France's capital.  ", nil).Once()

		got := newTestSummarizer(client, 1).Summarize(context.Background(), "capital of France", "capital of France", result)

		assert.Equal(t, "Paris is France's capital.", got.Summary)
		assert.Equal(t, result.Snippet, got.OriginalSnippet)
		assert.Equal(t, result.Snippet, got.Snippet)
		assert.Equal(t, "Paris is France's capital.", got.Text())
		client.AssertExpectations(t)
	})

	t.Run("failure passes result through", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "low-model").Return("", errors.New("throttled")).Once()

		got := newTestSummarizer(client, 1).Summarize(context.Background(), "p", "q", result)
		assert.Equal(t, result, got)
	})

	t.Run("empty summary passes result through", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "low-model").Return("\n", nil).Once()

		got := newTestSummarizer(client, 1).Summarize(context.Background(), "p", "q", result)
		assert.Equal(t, result, got)
		assert.False(t, got.Summarized())
	})

	t.Run("cancelled context skips completion", func(t *testing.T) {
		client := &mockLLMClient{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		got := newTestSummarizer(client, 1).Summarize(ctx, "p", "q", result)
		assert.Equal(t, result, got)
		client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSummarizer_SummarizeAll(t *testing.T) {
	results := []types.SearchResult{
		{Title: "A", Link: "https://a.example", Snippet: "alpha"},
		{Title: "B", Link: "https://b.example", Snippet: "bravo"},
		{Title: "C", Link: "https://c.example", Snippet: "charlie"},
		{Title: "D", Link: "https://d.example", Snippet: "delta"},
	}

	t.Run("preserves order and reports progress", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, userMessageContains("Snippet: alpha"), "low-model").Return("sum-a", nil).Once()
		client.On("Complete", mock.Anything, userMessageContains("Snippet: bravo"), "low-model").Return("", errors.New("fail")).Once()
		client.On("Complete", mock.Anything, userMessageContains("Snippet: charlie"), "low-model").Return("sum-c", nil).Once()
		client.On("Complete", mock.Anything, userMessageContains("Snippet: delta"), "low-model").Return("sum-d", nil).Once()

		var (
			mu       sync.Mutex
			progress []int
		)
		got := newTestSummarizer(client, 3).SummarizeAll(context.Background(), "p", "q", results, func(current, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, len(results), total)
			progress = append(progress, current)
		})

		require.Len(t, got, 4)
		assert.Equal(t, "sum-a", got[0].Summary)
		assert.Equal(t, results[1], got[1])
		assert.Equal(t, "sum-c", got[2].Summary)
		assert.Equal(t, "sum-d", got[3].Summary)
		assert.Equal(t, []int{1, 2, 3, 4}, progress)
		client.AssertExpectations(t)
	})

	t.Run("all failures leave input unchanged", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "low-model").Return("", errors.New("down"))

		got := newTestSummarizer(client, 2).SummarizeAll(context.Background(), "p", "q", results, nil)
		assert.Equal(t, results, got)
	})

	t.Run("empty input", func(t *testing.T) {
		client := &mockLLMClient{}
		got := newTestSummarizer(client, 2).SummarizeAll(context.Background(), "p", "q", nil, nil)
		assert.Empty(t, got)
		client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}
