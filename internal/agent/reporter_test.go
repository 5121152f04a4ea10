package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
)

func newTestReporter(client *mockLLMClient) *Reporter {
	r := NewReporter(client, "main-model", nil, 0)
	r.logger = discardLogger()
	return r
}

func reportSteps() []types.SearchStep {
	return []types.SearchStep{
		{Query: "capital of France", Results: []types.SearchResult{
			{Title: "Paris", Link: "https://paris.example", Snippet: "raw", Summary: "Paris is the capital of France"},
		}},
		{Query: "empty query", Results: []types.SearchResult{}},
	}
}

func collectStream(t *testing.T, r *Reporter, steps []types.SearchStep) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range r.GenerateStream(context.Background(), "capital of France", steps) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestFormatStepsForReport(t *testing.T) {
	block := formatStepsForReport(reportSteps())
	assert.Equal(t,
		"Search Query 1: capital of France\n"+
			"  Result 1:\n  Title: Paris\n  Link: https://paris.example\n  Snippet: Paris is the capital of France\n\n"+
			"Search Query 2: empty query\n",
		block)
}

func TestReportFailureMessage(t *testing.T) {
	assert.Equal(t, ReportTooLargeMessage, ReportFailureMessage(&llm.LLMError{Type: llm.ErrorTypeContextLength, Message: "too long"}))
	assert.Equal(t, ReportTooLargeMessage, ReportFailureMessage(errors.New("This model's maximum context length is 8192 tokens")))
	assert.Equal(t, "Error generating report: connection reset", ReportFailureMessage(errors.New("connection reset")))
}

func TestReporter_Generate(t *testing.T) {
	t.Run("cites evidence", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, userMessageContains("  Link: https://paris.example"), "main-model").
			Return("# Capital\nParis [Paris](https://paris.example)", nil).Once()

		report := newTestReporter(client).Generate(context.Background(), "capital of France", reportSteps())

		assert.Contains(t, report, "https://paris.example")
		client.AssertExpectations(t)
	})

	t.Run("no results skips completion", func(t *testing.T) {
		client := &mockLLMClient{}
		steps := []types.SearchStep{{Query: "a", Results: []types.SearchResult{}}, {Query: "b"}}

		report := newTestReporter(client).Generate(context.Background(), "p", steps)

		assert.Equal(t, NoResultsReport, report)
		client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("context length error", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "main-model").
			Return("", &llm.LLMError{Type: llm.ErrorTypeContextLength, Message: "prompt is too long"}).Once()

		report := newTestReporter(client).Generate(context.Background(), "p", reportSteps())
		assert.Equal(t, ReportTooLargeMessage, report)
	})

	t.Run("other error", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "main-model").Return("", errors.New("service unavailable")).Once()

		report := newTestReporter(client).Generate(context.Background(), "p", reportSteps())
		assert.Equal(t, "Error generating report: service unavailable", report)
	})
}

func TestReporter_GenerateStream(t *testing.T) {
	t.Run("yields chunks", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("CompleteStream", mock.Anything, mock.Anything, "main-model").
			Return(chunkSeq([]string{"# Report", "", " Paris"}, nil)).Once()

		chunks, err := collectStream(t, newTestReporter(client), reportSteps())

		require.NoError(t, err)
		assert.Equal(t, []string{"# Report", " Paris"}, chunks)
	})

	t.Run("no results yields fixed text", func(t *testing.T) {
		client := &mockLLMClient{}

		chunks, err := collectStream(t, newTestReporter(client), nil)

		require.NoError(t, err)
		assert.Equal(t, []string{NoResultsReport}, chunks)
		client.AssertNotCalled(t, "CompleteStream", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mid-stream failure keeps earlier chunks", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("CompleteStream", mock.Anything, mock.Anything, "main-model").
			Return(chunkSeq([]string{"partial"}, errors.New("stream reset"))).Once()

		chunks, err := collectStream(t, newTestReporter(client), reportSteps())

		assert.Equal(t, []string{"partial"}, chunks)
		require.Error(t, err)
		assert.Equal(t, "Error generating report: stream reset", ReportFailureMessage(err))
	})
}
