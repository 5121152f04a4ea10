package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ca-srg/searchagent/internal/types"
)

func newTestEvaluator(client *mockLLMClient) *Evaluator {
	e := NewEvaluator(client, "main-model", nil, 0)
	e.logger = discardLogger()
	return e
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   types.EvaluationVerdict
		parsed bool
	}{
		{
			name:   "json verdict",
			raw:    `Sure. {"sufficient": false, "reasoning": " need dates ", "additional_queries": ["paris history", "Paris History", " "]}`,
			want:   types.EvaluationVerdict{Sufficient: false, Reasoning: "need dates", AdditionalQueries: []string{"paris history"}},
			parsed: true,
		},
		{
			name:   "fenced json",
			raw:    "```json\n{\"sufficient\": true, \"reasoning\": \"ok\"}\n```",
			want:   types.EvaluationVerdict{Sufficient: true, Reasoning: "ok", AdditionalQueries: []string{}},
			parsed: true,
		},
		{
			name:   "heuristic yes",
			raw:    "Yes, the results are Sufficient.",
			want:   types.EvaluationVerdict{Sufficient: true, Reasoning: "Yes, the results are Sufficient.", AdditionalQueries: []string{}},
			parsed: false,
		},
		{
			name:   "heuristic without yes",
			raw:    "The results are not sufficient.",
			want:   types.EvaluationVerdict{Sufficient: false, Reasoning: "The results are not sufficient.", AdditionalQueries: []string{}},
			parsed: false,
		},
		{
			name:   "trailing prose with braces",
			raw:    "Verdict: {\"sufficient\": true, \"reasoning\": \"Paris\", \"additional_queries\": []}\nI could also look up {population} later.",
			want:   types.EvaluationVerdict{Sufficient: true, Reasoning: "Paris", AdditionalQueries: []string{}},
			parsed: true,
		},
		{
			name:   "braces inside strings",
			raw:    `{"sufficient": false, "reasoning": "missing } and { detail", "additional_queries": ["eiffel tower {height}"]} done`,
			want:   types.EvaluationVerdict{Sufficient: false, Reasoning: "missing } and { detail", AdditionalQueries: []string{"eiffel tower {height}"}},
			parsed: true,
		},
		{
			name:   "wrong field type falls back",
			raw:    `{"sufficient": "yes"}`,
			want:   types.EvaluationVerdict{Sufficient: true, Reasoning: `{"sufficient": "yes"}`, AdditionalQueries: []string{}},
			parsed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, parsed := parseVerdict(tt.raw)
			assert.Equal(t, tt.parsed, parsed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatResultsForEvaluation(t *testing.T) {
	block := formatResultsForEvaluation([]types.SearchResult{
		{Title: "Raw", Link: "https://raw.example", Snippet: "raw snippet"},
		{Title: "Summed", Link: "https://sum.example", Snippet: "long snippet", Summary: "short summary"},
	})

	assert.Equal(t,
		"Result 1:\nTitle: Raw\nLink: https://raw.example\nSnippet: raw snippet\n\n"+
			"Result 2:\nTitle: Summed\nLink: https://sum.example\nSnippet: short summary\n\n",
		block)
}

func TestEvaluator_Evaluate(t *testing.T) {
	results := []types.SearchResult{{Title: "Paris", Link: "https://paris.example", Snippet: "Paris is the capital of France"}}

	t.Run("returns parsed verdict", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, userMessageContains("Snippet: Paris is the capital of France"), "main-model").
			Return(`{"sufficient": true, "reasoning": "answered", "additional_queries": []}`, nil).Once()

		verdict := newTestEvaluator(client).Evaluate(context.Background(), "capital of France", results)

		assert.True(t, verdict.Sufficient)
		assert.Equal(t, "answered", verdict.Reasoning)
		assert.Empty(t, verdict.AdditionalQueries)
		client.AssertExpectations(t)
	})

	t.Run("completion error is insufficient", func(t *testing.T) {
		client := &mockLLMClient{}
		client.On("Complete", mock.Anything, mock.Anything, "main-model").Return("", errors.New("quota exceeded")).Once()

		verdict := newTestEvaluator(client).Evaluate(context.Background(), "p", results)

		assert.False(t, verdict.Sufficient)
		assert.Equal(t, "Error evaluating results: quota exceeded", verdict.Reasoning)
		assert.NotNil(t, verdict.AdditionalQueries)
		assert.Empty(t, verdict.AdditionalQueries)
	})
}
