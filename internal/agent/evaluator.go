package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
)

// Evaluator asks the model whether the collected results answer the prompt.
type Evaluator struct {
	client  llm.Client
	model   string
	prompts PromptTemplate
	timeout time.Duration
	logger  *log.Logger
}

// NewEvaluator creates an Evaluator using the main model tier.
func NewEvaluator(client llm.Client, model string, prompts *Prompts, timeout time.Duration) *Evaluator {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Evaluator{
		client:  client,
		model:   model,
		prompts: prompts.Evaluate,
		timeout: timeout,
		logger:  log.New(log.Default().Writer(), "agent/evaluator ", log.LstdFlags),
	}
}

// Evaluate never fails. Unparseable output falls back to a keyword
// heuristic, and a completion error yields an insufficient verdict carrying
// the error text.
func (e *Evaluator) Evaluate(ctx context.Context, prompt string, results []types.SearchResult) types.EvaluationVerdict {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := agentTracer.Start(ctx, "agent.evaluator.evaluate")
	defer span.End()

	promptHash := telemetryFingerprint(prompt)
	span.SetAttributes(
		attribute.String("agent.prompt_hash", promptHash),
		attribute.Int("agent.result_count", len(results)),
	)

	callCtx, cancel := withOptionalTimeout(ctx, e.timeout)
	defer cancel()

	messages := e.prompts.Messages(map[string]string{
		"prompt":  prompt,
		"results": formatResultsForEvaluation(results),
	})
	raw, err := e.client.Complete(callCtx, messages, e.model)
	if err != nil {
		e.logger.Printf("Evaluator: completion failed hash=%s err=%v", promptHash, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion_failed")
		return types.EvaluationVerdict{
			Sufficient:        false,
			Reasoning:         fmt.Sprintf("Error evaluating results: %v", err),
			AdditionalQueries: []string{},
		}
	}

	verdict, parsed := parseVerdict(raw)
	if !parsed {
		e.logger.Printf("Evaluator: response was not JSON, using heuristic hash=%s", promptHash)
		span.AddEvent("agent.evaluator.heuristic_fallback")
	}

	span.SetAttributes(
		attribute.Bool("agent.sufficient", verdict.Sufficient),
		attribute.Int("agent.additional_query_count", len(verdict.AdditionalQueries)),
	)
	e.logger.Printf("Evaluator: completed hash=%s sufficient=%t additional=%d", promptHash, verdict.Sufficient, len(verdict.AdditionalQueries))
	return verdict
}

// parseVerdict decodes the JSON object in raw. When that fails the verdict is
// sufficient only if the text mentions both "sufficient" and "yes".
func parseVerdict(raw string) (types.EvaluationVerdict, bool) {
	var payload struct {
		Sufficient        bool     `json:"sufficient"`
		Reasoning         string   `json:"reasoning"`
		AdditionalQueries []string `json:"additional_queries"`
	}
	if err := extractJSONObject(stripCodeFence(raw), &payload); err == nil {
		return types.EvaluationVerdict{
			Sufficient:        payload.Sufficient,
			Reasoning:         strings.TrimSpace(payload.Reasoning),
			AdditionalQueries: normalizeQueries(payload.AdditionalQueries, 0),
		}, true
	}

	lowered := strings.ToLower(raw)
	return types.EvaluationVerdict{
		Sufficient:        strings.Contains(lowered, "sufficient") && strings.Contains(lowered, "yes"),
		Reasoning:         raw,
		AdditionalQueries: []string{},
	}, false
}

func formatResultsForEvaluation(results []types.SearchResult) string {
	var sb strings.Builder
	for i, result := range results {
		sb.WriteString(fmt.Sprintf("Result %d:\n", i+1))
		sb.WriteString(fmt.Sprintf("Title: %s\n", orNA(result.Title)))
		sb.WriteString(fmt.Sprintf("Link: %s\n", orNA(result.Link)))
		sb.WriteString(fmt.Sprintf("Snippet: %s\n\n", orNA(result.Text())))
	}
	return sb.String()
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
