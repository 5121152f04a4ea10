package agent

import (
	"context"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
)

const (
	// NoResultsReport is returned instead of a report when no step has results.
	NoResultsReport = "No search results were found for your question. Please try rephrasing it or using a different search provider."
	// ReportTooLargeMessage replaces the report when the evidence exceeds the model context.
	ReportTooLargeMessage = "The search results are too large to generate a report. Please try a more specific question."
)

// Reporter synthesizes the final cited report from every search step.
type Reporter struct {
	client  llm.Client
	model   string
	prompts PromptTemplate
	timeout time.Duration
	logger  *log.Logger
}

// NewReporter creates a Reporter using the main model tier.
func NewReporter(client llm.Client, model string, prompts *Prompts, timeout time.Duration) *Reporter {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Reporter{
		client:  client,
		model:   model,
		prompts: prompts.Report,
		timeout: timeout,
		logger:  log.New(log.Default().Writer(), "agent/reporter ", log.LstdFlags),
	}
}

// ReportFailureMessage is the user-visible text for a failed synthesis.
func ReportFailureMessage(err error) string {
	if llm.IsContextLengthError(err) {
		return ReportTooLargeMessage
	}
	return fmt.Sprintf("Error generating report: %v", err)
}

// Generate returns the report, NoResultsReport when there is no evidence, or
// the failure text when the completion fails.
func (r *Reporter) Generate(ctx context.Context, prompt string, steps []types.SearchStep) string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := agentTracer.Start(ctx, "agent.reporter.generate")
	defer span.End()

	promptHash := telemetryFingerprint(prompt)
	total := countResults(steps)
	span.SetAttributes(
		attribute.String("agent.prompt_hash", promptHash),
		attribute.Int("agent.step_count", len(steps)),
		attribute.Int("agent.result_count", total),
	)

	if total == 0 {
		span.SetAttributes(attribute.Bool("agent.no_results", true))
		r.logger.Printf("Reporter: no evidence, skipping synthesis hash=%s", promptHash)
		return NoResultsReport
	}

	callCtx, cancel := withOptionalTimeout(ctx, r.timeout)
	defer cancel()

	report, err := r.client.Complete(callCtx, r.messages(prompt, steps), r.model)
	if err != nil {
		r.logger.Printf("Reporter: completion failed hash=%s err=%v", promptHash, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reportFailureReason(err))
		return ReportFailureMessage(err)
	}

	span.SetAttributes(attribute.Int("agent.report_length", len(report)))
	r.logger.Printf("Reporter: completed hash=%s length=%d", promptHash, len(report))
	return report
}

// GenerateStream yields report chunks. With no evidence it yields
// NoResultsReport once. A failure ends the sequence with a non-nil error;
// chunks yielded before it stand.
func (r *Reporter) GenerateStream(ctx context.Context, prompt string, steps []types.SearchStep) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := agentTracer.Start(ctx, "agent.reporter.generate_stream")
		defer span.End()

		promptHash := telemetryFingerprint(prompt)
		total := countResults(steps)
		span.SetAttributes(
			attribute.String("agent.prompt_hash", promptHash),
			attribute.Int("agent.step_count", len(steps)),
			attribute.Int("agent.result_count", total),
		)

		if total == 0 {
			span.SetAttributes(attribute.Bool("agent.no_results", true))
			r.logger.Printf("Reporter: no evidence, skipping synthesis hash=%s", promptHash)
			yield(NoResultsReport, nil)
			return
		}

		callCtx, cancel := withOptionalTimeout(ctx, r.timeout)
		defer cancel()

		chunks := 0
		for chunk, err := range r.client.CompleteStream(callCtx, r.messages(prompt, steps), r.model) {
			if err != nil {
				r.logger.Printf("Reporter: stream failed hash=%s chunks=%d err=%v", promptHash, chunks, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, reportFailureReason(err))
				yield("", err)
				return
			}
			if chunk == "" {
				continue
			}
			chunks++
			if !yield(chunk, nil) {
				span.AddEvent("agent.reporter.consumer_stopped")
				return
			}
		}

		span.SetAttributes(attribute.Int("agent.chunk_count", chunks))
		r.logger.Printf("Reporter: stream completed hash=%s chunks=%d", promptHash, chunks)
	}
}

func (r *Reporter) messages(prompt string, steps []types.SearchStep) []llm.ChatMessage {
	return r.prompts.Messages(map[string]string{
		"prompt":  prompt,
		"results": formatStepsForReport(steps),
	})
}

func formatStepsForReport(steps []types.SearchStep) string {
	var sb strings.Builder
	for i, step := range steps {
		sb.WriteString(fmt.Sprintf("Search Query %d: %s\n", i+1, orNA(step.Query)))
		for j, result := range step.Results {
			sb.WriteString(fmt.Sprintf("  Result %d:\n", j+1))
			sb.WriteString(fmt.Sprintf("  Title: %s\n", orNA(result.Title)))
			sb.WriteString(fmt.Sprintf("  Link: %s\n", orNA(result.Link)))
			sb.WriteString(fmt.Sprintf("  Snippet: %s\n\n", orNA(result.Text())))
		}
	}
	return sb.String()
}

func countResults(steps []types.SearchStep) int {
	total := 0
	for _, step := range steps {
		total += len(step.Results)
	}
	return total
}

func reportFailureReason(err error) string {
	if llm.IsContextLengthError(err) {
		return "context_length_exceeded"
	}
	return "completion_failed"
}
