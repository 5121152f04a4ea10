package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
)

const defaultSummarizeConcurrency = 4

// Summarizer condenses search results into prompt-relevant extracts using
// the low-tier model.
type Summarizer struct {
	client      llm.Client
	model       string
	prompts     PromptTemplate
	timeout     time.Duration
	concurrency int
	logger      *log.Logger
}

// NewSummarizer creates a Summarizer. concurrency bounds the number of
// in-flight completions in SummarizeAll.
func NewSummarizer(client llm.Client, model string, prompts *Prompts, timeout time.Duration, concurrency int) *Summarizer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if concurrency <= 0 {
		concurrency = defaultSummarizeConcurrency
	}
	return &Summarizer{
		client:      client,
		model:       model,
		prompts:     prompts.Summarize,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      log.New(log.Default().Writer(), "agent/summarizer ", log.LstdFlags),
	}
}

// Summarize returns result with Summary set, or result unchanged when the
// completion fails or comes back empty.
func (s *Summarizer) Summarize(ctx context.Context, prompt, query string, result types.SearchResult) types.SearchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := agentTracer.Start(ctx, "agent.summarizer.summarize")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.query_hash", telemetryFingerprint(query)),
		attribute.String("agent.link_hash", telemetryFingerprint(result.Link)),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return result
	}

	callCtx, cancel := withOptionalTimeout(ctx, s.timeout)
	defer cancel()

	messages := s.prompts.Messages(map[string]string{
		"prompt":  prompt,
		"query":   query,
		"title":   result.Title,
		"link":    result.Link,
		"snippet": result.Snippet,
	})
	raw, err := s.client.Complete(callCtx, messages, s.model)
	if err != nil {
		s.logger.Printf("Summarizer: completion failed hash=%s err=%v", telemetryFingerprint(result.Link), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion_failed")
		return result
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		span.SetAttributes(attribute.Bool("agent.summary_empty", true))
		return result
	}

	summarized := result
	summarized.Summary = summary
	summarized.OriginalSnippet = result.Snippet
	return summarized
}

// SummarizeAll summarizes results concurrently and returns them in input
// order. progress, when set, is called once per finished result with the
// number finished so far; calls are serialized.
func (s *Summarizer) SummarizeAll(ctx context.Context, prompt, query string, results []types.SearchResult, progress func(current, total int)) []types.SearchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([]types.SearchResult, len(results))
	if len(results) == 0 {
		return out
	}

	ctx, span := agentTracer.Start(ctx, "agent.summarizer.summarize_all")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.query_hash", telemetryFingerprint(query)),
		attribute.Int("agent.result_count", len(results)),
		attribute.Int("agent.concurrency", s.concurrency),
	)

	var (
		mu       sync.Mutex
		finished int
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, result := range results {
		g.Go(func() error {
			out[i] = s.summarizeRecovered(ctx, prompt, query, result)

			mu.Lock()
			defer mu.Unlock()
			finished++
			if progress != nil {
				progress(finished, len(results))
			}
			return nil
		})
	}
	_ = g.Wait()

	summarized := 0
	for _, r := range out {
		if r.Summarized() {
			summarized++
		}
	}
	span.SetAttributes(attribute.Int("agent.summarized_count", summarized))
	s.logger.Printf("Summarizer: completed hash=%s results=%d summarized=%d", telemetryFingerprint(query), len(results), summarized)
	return out
}

// summarizeRecovered keeps a panicking completion from escaping the
// worker goroutine.
func (s *Summarizer) summarizeRecovered(ctx context.Context, prompt, query string, result types.SearchResult) (out types.SearchResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Printf("Summarizer: recovered panic hash=%s panic=%v", telemetryFingerprint(result.Link), recovered)
			out = result
		}
	}()
	return s.Summarize(ctx, prompt, query, result)
}
