package agent

import (
	"context"
	"fmt"
	"iter"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

const (
	defaultMaxIterations      = 3
	defaultMaxFollowUpQueries = 2
	defaultResultsPerQuery    = 5
	streamBufferSize          = 32
)

type searchGateway interface {
	Search(ctx context.Context, query string, provider websearch.ProviderName, n int) []types.SearchResult
	Resolve(override string) websearch.ProviderName
}

type queryDecomposer interface {
	Decompose(ctx context.Context, prompt string) []string
}

type resultSummarizer interface {
	SummarizeAll(ctx context.Context, prompt, query string, results []types.SearchResult, progress func(current, total int)) []types.SearchResult
}

type resultEvaluator interface {
	Evaluate(ctx context.Context, prompt string, results []types.SearchResult) types.EvaluationVerdict
}

type reportGenerator interface {
	Generate(ctx context.Context, prompt string, steps []types.SearchStep) string
	GenerateStream(ctx context.Context, prompt string, steps []types.SearchStep) iter.Seq2[string, error]
}

// ServiceConfig bounds the refinement loop.
type ServiceConfig struct {
	MaxIterations      int
	MaxFollowUpQueries int
	ResultsPerQuery    int
}

// Service runs the search agent pipeline: decompose, search, summarize,
// evaluate, refine and report.
type Service struct {
	gateway    searchGateway
	decomposer queryDecomposer
	summarizer resultSummarizer
	evaluator  resultEvaluator
	reporter   reportGenerator
	config     ServiceConfig
	logger     *log.Logger
}

// NewService wires the pipeline components from configuration.
func NewService(cfg *types.Config, client llm.Client, gateway *websearch.Gateway, prompts *Prompts) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("search gateway cannot be nil")
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	mainModel, lowModel := cfg.ModelsFor(cfg.LLMProvider)

	return newService(
		gateway,
		NewDecomposer(client, mainModel, prompts, cfg.LLMTimeout),
		NewSummarizer(client, lowModel, prompts, cfg.LLMTimeout, cfg.SummarizeConcurrency),
		NewEvaluator(client, mainModel, prompts, cfg.LLMTimeout),
		NewReporter(client, mainModel, prompts, cfg.LLMTimeout),
		ServiceConfig{
			MaxIterations:      cfg.AgentMaxIterations,
			MaxFollowUpQueries: cfg.AgentMaxFollowUpQueries,
			ResultsPerQuery:    cfg.SearchResultsPerQuery,
		},
	), nil
}

func newService(
	gateway searchGateway,
	decomposer queryDecomposer,
	summarizer resultSummarizer,
	evaluator resultEvaluator,
	reporter reportGenerator,
	cfg ServiceConfig,
) *Service {
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxFollowUpQueries < 0 {
		cfg.MaxFollowUpQueries = defaultMaxFollowUpQueries
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = defaultResultsPerQuery
	}
	return &Service{
		gateway:    gateway,
		decomposer: decomposer,
		summarizer: summarizer,
		evaluator:  evaluator,
		reporter:   reporter,
		config:     cfg,
		logger:     log.New(log.Default().Writer(), "agent/service ", log.LstdFlags),
	}
}

// emitter publishes a progress event. It reports false once the consumer
// is gone.
type emitter func(event string, data map[string]any) bool

func discardEvents(string, map[string]any) bool { return true }

// ProcessPrompt runs the full pipeline and returns the report. Failures are
// reported in FinalReport rather than returned.
func (s *Service) ProcessPrompt(ctx context.Context, prompt, providerOverride string) (resp *types.AgentResponse) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := newRun(prompt, s.gateway.Resolve(providerOverride))

	ctx, span := agentTracer.Start(ctx, "agent.service.process_prompt", trace.WithAttributes(
		attribute.String("agent.run_id", run.ID),
		attribute.String("agent.prompt_hash", telemetryFingerprint(prompt)),
		attribute.String("agent.provider", string(run.Provider)),
	))
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			s.fail(span, run, err)
			resp = failedAgentResponse(prompt, err)
		}
	}()

	if err := s.collect(ctx, run, discardEvents); err != nil {
		s.fail(span, run, err)
		return failedAgentResponse(prompt, err)
	}

	report := s.reporter.Generate(ctx, prompt, run.Steps())
	s.finish(span, run)

	return &types.AgentResponse{
		OriginalPrompt: prompt,
		SearchSteps:    run.Steps(),
		FinalReport:    report,
		Sources:        run.Sources(),
	}
}

// ProcessPromptSearchOnly runs the pipeline without synthesis.
func (s *Service) ProcessPromptSearchOnly(ctx context.Context, prompt, providerOverride string) (resp *types.SearchResultsResponse) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := newRun(prompt, s.gateway.Resolve(providerOverride))

	ctx, span := agentTracer.Start(ctx, "agent.service.process_prompt_search_only", trace.WithAttributes(
		attribute.String("agent.run_id", run.ID),
		attribute.String("agent.prompt_hash", telemetryFingerprint(prompt)),
		attribute.String("agent.provider", string(run.Provider)),
	))
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			s.fail(span, run, err)
			resp = failedSearchResultsResponse(prompt, err)
		}
	}()

	if err := s.collect(ctx, run, discardEvents); err != nil {
		s.fail(span, run, err)
		return failedSearchResultsResponse(prompt, err)
	}
	s.finish(span, run)

	return &types.SearchResultsResponse{
		OriginalPrompt: prompt,
		SearchSteps:    run.Steps(),
		Sources:        run.Sources(),
	}
}

// ProcessPromptStream runs the pipeline in a goroutine and returns its
// events. The stream opens with search_start and closes with exactly one
// search_complete or error event, after which the channel is closed.
// Cancelling ctx stops further network calls.
func (s *Service) ProcessPromptStream(ctx context.Context, prompt, providerOverride string) <-chan types.Event {
	if ctx == nil {
		ctx = context.Background()
	}
	events := make(chan types.Event, streamBufferSize)
	go s.stream(ctx, prompt, providerOverride, events)
	return events
}

func (s *Service) stream(ctx context.Context, prompt, providerOverride string, events chan<- types.Event) {
	defer close(events)

	send := func(event string, data map[string]any) bool {
		if data == nil {
			data = map[string]any{}
		}
		ev := types.Event{Event: event, Data: data}
		select {
		case events <- ev:
			return true
		default:
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	run := newRun(prompt, s.gateway.Resolve(providerOverride))
	ctx, span := agentTracer.Start(ctx, "agent.service.process_prompt_stream", trace.WithAttributes(
		attribute.String("agent.run_id", run.ID),
		attribute.String("agent.prompt_hash", telemetryFingerprint(prompt)),
		attribute.String("agent.provider", string(run.Provider)),
	))
	defer span.End()

	send(types.EventSearchStart, map[string]any{"prompt": prompt, "run_id": run.ID})

	if message := s.streamPipeline(ctx, span, run, send); message != "" {
		send(types.EventError, map[string]any{"message": message})
		return
	}

	send(types.EventSources, map[string]any{"sources": run.Sources()})
	send(types.EventSearchComplete, map[string]any{})
	s.finish(span, run)
}

// streamPipeline returns the error event message, or "" on success.
func (s *Service) streamPipeline(ctx context.Context, span trace.Span, run *Run, send emitter) (message string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			s.fail(span, run, err)
			message = processingErrorMessage(err)
		}
	}()

	if err := s.collect(ctx, run, send); err != nil {
		s.fail(span, run, err)
		return processingErrorMessage(err)
	}

	for chunk, err := range s.reporter.GenerateStream(ctx, run.Prompt, run.Steps()) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "report_failed")
			s.logger.Printf("Service: report stream failed run=%s err=%v", run.ID, err)
			return ReportFailureMessage(err)
		}
		if !send(types.EventReportChunk, map[string]any{"content": chunk}) {
			s.fail(span, run, ctx.Err())
			return processingErrorMessage(ctx.Err())
		}
	}
	return ""
}

// collect runs the initial batch and then the refinement loop, recording
// every executed query on run.
func (s *Service) collect(ctx context.Context, run *Run, emit emitter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	queries := s.decomposer.Decompose(ctx, run.Prompt)
	if len(queries) == 0 {
		queries = []string{run.Prompt}
	}
	emit(types.EventDecomposedQueries, map[string]any{"queries": queries})
	s.logger.Printf("Service: decomposed run=%s queries=%d", run.ID, len(queries))

	for _, query := range queries {
		step, err := s.executeQuery(ctx, run, query, emit)
		if err != nil {
			return err
		}
		if step.Sufficient {
			break
		}
	}

	for run.iteration < s.config.MaxIterations && !run.anySufficient() {
		if err := ctx.Err(); err != nil {
			return err
		}

		verdict := s.evaluator.Evaluate(ctx, run.Prompt, run.allResults())
		if verdict.Sufficient {
			s.logger.Printf("Service: combined results sufficient run=%s iteration=%d", run.ID, run.iteration)
			break
		}

		followUps := s.followUpQueries(run, verdict.AdditionalQueries)
		if len(followUps) == 0 {
			s.logger.Printf("Service: no follow-up queries run=%s iteration=%d", run.ID, run.iteration)
			break
		}

		run.iteration++
		emit(types.EventRefinement, map[string]any{"iteration": run.iteration, "queries": followUps})
		s.logger.Printf("Service: refining run=%s iteration=%d queries=%d", run.ID, run.iteration, len(followUps))

		for _, query := range followUps {
			step, err := s.executeQuery(ctx, run, query, emit)
			if err != nil {
				return err
			}
			if step.Sufficient {
				break
			}
		}
	}
	return nil
}

// executeQuery runs search, summarization and evaluation for one query.
func (s *Service) executeQuery(ctx context.Context, run *Run, query string, emit emitter) (types.SearchStep, error) {
	if err := ctx.Err(); err != nil {
		return types.SearchStep{}, err
	}

	emit(types.EventSearchQuery, map[string]any{"query": query})
	results := s.gateway.Search(ctx, query, run.Provider, s.config.ResultsPerQuery)
	emit(types.EventSearchResults, map[string]any{"query": query, "count": len(results)})

	if len(results) > 0 {
		if err := ctx.Err(); err != nil {
			return types.SearchStep{}, err
		}
		results = s.summarizer.SummarizeAll(ctx, run.Prompt, query, results, func(current, total int) {
			emit(types.EventSummarizeProgress, map[string]any{"query": query, "current": current, "total": total})
		})
		emit(types.EventSummarizeComplete, map[string]any{"query": query, "count": len(results)})
	}

	if err := ctx.Err(); err != nil {
		return types.SearchStep{}, err
	}
	verdict := s.evaluator.Evaluate(ctx, run.Prompt, results)

	step := types.SearchStep{
		Query:      query,
		Results:    results,
		Sufficient: verdict.Sufficient,
		Reasoning:  verdict.Reasoning,
	}
	run.addStep(step)

	emit(types.EventEvaluation, map[string]any{
		"query":      query,
		"sufficient": step.Sufficient,
		"reasoning":  step.Reasoning,
		"results":    step.Results,
	})
	return step, nil
}

// followUpQueries drops queries already executed in this run and applies
// the per-iteration cap.
func (s *Service) followUpQueries(run *Run, suggested []string) []string {
	if s.config.MaxFollowUpQueries == 0 {
		return nil
	}
	executed := make(map[string]struct{}, len(run.steps))
	for _, step := range run.steps {
		executed[strings.ToLower(strings.TrimSpace(step.Query))] = struct{}{}
	}

	var fresh []string
	for _, query := range normalizeQueries(suggested, 0) {
		if _, done := executed[strings.ToLower(query)]; done {
			continue
		}
		fresh = append(fresh, query)
		if len(fresh) >= s.config.MaxFollowUpQueries {
			break
		}
	}
	return fresh
}

func (s *Service) finish(span trace.Span, run *Run) {
	span.SetAttributes(
		attribute.Int("agent.step_count", len(run.steps)),
		attribute.Int("agent.source_count", len(run.sources)),
		attribute.Int("agent.iterations", run.iteration),
		attribute.Bool("agent.sufficient", run.anySufficient()),
	)
	s.logger.Printf("Service: completed run=%s steps=%d sources=%d iterations=%d", run.ID, len(run.steps), len(run.sources), run.iteration)
}

func (s *Service) fail(span trace.Span, run *Run, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "processing_failed")
	s.logger.Printf("Service: processing failed run=%s err=%v", run.ID, err)
}

func processingErrorMessage(err error) string {
	return fmt.Sprintf("Error processing prompt: %v", err)
}

func failedAgentResponse(prompt string, err error) *types.AgentResponse {
	return &types.AgentResponse{
		OriginalPrompt: prompt,
		SearchSteps:    []types.SearchStep{},
		FinalReport:    processingErrorMessage(err),
		Sources:        []types.SearchResult{},
	}
}

func failedSearchResultsResponse(prompt string, err error) *types.SearchResultsResponse {
	return &types.SearchResultsResponse{
		OriginalPrompt: prompt,
		SearchSteps:    []types.SearchStep{},
		Sources:        []types.SearchResult{},
		Error:          processingErrorMessage(err),
	}
}
