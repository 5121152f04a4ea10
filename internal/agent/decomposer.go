package agent

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ca-srg/searchagent/internal/llm"
)

// maxDecomposedQueries caps the initial batch.
const maxDecomposedQueries = 5

var (
	numberedMarker = regexp.MustCompile(`^\d+[.)]`)
	leadIns        = []string{"Here", "#", "Search", "Query"}
)

// Decomposer turns a prompt into an initial batch of search queries.
type Decomposer struct {
	client  llm.Client
	model   string
	prompts PromptTemplate
	timeout time.Duration
	logger  *log.Logger
}

// NewDecomposer creates a Decomposer using the main model tier.
func NewDecomposer(client llm.Client, model string, prompts *Prompts, timeout time.Duration) *Decomposer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Decomposer{
		client:  client,
		model:   model,
		prompts: prompts.Decompose,
		timeout: timeout,
		logger:  log.New(log.Default().Writer(), "agent/decomposer ", log.LstdFlags),
	}
}

// Decompose never fails: a completion error yields the prompt itself as the
// only query.
func (d *Decomposer) Decompose(ctx context.Context, prompt string) []string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := agentTracer.Start(ctx, "agent.decomposer.decompose")
	defer span.End()

	promptHash := telemetryFingerprint(prompt)
	span.SetAttributes(attribute.String("agent.prompt_hash", promptHash))

	callCtx, cancel := withOptionalTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.client.Complete(callCtx, d.prompts.Messages(map[string]string{"prompt": prompt}), d.model)
	if err != nil {
		d.logger.Printf("Decomposer: completion failed hash=%s err=%v", promptHash, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion_failed")
		return []string{prompt}
	}

	queries := parseQueries(raw)
	if len(queries) == 0 {
		d.logger.Printf("Decomposer: no queries parsed hash=%s", promptHash)
		queries = []string{prompt}
	}

	span.SetAttributes(attribute.Int("agent.query_count", len(queries)))
	d.logger.Printf("Decomposer: completed hash=%s queries=%d", promptHash, len(queries))
	return queries
}

// parseQueries applies the extraction ladder: JSON array, list lines, then
// the whole response as one query.
func parseQueries(raw string) []string {
	cleaned := stripCodeFence(raw)

	if values, ok := extractJSONArray(cleaned); ok {
		return normalizeQueries(values, maxDecomposedQueries)
	}

	if queries := normalizeQueries(parseQueryLines(cleaned), maxDecomposedQueries); len(queries) > 0 {
		return queries
	}

	return normalizeQueries([]string{cleaned}, maxDecomposedQueries)
}

func parseQueryLines(content string) []string {
	var queries []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || numberedMarker.MatchString(line) {
			if _, rest, found := strings.Cut(line, " "); found {
				line = rest
			}
			queries = append(queries, strings.TrimSpace(line))
			continue
		}

		if hasLeadIn(line) {
			continue
		}
		queries = append(queries, line)
	}
	return queries
}

func hasLeadIn(line string) bool {
	for _, prefix := range leadIns {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
