package agent

import (
	"github.com/google/uuid"

	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

// Run is the state of one prompt's processing. It is owned by a single
// goroutine and discarded when the response or stream completes.
type Run struct {
	ID       string
	Prompt   string
	Provider websearch.ProviderName

	steps     []types.SearchStep
	iteration int
	sources   []types.SearchResult
	seen      map[types.SearchResult]struct{}
}

func newRun(prompt string, provider websearch.ProviderName) *Run {
	return &Run{
		ID:       uuid.NewString(),
		Prompt:   prompt,
		Provider: provider,
		steps:    []types.SearchStep{},
		sources:  []types.SearchResult{},
		seen:     make(map[types.SearchResult]struct{}),
	}
}

// addStep appends step and records its results as sources. Results equal
// in every field to an earlier source are skipped.
func (r *Run) addStep(step types.SearchStep) {
	if step.Results == nil {
		step.Results = []types.SearchResult{}
	}
	r.steps = append(r.steps, step)
	for _, result := range step.Results {
		if _, dup := r.seen[result]; dup {
			continue
		}
		r.seen[result] = struct{}{}
		r.sources = append(r.sources, result)
	}
}

// Steps returns the executed steps in order.
func (r *Run) Steps() []types.SearchStep {
	return r.steps
}

// Sources returns the de-duplicated results in first-seen order.
func (r *Run) Sources() []types.SearchResult {
	return r.sources
}

// allResults flattens every step's results, duplicates included.
func (r *Run) allResults() []types.SearchResult {
	results := make([]types.SearchResult, 0, r.totalResults())
	for _, step := range r.steps {
		results = append(results, step.Results...)
	}
	return results
}

func (r *Run) totalResults() int {
	return countResults(r.steps)
}

func (r *Run) anySufficient() bool {
	for _, step := range r.steps {
		if step.Sufficient {
			return true
		}
	}
	return false
}
