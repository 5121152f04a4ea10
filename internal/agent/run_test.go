package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

func TestRun_SourcesDeduplicated(t *testing.T) {
	run := newRun("prompt", websearch.ProviderBrave)
	a := types.SearchResult{Title: "A", Link: "https://a.example", Snippet: "alpha"}
	b := types.SearchResult{Title: "B", Link: "https://b.example", Snippet: "bravo"}
	aVariant := types.SearchResult{Title: "A", Link: "https://a.example", Snippet: "alpha, again"}

	run.addStep(types.SearchStep{Query: "q1", Results: []types.SearchResult{a, b}})
	run.addStep(types.SearchStep{Query: "q2", Results: []types.SearchResult{b, aVariant, a}})
	run.addStep(types.SearchStep{Query: "q3"})

	assert.NotEmpty(t, run.ID)
	assert.Len(t, run.Steps(), 3)
	assert.NotNil(t, run.Steps()[2].Results)
	assert.Equal(t, []types.SearchResult{a, b, aVariant}, run.Sources())
	assert.Len(t, run.allResults(), 5)
	assert.Equal(t, 5, run.totalResults())
	assert.False(t, run.anySufficient())

	run.addStep(types.SearchStep{Query: "q4", Sufficient: true})
	assert.True(t, run.anySufficient())
}

func TestRun_IDsAreUnique(t *testing.T) {
	assert.NotEqual(t, newRun("p", "").ID, newRun("p", "").ID)
}
