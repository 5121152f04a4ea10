package types

// SearchResult is one web search hit. After summarization Summary holds the
// extract and OriginalSnippet keeps the provider text; an unsummarized result
// leaves both empty.
type SearchResult struct {
	Title           string `json:"title"`
	Link            string `json:"link"`
	Snippet         string `json:"snippet"`
	Summary         string `json:"summary,omitempty"`
	OriginalSnippet string `json:"original_snippet,omitempty"`
}

// Text returns the summary when present, otherwise the snippet.
func (r SearchResult) Text() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Snippet
}

// Summarized reports whether a summary was attached.
func (r SearchResult) Summarized() bool {
	return r.Summary != ""
}

// SearchStep records one executed query and its evaluation.
type SearchStep struct {
	Query      string         `json:"query"`
	Results    []SearchResult `json:"results"`
	Sufficient bool           `json:"sufficient"`
	Reasoning  string         `json:"reasoning"`
}

// EvaluationVerdict is the evaluator's judgement over a set of results.
type EvaluationVerdict struct {
	Sufficient        bool     `json:"sufficient"`
	Reasoning         string   `json:"reasoning"`
	AdditionalQueries []string `json:"additional_queries"`
}

// AgentResponse is the batch-mode result of one prompt.
type AgentResponse struct {
	OriginalPrompt string         `json:"original_prompt"`
	SearchSteps    []SearchStep   `json:"search_steps"`
	FinalReport    string         `json:"final_report"`
	Sources        []SearchResult `json:"sources"`
}

// SearchResultsResponse is returned when the caller synthesizes its own
// report. Error is set only when processing failed.
type SearchResultsResponse struct {
	OriginalPrompt string         `json:"original_prompt"`
	SearchSteps    []SearchStep   `json:"search_steps"`
	Sources        []SearchResult `json:"sources"`
	Error          string         `json:"error,omitempty"`
}

// Event is one line of the NDJSON progress stream.
type Event struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Stream event kinds
const (
	EventSearchStart       = "search_start"
	EventDecomposedQueries = "decomposed_queries"
	EventSearchQuery       = "search_query"
	EventSearchResults     = "search_results"
	EventSummarizeProgress = "summarize_progress"
	EventSummarizeComplete = "summarize_complete"
	EventEvaluation        = "evaluation"
	EventRefinement        = "refinement"
	EventReportChunk       = "report_chunk"
	EventSources           = "sources"
	EventSearchComplete    = "search_complete"
	EventError             = "error"
)

// IsTerminal reports whether the event closes a stream.
func (e Event) IsTerminal() bool {
	return e.Event == EventSearchComplete || e.Event == EventError
}
