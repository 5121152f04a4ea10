package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchagent/internal/metrics"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

var (
	searchStream      bool
	searchResultsOnly bool
	searchProvider    string
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search [prompt]",
	Short: "Run the search agent for a single prompt",
	Long: `
Run the search agent once and print the result.

By default the full agent runs: the prompt is decomposed into queries, results
are summarized and evaluated, the search is refined when needed, and a cited
report is printed. --results-only stops before the report. --stream prints
progress as it happens.

Examples:
  searchagent search "What changed in Go 1.26?"
  searchagent search --provider brave "kubernetes gateway api status"
  searchagent search --stream --json "rust async runtimes compared"
  searchagent search --results-only "latest postgres release"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchStream, "stream", false, "Print progress events while the agent runs")
	searchCmd.Flags().BoolVar(&searchResultsOnly, "results-only", false, "Return summarized search results without a report")
	searchCmd.Flags().StringVarP(&searchProvider, "provider", "p", "", "Search provider for this run (duckduckgo, google, searxng, tavily, serper, brave)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print raw JSON (NDJSON with --stream)")
	searchCmd.MarkFlagsMutuallyExclusive("stream", "results-only")
}

func runSearch(cmd *cobra.Command, args []string) error {
	prompt, err := promptFromArgs(args)
	if err != nil {
		return err
	}
	provider := resolveProviderFlag(searchProvider)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	switch {
	case searchStream:
		metrics.RecordInvocation(metrics.ModeStream)
		events := rt.service.ProcessPromptStream(ctx, prompt, provider)
		if searchJSON {
			return printEventsJSON(out, events)
		}
		return printEvents(out, events)
	case searchResultsOnly:
		metrics.RecordInvocation(metrics.ModeSearchOnly)
		resp := rt.service.ProcessPromptSearchOnly(ctx, prompt, provider)
		if searchJSON {
			if err := printJSON(out, resp); err != nil {
				return err
			}
		} else {
			printSearchResults(out, resp)
		}
		if resp.Error != "" {
			return fmt.Errorf("search failed: %s", resp.Error)
		}
		return nil
	default:
		metrics.RecordInvocation(metrics.ModeBatch)
		resp := rt.service.ProcessPrompt(ctx, prompt, provider)
		if searchJSON {
			return printJSON(out, resp)
		}
		printAgentResponse(out, resp)
		return nil
	}
}

// resolveProviderFlag normalizes --provider. Unknown names fall back to the
// configured provider, the same as an unrecognized X-Search-Provider header.
func resolveProviderFlag(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	name, ok := websearch.ParseProvider(raw)
	if !ok {
		log.Printf("Warning: unknown search provider %q, using the configured provider", raw)
		return ""
	}
	return string(name)
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

func printAgentResponse(w io.Writer, resp *types.AgentResponse) {
	_, _ = fmt.Fprintf(w, "%s\n", strings.TrimSpace(resp.FinalReport))
	printSteps(w, resp.SearchSteps)
	printSources(w, resp.Sources)
}

func printSearchResults(w io.Writer, resp *types.SearchResultsResponse) {
	if resp.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", resp.Error)
	}
	for _, step := range resp.SearchSteps {
		_, _ = fmt.Fprintf(w, "\n## %s\n", step.Query)
		for i, result := range step.Results {
			_, _ = fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, result.Title, result.Link)
			if text := strings.TrimSpace(result.Text()); text != "" {
				_, _ = fmt.Fprintf(w, "   %s\n", text)
			}
		}
	}
	printSources(w, resp.Sources)
}

func printSteps(w io.Writer, steps []types.SearchStep) {
	if len(steps) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n=== Search steps (%d) ===\n", len(steps))
	for i, step := range steps {
		verdict := "insufficient"
		if step.Sufficient {
			verdict = "sufficient"
		}
		_, _ = fmt.Fprintf(w, "%d. %s [%d results, %s]\n", i+1, step.Query, len(step.Results), verdict)
	}
}

func printSources(w io.Writer, sources []types.SearchResult) {
	if len(sources) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n=== Sources (%d) ===\n", len(sources))
	for i, source := range sources {
		_, _ = fmt.Fprintf(w, "[%d] %s - %s\n", i+1, source.Title, source.Link)
	}
}

// printEventsJSON writes one JSON object per line. The channel is always
// drained so the producer can finish.
func printEventsJSON(w io.Writer, events <-chan types.Event) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	var writeErr error
	var streamErr error
	for event := range events {
		if writeErr == nil {
			writeErr = encoder.Encode(event)
		}
		if event.Event == types.EventError {
			streamErr = eventError(event)
		}
	}
	if writeErr != nil {
		return writeErr
	}
	return streamErr
}

// printEvents renders progress for a terminal. Report chunks are written as
// they arrive.
func printEvents(w io.Writer, events <-chan types.Event) error {
	var streamErr error
	inReport := false
	for event := range events {
		data := event.Data
		switch event.Event {
		case types.EventSearchStart:
			_, _ = fmt.Fprintf(w, "Searching: %v\n", data["prompt"])
		case types.EventDecomposedQueries:
			_, _ = fmt.Fprintf(w, "Queries: %s\n", joinAny(data["queries"]))
		case types.EventSearchQuery:
			_, _ = fmt.Fprintf(w, "-> %v\n", data["query"])
		case types.EventSearchResults:
			_, _ = fmt.Fprintf(w, "   %v results\n", data["count"])
		case types.EventSummarizeComplete:
			_, _ = fmt.Fprintf(w, "   summarized %v\n", data["count"])
		case types.EventEvaluation:
			_, _ = fmt.Fprintf(w, "   sufficient=%v %v\n", data["sufficient"], data["reasoning"])
		case types.EventRefinement:
			_, _ = fmt.Fprintf(w, "Refining (iteration %v): %s\n", data["iteration"], joinAny(data["queries"]))
		case types.EventReportChunk:
			if !inReport {
				_, _ = fmt.Fprintln(w)
				inReport = true
			}
			_, _ = fmt.Fprintf(w, "%v", data["content"])
		case types.EventSources:
			if sources, ok := data["sources"].([]types.SearchResult); ok {
				printSources(w, sources)
			}
		case types.EventError:
			streamErr = eventError(event)
		}
	}
	return streamErr
}

func eventError(event types.Event) error {
	return fmt.Errorf("search failed: %v", event.Data["message"])
}

func joinAny(value any) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, " | ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
