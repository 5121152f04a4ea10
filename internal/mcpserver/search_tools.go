package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ca-srg/searchagent/internal/metrics"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

const maxAttributeLength = 256

var mcpTracer = otel.Tracer("searchagent/mcpserver")

type agentService interface {
	ProcessPrompt(ctx context.Context, prompt, providerOverride string) *types.AgentResponse
	ProcessPromptSearchOnly(ctx context.Context, prompt, providerOverride string) *types.SearchResultsResponse
	ProcessPromptStream(ctx context.Context, prompt, providerOverride string) <-chan types.Event
}

type searchToolArguments struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
}

// progressFunc reports one progress notification to the calling client.
type progressFunc func(progress float64, message string)

// WebSearchHandler serves the agent tools over MCP.
type WebSearchHandler struct {
	agent            agentService
	recordInvocation func(metrics.Mode)
	metrics          *toolMetrics
	logger           *log.Logger
}

// NewWebSearchHandler creates the tool handler for agent.
func NewWebSearchHandler(agent agentService) *WebSearchHandler {
	return &WebSearchHandler{
		agent:            agent,
		recordInvocation: metrics.RecordInvocation,
		metrics:          newToolMetrics(otel.Meter("searchagent/mcpserver")),
		logger:           log.New(log.Default().Writer(), "mcpserver/tools ", log.LstdFlags),
	}
}

// ToolEntry pairs a tool definition with its handler.
type ToolEntry struct {
	Tool    *mcp.Tool
	Handler mcp.ToolHandler
}

// Tools returns the tool definitions with their handlers.
func (h *WebSearchHandler) Tools() []ToolEntry {
	return []ToolEntry{
		{Tool: agentToolDefinition(), Handler: h.HandleAgentTool},
		{Tool: resultsToolDefinition(), Handler: h.HandleResultsTool},
	}
}

// HandleAgentTool runs the full pipeline. When the client supplied a
// progress token the stream is consumed and each event becomes a progress
// notification.
func (h *WebSearchHandler) HandleAgentTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handle(ctx, req, AgentToolName, func(ctx context.Context, args searchToolArguments, progress progressFunc) (any, bool) {
		if progress != nil {
			resp := collectStream(h.agent.ProcessPromptStream(ctx, args.Prompt, args.Provider), args.Prompt, progress)
			return resp, false
		}
		return h.agent.ProcessPrompt(ctx, args.Prompt, args.Provider), false
	})
}

// HandleResultsTool runs the pipeline without synthesis.
func (h *WebSearchHandler) HandleResultsTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handle(ctx, req, ResultsToolName, func(ctx context.Context, args searchToolArguments, _ progressFunc) (any, bool) {
		resp := h.agent.ProcessPromptSearchOnly(ctx, args.Prompt, args.Provider)
		return resp, resp != nil && resp.Error != ""
	})
}

type toolRunner func(ctx context.Context, args searchToolArguments, progress progressFunc) (response any, isError bool)

func (h *WebSearchHandler) handle(ctx context.Context, req *mcp.CallToolRequest, toolName string, run toolRunner) (*mcp.CallToolResult, error) {
	h.recordInvocation(metrics.ModeMCP)

	ctx, span := mcpTracer.Start(ctx, "mcpserver."+toolName, trace.WithAttributes(
		attribute.String("mcp.tool.name", toolName),
	))
	defer span.End()

	metricAttrs := []attribute.KeyValue{attribute.String("mcp.tool.name", toolName)}
	start := time.Now()
	errType := ""
	defer func() {
		h.metrics.record(ctx, metricAttrs, time.Since(start), errType)
	}()

	if clientIP := getClientIPFromContext(ctx); clientIP != "" {
		span.SetAttributes(attribute.String("mcp.client.ip", clientIP))
	}

	args, err := decodeArguments(req)
	if err != nil {
		errType = "invalid_arguments"
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_arguments")
		return errorResult(err.Error()), nil
	}
	span.SetAttributes(attribute.String("mcp.prompt", truncateForAttribute(args.Prompt)))
	if args.Provider != "" {
		span.SetAttributes(attribute.String("mcp.provider", args.Provider))
		metricAttrs = append(metricAttrs, attribute.String("mcp.provider", args.Provider))
	}

	response, isError := run(ctx, args, progressNotifier(ctx, req))

	payload, err := json.Marshal(response)
	if err != nil {
		errType = "encode_failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode_failed")
		return nil, fmt.Errorf("failed to encode %s result: %w", toolName, err)
	}

	if isError {
		errType = "tool_result_error"
		span.SetStatus(codes.Error, "tool_result_error")
	} else {
		span.SetStatus(codes.Ok, toolName+"_completed")
	}
	metricAttrs = append(metricAttrs, attribute.Bool("mcp.result.is_error", isError))
	h.logger.Printf("Tool: %s completed duration=%s is_error=%t", toolName, time.Since(start).Truncate(time.Millisecond), isError)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: isError,
	}, nil
}

func decodeArguments(req *mcp.CallToolRequest) (searchToolArguments, error) {
	var args searchToolArguments
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args, fmt.Errorf("prompt is required")
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return args, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
	}
	args.Prompt = strings.TrimSpace(args.Prompt)
	if args.Prompt == "" {
		return args, fmt.Errorf("prompt is required")
	}
	if name, ok := websearch.ParseProvider(args.Provider); ok {
		args.Provider = string(name)
	} else {
		args.Provider = ""
	}
	return args, nil
}

func progressNotifier(ctx context.Context, req *mcp.CallToolRequest) progressFunc {
	if req == nil || req.Params == nil || req.Session == nil {
		return nil
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	return func(progress float64, message string) {
		_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      progress,
			Message:       message,
		})
	}
}

// collectStream folds a progress stream back into a batch response.
func collectStream(events <-chan types.Event, prompt string, progress progressFunc) *types.AgentResponse {
	resp := &types.AgentResponse{
		OriginalPrompt: prompt,
		SearchSteps:    []types.SearchStep{},
		Sources:        []types.SearchResult{},
	}
	var report strings.Builder
	count := 0
	for event := range events {
		count++
		switch event.Event {
		case types.EventEvaluation:
			resp.SearchSteps = append(resp.SearchSteps, stepFromEvent(event))
		case types.EventReportChunk:
			if content, ok := event.Data["content"].(string); ok {
				report.WriteString(content)
			}
		case types.EventSources:
			if sources, ok := event.Data["sources"].([]types.SearchResult); ok {
				resp.Sources = sources
			}
		case types.EventError:
			message, _ := event.Data["message"].(string)
			report.Reset()
			report.WriteString(message)
		}
		if message := progressMessage(event); message != "" {
			progress(float64(count), message)
		}
	}
	resp.FinalReport = report.String()
	return resp
}

func stepFromEvent(event types.Event) types.SearchStep {
	step := types.SearchStep{Results: []types.SearchResult{}}
	step.Query, _ = event.Data["query"].(string)
	step.Sufficient, _ = event.Data["sufficient"].(bool)
	step.Reasoning, _ = event.Data["reasoning"].(string)
	if results, ok := event.Data["results"].([]types.SearchResult); ok && results != nil {
		step.Results = results
	}
	return step
}

// progressMessage describes the events worth surfacing; report chunks are
// too fine-grained and return "".
func progressMessage(event types.Event) string {
	switch event.Event {
	case types.EventSearchStart:
		return "Starting search"
	case types.EventDecomposedQueries:
		return "Planned search queries"
	case types.EventSearchQuery:
		return fmt.Sprintf("Searching: %v", event.Data["query"])
	case types.EventSummarizeComplete:
		return fmt.Sprintf("Summarized results for: %v", event.Data["query"])
	case types.EventEvaluation:
		return fmt.Sprintf("Evaluated: %v", event.Data["query"])
	case types.EventRefinement:
		return fmt.Sprintf("Refinement iteration %v", event.Data["iteration"])
	case types.EventSearchComplete:
		return "Search complete"
	case types.EventError:
		return "Search failed"
	default:
		return ""
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}

func truncateForAttribute(value string) string {
	runes := []rune(value)
	if len(runes) <= maxAttributeLength {
		return value
	}
	return string(runes[:maxAttributeLength]) + "..."
}

func searchInputSchema() *jsonschema.Schema {
	providers := make([]string, 0, len(websearch.AllProviders))
	for _, name := range websearch.AllProviders {
		providers = append(providers, string(name))
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"prompt": {
				Type:        "string",
				Description: "The question to research on the web",
			},
			"provider": {
				Type: "string",
				Description: fmt.Sprintf("Search provider override (%s). Unknown values are ignored and the server default is used",
					strings.Join(providers, ", ")),
			},
		},
		Required: []string{"prompt"},
	}
}

func agentToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name: AgentToolName,
		Description: "Research a question on the web: decomposes it into search queries, " +
			"summarizes and evaluates the results, refines the search when needed and returns a cited report.",
		InputSchema: searchInputSchema(),
	}
}

func resultsToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name: ResultsToolName,
		Description: "Run the same web research as " + AgentToolName + " but return the search steps " +
			"and summarized sources without writing a report.",
		InputSchema: searchInputSchema(),
	}
}
