package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	models geminiModels
	logger *log.Logger
}

// NewGeminiClient creates a Gemini API client with the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &LLMError{Type: ErrorTypeAuth, Message: "missing Gemini API key"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiClientWithModels(client.Models), nil
}

func newGeminiClientWithModels(models geminiModels) *GeminiClient {
	return &GeminiClient{
		models: models,
		logger: log.New(log.Default().Writer(), "llm/gemini ", log.LstdFlags),
	}
}

func geminiContents(messages []ChatMessage) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Complete generates one completion.
func (c *GeminiClient) Complete(ctx context.Context, messages []ChatMessage, model string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := llmTracer.Start(ctx, "llm.gemini.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	)

	if err := validateMessages(messages, model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_request")
		return "", err
	}

	contents, config := geminiContents(messages)
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		c.logger.Printf("GeminiClient: generate failed model=%s err=%v", model, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate_failed")
		return "", classifyGeminiError(err)
	}

	text := geminiText(resp)
	if text == "" {
		err := &LLMError{Type: ErrorTypeInvalidResponse, Message: "no content in response"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty_response")
		return "", err
	}
	return text, nil
}

// CompleteStream relays GenerateContentStream parts as chunks.
func (c *GeminiClient) CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error] {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateMessages(messages, model); err != nil {
		return errorSeq(err)
	}

	return func(yield func(string, error) bool) {
		ctx, span := llmTracer.Start(ctx, "llm.gemini.complete_stream")
		defer span.End()
		span.SetAttributes(attribute.String("llm.model", model))

		contents, config := geminiContents(messages)
		for resp, err := range c.models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "stream_failed")
				yield("", classifyGeminiError(err))
				return
			}
			text := geminiText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if asAPIError(err, &apiErr) {
		llmErr := classifyHTTPError(apiErr.Code, apiErr.Message)
		llmErr.Cause = err
		return llmErr
	}
	return classifyAPIError(err)
}

func asAPIError(err error, target *genai.APIError) bool {
	var value genai.APIError
	if errors.As(err, &value) {
		*target = value
		return true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}
