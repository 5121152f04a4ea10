package llm

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIClient calls chat completions on any OpenAI-compatible API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  openai.Client
	logger  *log.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	// Retries are applied by WithRetry across all backends, and streams are
	// bounded by the caller's context instead of a client timeout.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}

	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  openai.NewClient(opts...),
		logger:  log.New(log.Default().Writer(), "llm/openai ", log.LstdFlags),
	}
}

func (c *OpenAIClient) params(model string, messages []ChatMessage) (openai.ChatCompletionNewParams, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return openai.ChatCompletionNewParams{}, &LLMError{Type: ErrorTypeAuth, Message: "missing API key for remote provider"}
	}
	if err := validateMessages(messages, model); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: converted,
	}, nil
}

// Complete returns the first choice of a non-streaming completion.
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage, model string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := llmTracer.Start(ctx, "llm.openai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	)

	params, err := c.params(model, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_request")
		return "", err
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = classifyOpenAIError(err)
		c.logger.Printf("OpenAIClient: request failed model=%s err=%v", model, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request_failed")
		return "", err
	}
	if len(completion.Choices) == 0 {
		err := &LLMError{Type: ErrorTypeInvalidResponse, Message: "no choices in response"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty_response")
		return "", err
	}

	return completion.Choices[0].Message.Content, nil
}

// CompleteStream yields content deltas until the server ends the stream.
func (c *OpenAIClient) CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error] {
	if ctx == nil {
		ctx = context.Background()
	}

	return func(yield func(string, error) bool) {
		ctx, span := llmTracer.Start(ctx, "llm.openai.complete_stream")
		defer span.End()
		span.SetAttributes(attribute.String("llm.model", model))

		params, err := c.params(model, messages)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid_request")
			yield("", err)
			return
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		chunks := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			chunks++
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			err = classifyOpenAIError(err)
			c.logger.Printf("OpenAIClient: stream failed model=%s chunks=%d err=%v", model, chunks, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream_failed")
			yield("", err)
			return
		}
		span.SetAttributes(attribute.Int("llm.stream.chunks", chunks))
	}
}

// classifyOpenAIError maps SDK failures into an LLMError.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Type: ErrorTypeTimeout, Message: "completion timed out", Cause: err, Retryable: true}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		detail := strings.Join([]string{apiErr.Code, apiErr.Message, apiErr.Error()}, " ")
		classified := classifyHTTPError(apiErr.StatusCode, detail)
		if classified.Cause == nil {
			classified.Cause = err
		}
		return classified
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &LLMError{Type: ErrorTypeInvalidResponse, Message: "failed to parse stream chunk", Cause: err}
	}
	return &LLMError{Type: ErrorTypeUnavailable, Message: "LLM request failed", Cause: err, Retryable: true}
}
