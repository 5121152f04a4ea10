package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockMaxTokens        = 4000
	bedrockTemperature      = 0.7
)

type bedrockRuntime interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockClient talks to Anthropic models hosted on AWS Bedrock.
type BedrockClient struct {
	runtime bedrockRuntime
	region  string
	logger  *log.Logger
}

// bedrockRequest represents the request payload for Claude models in AWS Bedrock format
type bedrockRequest struct {
	Messages         []ChatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	StopSequences    []string      `json:"stop_sequences,omitempty"`
	AnthropicVersion string        `json:"anthropic_version,omitempty"`
	System           string        `json:"system,omitempty"`
}

type bedrockResponse struct {
	Content []bedrockContent `json:"content"`
	Usage   bedrockUsage     `json:"usage,omitempty"`
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// bedrockStreamChunk is one decoded payload of InvokeModelWithResponseStream.
type bedrockStreamChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewBedrockClient creates a new AWS Bedrock completion client
func NewBedrockClient(awsConfig aws.Config) *BedrockClient {
	return newBedrockClientWithRuntime(bedrockruntime.NewFromConfig(awsConfig), awsConfig.Region)
}

func newBedrockClientWithRuntime(runtime bedrockRuntime, region string) *BedrockClient {
	return &BedrockClient{
		runtime: runtime,
		region:  region,
		logger:  log.New(log.Default().Writer(), "llm/bedrock ", log.LstdFlags),
	}
}

// Region returns the AWS region being used
func (c *BedrockClient) Region() string {
	return c.region
}

func (c *BedrockClient) buildRequest(messages []ChatMessage) ([]byte, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return nil, fmt.Errorf("chat messages must include at least one user or assistant message")
	}

	request := bedrockRequest{
		Messages:         turns,
		MaxTokens:        bedrockMaxTokens,
		Temperature:      bedrockTemperature,
		AnthropicVersion: bedrockAnthropicVersion,
		System:           system,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// Complete generates a chat response using the given model
func (c *BedrockClient) Complete(ctx context.Context, messages []ChatMessage, model string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := llmTracer.Start(ctx, "llm.bedrock.complete")
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

	body, err := c.buildRequest(messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_request")
		return "", err
	}

	result, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		classified := classifyAPIError(err)
		c.logger.Printf("BedrockClient: invoke failed model=%s err=%v", model, err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, "invoke_failed")
		return "", fmt.Errorf("failed to invoke bedrock model: %w", classified)
	}

	var response bedrockResponse
	if err := json.Unmarshal(result.Body, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode_failed")
		return "", &LLMError{Type: ErrorTypeInvalidResponse, Message: "failed to parse response", Cause: err}
	}

	if len(response.Content) == 0 {
		err := &LLMError{Type: ErrorTypeInvalidResponse, Message: "no content in response"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty_response")
		return "", err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", response.Usage.InputTokens),
		attribute.Int("llm.usage.output_tokens", response.Usage.OutputTokens),
	)
	return response.Content[0].Text, nil
}

// CompleteStream streams text deltas from InvokeModelWithResponseStream.
func (c *BedrockClient) CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error] {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateMessages(messages, model); err != nil {
		return errorSeq(err)
	}
	body, err := c.buildRequest(messages)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(string, error) bool) {
		ctx, span := llmTracer.Start(ctx, "llm.bedrock.complete_stream")
		defer span.End()
		span.SetAttributes(attribute.String("llm.model", model))

		out, err := c.runtime.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			classified := classifyAPIError(err)
			span.RecordError(classified)
			span.SetStatus(codes.Error, "invoke_failed")
			yield("", fmt.Errorf("failed to invoke bedrock stream: %w", classified))
			return
		}

		stream := out.GetStream()
		defer stream.Close()

		chunks := 0
		for event := range stream.Events() {
			chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			text, err := decodeBedrockChunk(chunk.Value.Bytes)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "stream_chunk_failed")
				yield("", err)
				return
			}
			if text == "" {
				continue
			}
			chunks++
			if !yield(text, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			classified := classifyAPIError(err)
			span.RecordError(classified)
			span.SetStatus(codes.Error, "stream_failed")
			yield("", fmt.Errorf("bedrock stream failed: %w", classified))
			return
		}
		span.SetAttributes(attribute.Int("llm.stream.chunks", chunks))
	}
}

// decodeBedrockChunk extracts the text delta from an Anthropic stream payload.
func decodeBedrockChunk(payload []byte) (string, error) {
	var chunk bedrockStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", &LLMError{Type: ErrorTypeInvalidResponse, Message: "failed to parse stream chunk", Cause: err}
	}
	switch chunk.Type {
	case "content_block_delta":
		return chunk.Delta.Text, nil
	case "error":
		message := "bedrock stream error"
		if chunk.Error != nil && chunk.Error.Message != "" {
			message = chunk.Error.Message
		}
		llmErr := &LLMError{Type: ErrorTypeUnknown, Message: message}
		if containsAny(strings.ToLower(message), contextLengthMarkers) {
			llmErr.Type = ErrorTypeContextLength
		}
		return "", llmErr
	default:
		return "", nil
	}
}
