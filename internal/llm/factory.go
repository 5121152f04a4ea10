package llm

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ca-srg/searchagent/internal/types"
)

// NewClientFromConfig builds the completion backend selected by LLM_PROVIDER.
func NewClientFromConfig(ctx context.Context, cfg *types.Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: nil configuration provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var client Client
	switch cfg.LLMProvider {
	case "", "openai":
		client = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = GetSharedBedrockClient(awsCfg)
	case "gemini":
		gemini, err := NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		client = gemini
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.LLMProvider)
	}

	return WithRetry(client, defaultRetryAttempts, defaultRetryBackoff), nil
}
