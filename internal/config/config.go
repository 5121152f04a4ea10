package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/searchagent/internal/types"
	env "github.com/netflix/go-env"
)

// Type alias for Config
type Config = types.Config

// SearchProviders lists the web search backends that can be selected.
var SearchProviders = []string{"duckduckgo", "google", "searxng", "tavily", "serper", "brave"}

// LLMProviders lists the completion backends that can be selected.
var LLMProviders = []string{"openai", "bedrock", "gemini"}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config, err := loadRaw()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadWithSecrets loads configuration and fills empty credentials from a
// Secrets Manager JSON secret before validation.
func LoadWithSecrets(ctx context.Context, fetch SecretFetcher) (*Config, error) {
	config, err := loadRaw()
	if err != nil {
		return nil, err
	}

	if config.SecretsManagerSecretID != "" && fetch != nil {
		if err := ApplySecrets(ctx, config, fetch); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadRaw() (*Config, error) {
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config.SearchProvider = strings.ToLower(strings.TrimSpace(config.SearchProvider))
	config.LLMProvider = strings.ToLower(strings.TrimSpace(config.LLMProvider))
	config.APIPrefix = normalizePrefix(config.APIPrefix)

	return &config, nil
}

// validateConfig validates configuration values and adjusts them to safe ranges
func validateConfig(config *Config) error {
	if !contains(SearchProviders, config.SearchProvider) {
		return fmt.Errorf("SEARCH_PROVIDER must be one of %s, got %q", strings.Join(SearchProviders, ", "), config.SearchProvider)
	}
	if !contains(LLMProviders, config.LLMProvider) {
		return fmt.Errorf("LLM_PROVIDER must be one of %s, got %q", strings.Join(LLMProviders, ", "), config.LLMProvider)
	}

	// Agent loop bounds
	if config.AgentMaxIterations < 0 {
		config.AgentMaxIterations = 0
	}
	if config.AgentMaxIterations > 10 {
		config.AgentMaxIterations = 10
	}
	if config.AgentMaxFollowUpQueries < 0 {
		config.AgentMaxFollowUpQueries = 0
	}
	if config.AgentMaxFollowUpQueries > 10 {
		config.AgentMaxFollowUpQueries = 10
	}
	if config.SummarizeConcurrency < 1 {
		config.SummarizeConcurrency = 1
	}
	if config.SummarizeConcurrency > 20 {
		config.SummarizeConcurrency = 20
	}

	// Search bounds
	if config.SearchResultsPerQuery < 1 {
		config.SearchResultsPerQuery = 1
	}
	if config.SearchResultsPerQuery > 20 {
		config.SearchResultsPerQuery = 20
	}
	if config.SearchRatePerMinute < 0 {
		config.SearchRatePerMinute = 0
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 15 * time.Second
	}
	if config.LLMTimeout <= 0 {
		config.LLMTimeout = 60 * time.Second
	}

	if config.ServerPort < 1 || config.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if config.MCPServerPort < 1 || config.MCPServerPort > 65535 {
		return fmt.Errorf("MCP_SERVER_PORT must be between 1 and 65535")
	}

	if config.Debug {
		return nil
	}

	if err := validateSearchCredentials(config); err != nil {
		return fmt.Errorf("search provider configuration validation failed: %w", err)
	}
	if err := validateLLMCredentials(config); err != nil {
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}

	return nil
}

// validateSearchCredentials requires the keys of the selected provider only.
func validateSearchCredentials(config *Config) error {
	switch config.SearchProvider {
	case "google":
		if config.GoogleSearchAPIKey == "" || config.GoogleSearchEngineID == "" {
			return fmt.Errorf("GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_ENGINE_ID are required when SEARCH_PROVIDER=google")
		}
	case "searxng":
		if config.SearxNGURL == "" {
			return fmt.Errorf("SEARXNG_URL is required when SEARCH_PROVIDER=searxng")
		}
		parsed, err := url.Parse(config.SearxNGURL)
		if err != nil {
			return fmt.Errorf("invalid SEARXNG_URL: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("SEARXNG_URL must include scheme and host")
		}
	case "tavily":
		if config.TavilyAPIKey == "" {
			return fmt.Errorf("TAVILY_API_KEY is required when SEARCH_PROVIDER=tavily")
		}
	case "serper":
		if config.SerperAPIKey == "" {
			return fmt.Errorf("SERPER_API_KEY is required when SEARCH_PROVIDER=serper")
		}
	case "brave":
		if config.BraveAPIKey == "" {
			return fmt.Errorf("BRAVE_API_KEY is required when SEARCH_PROVIDER=brave")
		}
	}
	return nil
}

func validateLLMCredentials(config *Config) error {
	switch config.LLMProvider {
	case "openai":
		if config.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if config.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "bedrock":
		if config.BedrockRegion == "" {
			return fmt.Errorf("BEDROCK_REGION cannot be empty when LLM_PROVIDER=bedrock")
		}
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
