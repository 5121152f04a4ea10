package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretFetcher is the subset of the Secrets Manager client used to resolve credentials.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsManagerClient builds a Secrets Manager client for the given region.
func NewSecretsManagerClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// ApplySecrets reads a JSON object keyed by environment variable name and
// copies values into credential fields that are still empty. Values already
// set through the environment win.
func ApplySecrets(ctx context.Context, cfg *Config, fetch SecretFetcher) error {
	if cfg == nil || fetch == nil || cfg.SecretsManagerSecretID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := fetch.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretsManagerSecretID),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch secret %s: %w", cfg.SecretsManagerSecretID, err)
	}
	if out == nil || out.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", cfg.SecretsManagerSecretID)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("secret %s is not a JSON object of strings: %w", cfg.SecretsManagerSecretID, err)
	}

	for name, target := range secretTargets(cfg) {
		value := strings.TrimSpace(values[name])
		if value != "" && *target == "" {
			*target = value
		}
	}
	return nil
}

func secretTargets(cfg *Config) map[string]*string {
	return map[string]*string{
		"API_KEY":               &cfg.APIKey,
		"JWT_SECRET":            &cfg.JWTSecret,
		"OPENAI_API_KEY":        &cfg.OpenAIAPIKey,
		"GEMINI_API_KEY":        &cfg.GeminiAPIKey,
		"GOOGLE_SEARCH_API_KEY": &cfg.GoogleSearchAPIKey,
		"TAVILY_API_KEY":        &cfg.TavilyAPIKey,
		"SERPER_API_KEY":        &cfg.SerperAPIKey,
		"BRAVE_API_KEY":         &cfg.BraveAPIKey,
	}
}
