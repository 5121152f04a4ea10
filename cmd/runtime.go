package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ca-srg/searchagent/internal/agent"
	appcfg "github.com/ca-srg/searchagent/internal/config"
	"github.com/ca-srg/searchagent/internal/llm"
	"github.com/ca-srg/searchagent/internal/metrics"
	"github.com/ca-srg/searchagent/internal/observability"
	"github.com/ca-srg/searchagent/internal/types"
	"github.com/ca-srg/searchagent/internal/websearch"
)

const defaultSecretsRegion = "us-east-1"

// appRuntime bundles the configured agent with everything that must be
// released when a command exits.
type appRuntime struct {
	config   *types.Config
	service  *agent.Service
	shutdown observability.ShutdownFunc
}

// newRuntime loads configuration and wires telemetry, usage statistics, the
// LLM client, the search gateway and the agent service.
func newRuntime(ctx context.Context) (*appRuntime, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	shutdown, err := observability.Init(ctx, cfg, Version)
	if err != nil {
		log.Printf("Warning: OpenTelemetry disabled: %v", err)
	}

	rt := &appRuntime{config: cfg, shutdown: shutdown}

	if err := metrics.Init(cfg.MetricsDBPath); err != nil {
		log.Printf("Warning: usage statistics disabled: %v", err)
	} else if err := metrics.InitOTelMetrics(); err != nil {
		log.Printf("Warning: failed to register usage gauge: %v", err)
	}

	client, err := llm.NewClientFromConfig(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	gateway, err := websearch.NewGatewayFromConfig(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create search gateway: %w", err)
	}
	log.Printf("Search gateway ready: default provider=%s", gateway.Configured())

	prompts, err := agent.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		rt.Close()
		return nil, err
	}

	service, err := agent.NewService(cfg, client, gateway, prompts)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create agent service: %w", err)
	}
	rt.service = service
	return rt, nil
}

// Close flushes telemetry and closes the statistics database.
func (rt *appRuntime) Close() {
	if rt == nil {
		return
	}
	if err := metrics.Close(); err != nil {
		log.Printf("Warning: failed to close usage statistics: %v", err)
	}
	if rt.shutdown != nil {
		if err := rt.shutdown(context.Background()); err != nil {
			log.Printf("Warning: failed to flush telemetry: %v", err)
		}
	}
}

// loadConfig reads the environment, pulling credentials from Secrets Manager
// when AWS_SECRETS_MANAGER_SECRET_ID is set.
func loadConfig(ctx context.Context) (*types.Config, error) {
	if strings.TrimSpace(os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")) == "" {
		cfg, err := appcfg.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	region := strings.TrimSpace(os.Getenv("AWS_SECRETS_MANAGER_REGION"))
	if region == "" {
		region = defaultSecretsRegion
	}
	client, err := appcfg.NewSecretsManagerClient(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secrets Manager client: %w", err)
	}

	cfg, err := appcfg.LoadWithSecrets(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// errEmptyPrompt is returned when the joined CLI arguments are blank.
var errEmptyPrompt = errors.New("prompt is required")

func promptFromArgs(args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errEmptyPrompt
	}
	return prompt, nil
}
