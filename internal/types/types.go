package types

import (
	"time"
)

// Config represents the searchagent configuration
type Config struct {
	// Search provider configuration
	SearchProvider        string        `json:"search_provider" env:"SEARCH_PROVIDER,default=duckduckgo"`
	SearchResultsPerQuery int           `json:"search_results_per_query" env:"SEARCH_RESULTS_PER_QUERY,default=5"`
	SearchTimeout         time.Duration `json:"search_timeout" env:"SEARCH_TIMEOUT,default=15s"`
	SearchRatePerMinute   int           `json:"search_rate_per_minute" env:"SEARCH_RATE_PER_MINUTE,default=60"`
	GoogleSearchAPIKey    string        `json:"-" env:"GOOGLE_SEARCH_API_KEY"`
	GoogleSearchEngineID  string        `json:"google_search_engine_id" env:"GOOGLE_SEARCH_ENGINE_ID"`
	SearxNGURL            string        `json:"searxng_url" env:"SEARXNG_URL"`
	TavilyAPIKey          string        `json:"-" env:"TAVILY_API_KEY"`
	SerperAPIKey          string        `json:"-" env:"SERPER_API_KEY"`
	BraveAPIKey           string        `json:"-" env:"BRAVE_API_KEY"`

	// LLM configuration
	LLMProvider     string        `json:"llm_provider" env:"LLM_PROVIDER,default=openai"`
	LLMTimeout      time.Duration `json:"llm_timeout" env:"LLM_TIMEOUT,default=60s"`
	OpenAIAPIKey    string        `json:"-" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `json:"openai_base_url" env:"OPENAI_BASE_URL,default=https://api.openai.com/v1"`
	OpenAIModel     string        `json:"openai_model" env:"OPENAI_MODEL,default=o4-mini"`
	OpenAIModelLow  string        `json:"openai_model_low" env:"OPENAI_MODEL_LOW,default=gpt-4.1-mini"`
	BedrockRegion   string        `json:"bedrock_region" env:"BEDROCK_REGION,default=us-east-1"`
	BedrockModel    string        `json:"bedrock_model" env:"BEDROCK_MODEL,default=anthropic.claude-3-5-sonnet-20240620-v1:0"`
	BedrockModelLow string        `json:"bedrock_model_low" env:"BEDROCK_MODEL_LOW,default=anthropic.claude-3-haiku-20240307-v1:0"`
	GeminiAPIKey    string        `json:"-" env:"GEMINI_API_KEY"`
	GeminiModel     string        `json:"gemini_model" env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	GeminiModelLow  string        `json:"gemini_model_low" env:"GEMINI_MODEL_LOW,default=gemini-2.5-flash-lite"`

	// Agent loop configuration
	AgentMaxIterations      int    `json:"agent_max_iterations" env:"AGENT_MAX_ITERATIONS,default=3"`
	AgentMaxFollowUpQueries int    `json:"agent_max_followup_queries" env:"AGENT_MAX_FOLLOWUP_QUERIES,default=2"`
	SummarizeConcurrency    int    `json:"summarize_concurrency" env:"SUMMARIZE_CONCURRENCY,default=4"`
	PromptsFile             string `json:"prompts_file" env:"PROMPTS_FILE"`

	// Secrets
	SecretsManagerSecretID string `json:"secrets_manager_secret_id" env:"AWS_SECRETS_MANAGER_SECRET_ID"`
	SecretsManagerRegion   string `json:"secrets_manager_region" env:"AWS_SECRETS_MANAGER_REGION,default=us-east-1"`

	// HTTP API configuration
	ServerHost            string        `json:"server_host" env:"SERVER_HOST,default=0.0.0.0"`
	ServerPort            int           `json:"server_port" env:"SERVER_PORT,default=8000"`
	APIPrefix             string        `json:"api_prefix" env:"API_PREFIX,default=/open-search-agent"`
	ServerReadTimeout     time.Duration `json:"server_read_timeout" env:"SERVER_READ_TIMEOUT,default=30s"`
	ServerWriteTimeout    time.Duration `json:"server_write_timeout" env:"SERVER_WRITE_TIMEOUT,default=10m"`
	ServerShutdownTimeout time.Duration `json:"server_shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	APIKey                string        `json:"-" env:"API_KEY"`
	JWTSecret             string        `json:"-" env:"JWT_SECRET"`
	Debug                 bool          `json:"debug" env:"DEBUG,default=false"`

	// MCP server configuration
	MCPServerHost            string        `json:"mcp_server_host" env:"MCP_SERVER_HOST,default=localhost"`
	MCPServerPort            int           `json:"mcp_server_port" env:"MCP_SERVER_PORT,default=8080"`
	MCPServerReadTimeout     time.Duration `json:"mcp_server_read_timeout" env:"MCP_SERVER_READ_TIMEOUT,default=30s"`
	MCPServerWriteTimeout    time.Duration `json:"mcp_server_write_timeout" env:"MCP_SERVER_WRITE_TIMEOUT,default=10m"`
	MCPServerIdleTimeout     time.Duration `json:"mcp_server_idle_timeout" env:"MCP_SERVER_IDLE_TIMEOUT,default=120s"`
	MCPServerShutdownTimeout time.Duration `json:"mcp_server_shutdown_timeout" env:"MCP_SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	MCPServerMaxHeaderBytes  int           `json:"mcp_server_max_header_bytes" env:"MCP_SERVER_MAX_HEADER_BYTES,default=1048576"`

	// Usage statistics
	MetricsDBPath string `json:"metrics_db_path" env:"METRICS_DB_PATH"`

	// OpenTelemetry configuration
	OTelEnabled              bool    `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string  `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=searchagent"`
	OTelExporterOTLPEndpoint string  `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string  `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string  `json:"otel_resource_attributes" env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string  `json:"otel_traces_sampler" env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64 `json:"otel_traces_sampler_arg" env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
}

// ModelsFor returns the main and low-tier model identifiers for the configured LLM provider.
func (c *Config) ModelsFor(provider string) (string, string) {
	switch provider {
	case "bedrock":
		return c.BedrockModel, c.BedrockModelLow
	case "gemini":
		return c.GeminiModel, c.GeminiModelLow
	default:
		return c.OpenAIModel, c.OpenAIModelLow
	}
}
