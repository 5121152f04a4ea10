package mcpserver

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ca-srg/searchagent/internal/types"
)

const (
	// AgentToolName runs the full pipeline including the report.
	AgentToolName = "web_search_agent"
	// ResultsToolName returns the gathered results without a report.
	ResultsToolName = "web_search_results"
)

// SDKServerConfig holds the settings the MCP server needs.
type SDKServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	MaxHeaderBytes  int           `json:"max_header_bytes"`
	DefaultProvider string        `json:"default_provider"`
}

// ConfigAdapter derives SDKServerConfig from the application config.
type ConfigAdapter struct {
	config *types.Config
}

// NewConfigAdapter creates a new configuration adapter
func NewConfigAdapter(config *types.Config) *ConfigAdapter {
	return &ConfigAdapter{config: config}
}

// ToSDKConfig validates and converts the configuration.
func (ca *ConfigAdapter) ToSDKConfig() (*SDKServerConfig, error) {
	if ca.config == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if err := ca.validateServerConfig(); err != nil {
		return nil, fmt.Errorf("server configuration validation failed: %w", err)
	}

	return &SDKServerConfig{
		Host:            ca.config.MCPServerHost,
		Port:            ca.config.MCPServerPort,
		ReadTimeout:     ca.config.MCPServerReadTimeout,
		WriteTimeout:    ca.config.MCPServerWriteTimeout,
		IdleTimeout:     ca.config.MCPServerIdleTimeout,
		ShutdownTimeout: ca.config.MCPServerShutdownTimeout,
		MaxHeaderBytes:  ca.config.MCPServerMaxHeaderBytes,
		DefaultProvider: ca.config.SearchProvider,
	}, nil
}

func (ca *ConfigAdapter) validateServerConfig() error {
	if ca.config.MCPServerHost == "" {
		return fmt.Errorf("MCP server host cannot be empty")
	}
	if ca.config.MCPServerPort < 0 || ca.config.MCPServerPort > 65535 {
		return fmt.Errorf("MCP server port must be between 0 and 65535, got: %d", ca.config.MCPServerPort)
	}
	if ca.config.MCPServerReadTimeout <= 0 {
		return fmt.Errorf("MCP server read timeout must be positive, got: %v", ca.config.MCPServerReadTimeout)
	}
	if ca.config.MCPServerWriteTimeout <= 0 {
		return fmt.Errorf("MCP server write timeout must be positive, got: %v", ca.config.MCPServerWriteTimeout)
	}
	if ca.config.MCPServerIdleTimeout <= 0 {
		return fmt.Errorf("MCP server idle timeout must be positive, got: %v", ca.config.MCPServerIdleTimeout)
	}
	if ca.config.MCPServerShutdownTimeout <= 0 {
		return fmt.Errorf("MCP server shutdown timeout must be positive, got: %v", ca.config.MCPServerShutdownTimeout)
	}
	if ca.config.MCPServerMaxHeaderBytes <= 0 {
		return fmt.Errorf("MCP server max header bytes must be positive, got: %d", ca.config.MCPServerMaxHeaderBytes)
	}
	if ca.config.MCPServerMaxHeaderBytes > 10<<20 {
		return fmt.Errorf("MCP server max header bytes cannot exceed 10MB, got: %d", ca.config.MCPServerMaxHeaderBytes)
	}
	return nil
}

// GetServerAddress returns host:port.
func (ca *ConfigAdapter) GetServerAddress() string {
	return net.JoinHostPort(ca.config.MCPServerHost, strconv.Itoa(ca.config.MCPServerPort))
}
