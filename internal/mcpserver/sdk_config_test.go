package mcpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/searchagent/internal/types"
)

func testConfig() *types.Config {
	return &types.Config{
		SearchProvider:           "duckduckgo",
		MCPServerHost:            "127.0.0.1",
		MCPServerPort:            0,
		MCPServerReadTimeout:     time.Second,
		MCPServerWriteTimeout:    time.Second,
		MCPServerIdleTimeout:     time.Second,
		MCPServerShutdownTimeout: time.Second,
		MCPServerMaxHeaderBytes:  1 << 20,
	}
}

func TestConfigAdapter_ToSDKConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MCPServerPort = 8080

	sdkConfig, err := NewConfigAdapter(cfg).ToSDKConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", sdkConfig.Host)
	assert.Equal(t, 8080, sdkConfig.Port)
	assert.Equal(t, "duckduckgo", sdkConfig.DefaultProvider)
	assert.Equal(t, "127.0.0.1:8080", NewConfigAdapter(cfg).GetServerAddress())
}

func TestConfigAdapter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *types.Config)
		message string
	}{
		{name: "empty host", mutate: func(cfg *types.Config) { cfg.MCPServerHost = "" }, message: "host cannot be empty"},
		{name: "port out of range", mutate: func(cfg *types.Config) { cfg.MCPServerPort = 70000 }, message: "port must be between"},
		{name: "zero read timeout", mutate: func(cfg *types.Config) { cfg.MCPServerReadTimeout = 0 }, message: "read timeout"},
		{name: "zero shutdown timeout", mutate: func(cfg *types.Config) { cfg.MCPServerShutdownTimeout = 0 }, message: "shutdown timeout"},
		{name: "oversized headers", mutate: func(cfg *types.Config) { cfg.MCPServerMaxHeaderBytes = 11 << 20 }, message: "cannot exceed 10MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewConfigAdapter(cfg).ToSDKConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	_, err := NewConfigAdapter(nil).ToSDKConfig()
	assert.Error(t, err)
}
