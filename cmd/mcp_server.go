package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchagent/internal/mcpserver"
)

var (
	mcpServerHost string
	mcpServerPort int
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start MCP (Model Context Protocol) server exposing the search agent",
	Long: `
Start an MCP server that exposes the search agent as tools for MCP-compatible
clients such as Claude Desktop and IDEs:

  web_search_agent    full agent run returning the report, steps and sources;
                      streams progress notifications when the client sends a
                      progress token
  web_search_results  search and summarize only; the client writes the report

Both streamable HTTP and SSE transports are served on /mcp.

Examples:
  searchagent mcp-server
  searchagent mcp-server --host 0.0.0.0 --port 9000
`,
	RunE: runMCPServer,
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpServerHost, "host", "", "Server host address (overrides MCP_SERVER_HOST)")
	mcpServerCmd.Flags().IntVar(&mcpServerPort, "port", 0, "Server port (overrides MCP_SERVER_PORT)")
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := listenOverrides(cmd.Flags(), &rt.config.MCPServerHost, &rt.config.MCPServerPort); err != nil {
		return err
	}

	logger := log.New(os.Stdout, "[MCP Server] ", log.LstdFlags)

	server, err := mcpserver.NewServerWrapper(rt.config, rt.service)
	if err != nil {
		return fmt.Errorf("failed to create server wrapper: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}
	logger.Printf("MCP server listening on %s with tools %v", server.GetServerAddress(), server.ToolNames())

	<-ctx.Done()
	logger.Println("Shutting down MCP server...")
	if err := server.Stop(); err != nil {
		return fmt.Errorf("failed to stop MCP server: %w", err)
	}
	return nil
}
