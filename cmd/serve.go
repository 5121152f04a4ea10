package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ca-srg/searchagent/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search API",
	Long: `
Start the HTTP API. Routes are mounted under API_PREFIX (default /open-search-agent):

  GET  /health          liveness probe, never authenticated
  POST /search          full agent run, JSON response
  POST /search/stream   full agent run, NDJSON progress events
  POST /search/results  search and summarize only, no report

When API_KEY or JWT_SECRET is set, requests need an Authorization: Bearer header.
DEBUG=true disables authentication.

Examples:
  searchagent serve
  searchagent serve --port 9000
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides SERVER_HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := listenOverrides(cmd.Flags(), &rt.config.ServerHost, &rt.config.ServerPort); err != nil {
		return err
	}

	srv, err := server.New(rt.config, rt.service)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.ListenAndServe(ctx)
}
