package cmd

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:   "searchagent",
	Short: "searchagent - LLM-driven web search agent",
	Long: `searchagent decomposes a prompt into web search queries, summarizes and
evaluates what it finds, refines the search when results fall short, and
writes a cited report. It runs as a CLI, an HTTP API with NDJSON streaming,
or an MCP server.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(mcpServerCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadEnvFile populates unset environment variables from path. A missing
// default file is not an error; a missing explicit file is.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if explicit {
		return err
	}
	log.Printf("Warning: Error loading %s file: %v", path, err)
	return nil
}
