package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "brain",
		Short: "Brain - API test agent control plane",
		Long: `Brain is the control plane of an autonomous API-test agent. It turns
OpenAPI specs and free-form requirements into declarative UTDL test
plans, validates them, and dispatches them to the external executor.

Features:
  - LLM-backed plan generation with a bounded self-correction loop
  - Three-mode plan validation (strict, default, lenient)
  - OpenAPI ingestion with negative, robustness, latency and auth derivation
  - Content-addressed plan cache and immutable plan versioning
  - Pluggable execution history (sqlite, file tree, S3)
  - REST + WebSocket control API`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newCacheCommand())

	return rootCmd
}
