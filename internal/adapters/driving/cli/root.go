// Package cli is the cobra command surface. Commands talk to the core
// through the driving ports; the concrete services are wired once in
// Execute and held in package variables so tests can substitute them.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "aurora",
	Short: "Local-first knowledge ingestion and retrieval",
	Long: `Aurora ingests web pages, documents, and recordings into a local
artifact store, enriches them through a staged pipeline, and answers
questions over the result with memory-augmented retrieval.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	// A bare invocation shows help and exits non-zero.
	RunE: func(cmd *cobra.Command, _ []string) error {
		_ = cmd.Help()
		return errors.New("a subcommand is required")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute wires the services from the environment and runs the CLI.
func Execute() error {
	cleanup, err := initServices()
	if err != nil {
		return fmt.Errorf("initialising services: %w", err)
	}
	defer cleanup()

	return rootCmd.Execute()
}
