/*
main.go - rapd entry point

PURPOSE:
  Command-line interface for the RAP reconciliation engine. Reads RAP
  sources, matches them to a Canvas course roster, and applies time-limit
  overrides to timed assessments.

COMMANDS:
  serve     Run the HTTP API server (--demo for a seeded in-memory LMS)
  run       One-shot reconciliation for a course, report on stdout
  extract   Extract and print RAP records without matching or applying
  courses   List the Canvas courses visible to the configured token

GLOBAL FLAGS:
  -c, --config   Path to rapd.yaml (built-in defaults when omitted)
  -v, --verbose  Debug logging

SEE ALSO:
  - config/config.go: The rapd.yaml schema
  - api/server.go: Routes served by `rapd serve`
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adapt/rap-engine/config"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rapd",
	Short: "Reconcile RAP extra-time accommodations onto Canvas quizzes",
	Long: `rapd reads Reasonable Adjustment Plan records from a tabular export
and from legacy per-student documents, matches them against a Canvas
course roster, and idempotently applies the resulting time-limit
overrides to the course's timed quizzes.

Every run produces a full reconciliation report; nothing is ever written
twice, and manual instructor overrides are never replaced silently.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to rapd.yaml (built-in defaults when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(coursesCmd)
}

// loadConfig resolves the --config flag, falling back to defaults so the
// demo and simple setups need no file at all.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
