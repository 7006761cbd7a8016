// Package commands implements the desktide command-line interface.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// buildVersion is recorded by Execute for telemetry attribution.
	buildVersion = "dev"
)

// runFailedError signals a run that completed with a fatal failure, so
// main can exit non-zero without a second error log.
type runFailedError struct {
	code int
}

func (e *runFailedError) Error() string { return "run completed with failures" }

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	var rf *runFailedError
	if errors.As(err, &rf) {
		return rf.code
	}
	return 1
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "desktide",
		Short: "Desktide - declarative desktop configuration",
		Long: `Desktide applies a declared desktop configuration to the local
machine: packages, flatpaks, files, desktop preferences, scripted
installers and shell extensions.

Runs are idempotent: every resource is probed before it is applied, so
re-running a configuration only touches what drifted.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "desktide.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
