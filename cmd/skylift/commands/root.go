package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	serverURL  string
	verbose    bool
	jsonOutput bool

	// appVersion is the build version, used for telemetry identification.
	appVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skylift",
		Short: "Skylift - Deployment Operation Tracker",
		Long: `Skylift tracks infrastructure operations running on the Skylift backend.

It starts plan, apply, destroy, and generation operations, follows their
push streams live, and keeps an exact local record of what happened:

  - Live phase and progress tracking per operation
  - Append-only event log with heartbeat coalescing
  - Durable operation history in a local SQLite database
  - Resting-status reconciliation when no stream is attached
  - Cloud credential validation before deploying`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "skylift.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
