package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configPath is the YAML config file every subcommand loads (see
// internal/config). devLogs (the --dev flag) toggles the development zap
// encoder.
var (
	configPath string
	devLogs    bool
)

var rootCmd = &cobra.Command{
	Use:   "marathon",
	Short: "marathon: a two-level cluster scheduler control plane",
	Long: `marathon runs the deployment executor, kill service and persistence
GC for a cluster of run-specs (apps and pods) against a pluggable offer
layer.

Common workflow:

  marathon serve -c config.yaml          # run the leader-elected control plane
  marathon status -c config.yaml         # show the current root and instance counts
  marathon deploy -c config.yaml -f app.yaml   # apply a run-spec file
  marathon kill -c config.yaml <task-id>       # force-kill one task
  marathon gc run -c config.yaml         # trigger one compaction pass`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "marathon.yaml", "path to the control plane config file")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "use the development (console) log encoder")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("marathon: %w", err)
	}
	return nil
}
