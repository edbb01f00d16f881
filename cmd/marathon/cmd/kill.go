package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <task-id>",
	Short: "Force-kill one task through the configured offer layer",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

// runKill issues the kill directly against the offer layer rather than
// through kill.Service: the service throttles and retries against a live
// Tracker, which this one-shot command has no persisted store to rebuild.
// That means no retry/backoff here, just the raw offer-layer call; an
// operator wanting the throttled path should use a running "serve"
// process instead.
func runKill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	offer, err := buildOfferLayer(cfg)
	if err != nil {
		return fmt.Errorf("build offer layer: %w", err)
	}

	taskId := args[0]
	header(fmt.Sprintf("Killing %s", taskId))
	if err := offer.Kill(context.Background(), taskId); err != nil {
		fail(err.Error())
		return err
	}
	success("kill request accepted")
	return nil
}
