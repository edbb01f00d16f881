package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kindling-sh/marathon/internal/gc"
	"github.com/kindling-sh/marathon/internal/telemetry"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run persistence garbage collection",
}

var gcRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger one compaction pass and wait for it to finish",
	RunE:  runGcRun,
}

func init() {
	gcCmd.AddCommand(gcRunCmd)
	rootCmd.AddCommand(gcCmd)
}

// runGcRun drives a transient gc.FSM through exactly one RunGC pass. RunGC
// only requests the Scanning transition and returns; this polls
// CurrentPhase until the FSM is idle again (ReadyForGc, since the FSM is
// built with interval<=0 so it never reverts to Resting) to know the pass
// actually finished before the process exits.
func runGcRun(cmd *cobra.Command, args []string) error {
	log, syncLog, err := telemetry.New(telemetry.Config{Development: devLogs})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer syncLog()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer b.Close()

	cfg.Gc.IntervalSeconds = 0 // start directly in ReadyForGc; see buildGcFsm
	fsm := buildGcFsm(cfg, b, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	go fsm.Run(ctx)

	header("Running garbage collection")
	fsm.RunGC(ctx)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fail("timed out waiting for gc to finish")
			return ctx.Err()
		case <-ticker.C:
			if phase := fsm.CurrentPhase(); phase == gc.ReadyForGc {
				success("gc pass complete")
				return nil
			}
		}
	}
}
