package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/repository/instancebus"
	"github.com/kindling-sh/marathon/internal/runspec"
	"github.com/kindling-sh/marathon/internal/telemetry"
	"github.com/kindling-sh/marathon/internal/tracker"
)

var deployFile string
var deployForce bool

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Apply a run-spec file to the root group",
	RunE:  runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployFile, "file", "f", "", "path to a YAML run-spec file (required)")
	deployCmd.Flags().BoolVar(&deployForce, "force", false, "preempt any conflicting in-flight deployment")
	deployCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(deployCmd)
}

// runDeploy plans and runs one deployment as a standalone actor against
// the shared backend: there is no running "serve" process to hand this
// off to, so it stands up a transient Scheduler, drives it through one
// Deploy call, and tears it down. Running this concurrently with "serve"
// (or another deploy) against the same backend risks lock contention the
// scheduler would otherwise mediate in a single long-lived process.
func runDeploy(cmd *cobra.Command, args []string) error {
	log, syncLog, err := telemetry.New(telemetry.Config{Development: devLogs})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer syncLog()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sf, err := loadSpecFile(deployFile)
	if err != nil {
		return fmt.Errorf("load spec file: %w", err)
	}
	changes, err := sf.changes()
	if err != nil {
		return fmt.Errorf("parse spec file: %w", err)
	}

	b, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer b.Close()

	offer, err := buildOfferLayer(cfg)
	if err != nil {
		return fmt.Errorf("build offer layer: %w", err)
	}

	ctx := context.Background()
	now := time.Now()

	current, ok, err := b.Roots.Root(ctx)
	if err != nil {
		return fmt.Errorf("load root: %w", err)
	}
	if !ok {
		current = runspec.NewRoot(now)
	}

	target, err := runspec.Update(current, now, changes...)
	if err != nil {
		return fmt.Errorf("apply changes: %w", err)
	}

	plan, err := planner.Compute(current, target, nil, now)
	if err != nil {
		return fmt.Errorf("compute plan: %w", err)
	}

	tr := tracker.New(nil)
	killSvc := buildKillService(cfg, offer, log)
	sched := buildScheduler(cfg, offer, tr, killSvc, b, nil, nil, log)
	var noEvents <-chan instancebus.Event
	sched.Start(ctx, noEvents)
	sched.ElectedAsLeaderAndReady(ctx)
	defer sched.Stop()

	header(fmt.Sprintf("Deploying plan %s", plan.Id))
	var updatedAppIds, updatedPodIds []string
	for _, spec := range target.AllRunSpecs() {
		if spec.IsApp() {
			if err := b.Apps.StoreVersion(ctx, spec); err != nil {
				return fmt.Errorf("store app %s: %w", spec.Id, err)
			}
			updatedAppIds = append(updatedAppIds, spec.Id.String())
		} else {
			if err := b.Pods.StoreVersion(ctx, spec); err != nil {
				return fmt.Errorf("store pod %s: %w", spec.Id, err)
			}
			updatedPodIds = append(updatedPodIds, spec.Id.String())
		}
	}
	if err := b.Plans.Store(ctx, plan); err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	if err := b.Roots.StoreRoot(ctx, target, updatedAppIds, nil, updatedPodIds, nil); err != nil {
		return fmt.Errorf("store root: %w", err)
	}

	result := <-sched.Deploy(ctx, plan, deployForce)
	if result != nil {
		fail(result.Error())
		return result
	}
	success("deployment completed")
	return nil
}
