package scheduler

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/metrics"
	"github.com/kindling-sh/marathon/internal/planner"
)

// Deploy submits plan for execution. When force is false and any of
// plan.AffectedRunSpecIds is locked by another in-flight deployment, the
// returned channel resolves immediately with ErrAppLocked and nothing is
// started. When force is true, every locking deployment is cancelled and
// reverted first: its own promise resolves with
// DeploymentCancelled before plan starts.
func (s *Scheduler) Deploy(ctx context.Context, plan *planner.Plan, force bool) <-chan error {
	done := make(chan error, 1)
	s.cmds <- func() { s.deploy(ctx, plan, force, done) }
	return done
}

func (s *Scheduler) deploy(ctx context.Context, plan *planner.Plan, force bool, done chan error) {
	conflicts := s.acquireLocks(plan.Id, plan.AffectedRunSpecIds)
	if len(conflicts) > 0 && !force {
		done <- marathonerr.ErrAppLocked
		close(done)
		return
	}
	for _, holder := range sortedConflictHolders(conflicts) {
		s.cancelLocked(ctx, holder, "preempted by forced deployment "+plan.Id)
	}

	s.commitLocks(plan.Id, plan.AffectedRunSpecIds)

	runCtx, cancel := context.WithCancel(ctx)
	entry := &runningDeployment{plan: plan, cancel: cancel, done: done}
	s.running[plan.Id] = entry

	if err := s.plans.Store(ctx, plan); err != nil {
		s.log.Error(err, "failed to persist plan", "deployment", plan.Id)
	}

	forcedLabel := "false"
	if force {
		forcedLabel = "true"
	}
	metrics.DeploymentsStarted.WithLabelValues(forcedLabel).Inc()
	if s.events != nil {
		_ = s.events.DeploymentStarted(ctx, plan.Id, time.Now())
	}
	s.recordEvent(plan.Id, corev1.EventTypeNormal, "DeploymentStarted", fmt.Sprintf("executing plan %s (%d steps)", plan.Id, len(plan.Steps)))

	go s.executePlan(runCtx, entry)
}

// cancelLocked cancels the running deployment holderId, reverts its root
// changes against whatever the repository currently holds, releases its
// locks and resolves its promise with DeploymentCancelled. Must run inside
// the actor goroutine.
func (s *Scheduler) cancelLocked(ctx context.Context, holderId, reason string) {
	entry, ok := s.running[holderId]
	if !ok {
		return
	}
	entry.cancel()

	if current, ok, err := s.roots.Root(ctx); err == nil && ok {
		if changes, rerr := entry.plan.Revert(current); rerr == nil && len(changes) > 0 {
			s.applyRevert(ctx, current, changes)
		}
	}

	s.releaseLocks(holderId)
	delete(s.running, holderId)
	_ = s.plans.Delete(ctx, holderId)

	if s.events != nil {
		_ = s.events.DeploymentCancelled(ctx, holderId, reason, time.Now())
	}
	s.recordEvent(holderId, corev1.EventTypeWarning, "DeploymentCancelled", reason)
	metrics.DeploymentsCompleted.WithLabelValues("cancelled").Inc()
	entry.resolve(marathonerr.ErrDeploymentCancelled)
}

// Cancel cancels an in-flight deployment by id (operator-initiated, as
// opposed to the implicit cancellation a forced Deploy performs).
func (s *Scheduler) Cancel(ctx context.Context, deploymentId, reason string) {
	s.cmds <- func() { s.cancelLocked(ctx, deploymentId, reason) }
}

// resumePlan re-registers a plan found in the deployment repository at
// election time. Re-running an already-completed step is a no-op
// (Scale/Restart completion checks against current live counts, Start/
// Stop are idempotent), so resuming simply re-executes the whole plan
// from its first step.
func (s *Scheduler) resumePlan(ctx context.Context, plan *planner.Plan) {
	done := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	entry := &runningDeployment{plan: plan, cancel: cancel, done: done}
	s.cmds <- func() {
		s.commitLocks(plan.Id, plan.AffectedRunSpecIds)
		s.running[plan.Id] = entry
		go s.executePlan(runCtx, entry)
	}
}

func (s *Scheduler) finishPlan(ctx context.Context, entry *runningDeployment, outcome string, err error) {
	s.cmds <- func() {
		s.releaseLocks(entry.plan.Id)
		delete(s.running, entry.plan.Id)
		_ = s.plans.Delete(ctx, entry.plan.Id)
		metrics.DeploymentsCompleted.WithLabelValues(outcome).Inc()
		entry.resolve(err)
	}
}
