package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/metrics"
	"github.com/kindling-sh/marathon/internal/offerlayer"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// executePlan drives plan's steps to completion in order, running each
// step's actions in parallel and waiting for all of them before
// advancing. Any action failure aborts the remaining steps and settles
// entry's promise with DeploymentFailed; ctx cancellation (a forced
// preemption or operator cancel) is treated as already resolved by the
// canceller and this goroutine simply returns.
func (s *Scheduler) executePlan(ctx context.Context, entry *runningDeployment) {
	plan := entry.plan
	for i, step := range plan.Steps {
		start := time.Now()
		if err := s.runStep(ctx, step); err != nil {
			if ctx.Err() != nil {
				return
			}
			wrapped := marathonerr.AsDeploymentFailed(err)
			if s.events != nil {
				_ = s.events.DeploymentFailed(ctx, plan.Id, wrapped.Error(), time.Now())
			}
			s.recordEvent(plan.Id, corev1.EventTypeWarning, "DeploymentFailed", wrapped.Error())
			s.finishPlan(ctx, entry, "failed", wrapped)
			return
		}
		for _, action := range step.Actions {
			metrics.StepDuration.WithLabelValues(action.Kind.String()).Observe(time.Since(start).Seconds())
		}
		if s.events != nil {
			_ = s.events.StepCompleted(ctx, plan.Id, i, time.Now())
		}
	}

	if ctx.Err() != nil {
		return
	}
	if s.events != nil {
		_ = s.events.DeploymentCompleted(ctx, plan.Id, time.Now())
	}
	s.recordEvent(plan.Id, corev1.EventTypeNormal, "DeploymentCompleted", fmt.Sprintf("plan %s finished", plan.Id))
	s.finishPlan(ctx, entry, "completed", nil)
}

func (s *Scheduler) runStep(ctx context.Context, step planner.Step) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, action := range step.Actions {
		action := action
		g.Go(func() error { return s.runAction(gctx, action) })
	}
	return g.Wait()
}

func (s *Scheduler) runAction(ctx context.Context, action planner.Action) error {
	switch action.Kind {
	case planner.ActionStart:
		// Placeholder registration only; the run-spec is actually scaled
		// up by the Scale action a later, dependency-ordered step emits.
		return nil
	case planner.ActionStop:
		return s.runStop(ctx, action)
	case planner.ActionScale:
		return s.runScale(ctx, action)
	case planner.ActionRestart:
		return s.runRestart(ctx, action.Spec)
	default:
		return nil
	}
}

func (s *Scheduler) runStop(ctx context.Context, action planner.Action) error {
	instances := s.tracker.ByRunSpec(action.Spec.Id)
	if len(instances) == 0 {
		return nil
	}
	done := s.killer.KillInstances(instances)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runScale(ctx context.Context, action planner.Action) error {
	spec := action.Spec
	if len(action.SentencedToDeath) > 0 {
		var toKill []instance.Instance
		for _, id := range action.SentencedToDeath {
			if inst, ok := s.tracker.Get(id.String()); ok {
				toKill = append(toKill, inst)
			}
		}
		if len(toKill) > 0 {
			done := s.killer.KillInstances(toKill)
			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	requireReady := len(spec.HealthChecks) > 0
	return wait.PollUntilContextCancel(ctx, s.cfg.PollInterval, true, func(ctx context.Context) (bool, error) {
		live := s.tracker.LiveCount(spec.Id, requireReady, s.readyIds(spec.Id))
		if live == action.To {
			return true, nil
		}
		if live < action.To {
			s.requestLaunches(ctx, spec, action.To-live)
		}
		return false, nil
	})
}

// runRestart bounds the restart transition by the run-spec's upgrade
// strategy: total running instances (old+new) never drop
// below MinimumHealthyInstances and never exceed MaximumInstances. Each
// poll tick launches replacements and retires old instances within that
// envelope until every pre-restart instance is gone and the live count of
// new instances reaches target.
func (s *Scheduler) runRestart(ctx context.Context, spec runspec.RunSpec) error {
	target := spec.Instances
	old := s.tracker.ByRunSpec(spec.Id)
	oldIds := make(map[string]bool, len(old))
	for _, inst := range old {
		if !instance.IsTerminal(inst.State.Condition) {
			oldIds[inst.Id.String()] = true
		}
	}
	minHealthy := spec.Upgrade.MinimumHealthyInstances(target)
	maxInstances := spec.Upgrade.MaximumInstances(target)

	return wait.PollUntilContextCancel(ctx, s.cfg.PollInterval, true, func(ctx context.Context) (bool, error) {
		liveOld, liveNew := s.splitLive(spec.Id, oldIds)
		total := liveOld + liveNew
		if liveOld == 0 && liveNew >= target {
			return true, nil
		}

		if launchRoom := max(maxInstances-total, 0); liveNew < target && launchRoom > 0 {
			s.requestLaunches(ctx, spec, min(launchRoom, target-liveNew))
		}
		if killRoom := max(total-minHealthy, 0); liveOld > 0 && killRoom > 0 {
			s.killOldest(spec.Id, oldIds, min(killRoom, liveOld))
		}
		return false, nil
	})
}

// splitLive partitions spec's live instances into the pre-restart set
// (oldIds) and everything else (the new generation).
func (s *Scheduler) splitLive(runSpecId pathid.PathId, oldIds map[string]bool) (liveOld, liveNew int) {
	for _, inst := range s.tracker.ByRunSpec(runSpecId) {
		if inst.State.Goal != instance.Running || !instance.IsActive(inst.State.Condition) {
			continue
		}
		if oldIds[inst.Id.String()] {
			liveOld++
		} else {
			liveNew++
		}
	}
	return
}

// killOldest retires up to n still-live pre-restart instances, removing
// them from oldIds as kills are issued so later ticks don't double-count
// them against the minHealthy floor.
func (s *Scheduler) killOldest(runSpecId pathid.PathId, oldIds map[string]bool, n int) {
	if n <= 0 {
		return
	}
	var batch []instance.Instance
	for _, inst := range s.tracker.ByRunSpec(runSpecId) {
		if len(batch) >= n {
			break
		}
		if oldIds[inst.Id.String()] && instance.IsActive(inst.State.Condition) {
			batch = append(batch, inst)
		}
	}
	if len(batch) == 0 {
		return
	}
	for _, inst := range batch {
		delete(oldIds, inst.Id.String())
	}
	s.killer.KillInstances(batch)
}

// requestLaunches asks the offer layer for n more instances of spec. A
// matched launch is provisioned straight into the tracker with one task
// per returned task id; a "no match yet" result is dropped and the next
// poll tick retries, matching the offer layer's own retry contract.
func (s *Scheduler) requestLaunches(ctx context.Context, spec runspec.RunSpec, n int) {
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		result, err := s.offer.RequestLaunch(ctx, offerlayer.LaunchRequest{
			RunSpecId: spec.Id.String(), Role: spec.Role, TaskCount: spec.TaskCount(),
		})
		if err != nil || !result.Matched {
			continue
		}
		id, err := instance.NewId(spec.Id, instance.PrefixMarathon)
		if err != nil {
			s.log.Error(err, "failed to mint instance id", "runSpec", spec.Id.String())
			continue
		}
		now := time.Now()
		tasks := make(map[string]instance.Task, len(result.TaskIds))
		for _, taskId := range result.TaskIds {
			tasks[taskId] = instance.Task{Id: taskId, Condition: instance.Staging, StartedAt: &now}
		}
		scheduled := instance.NewScheduled(id, spec, spec.Role, now)
		provisioned, err := scheduled.Provision(instance.AgentInfo{Host: result.Host, AgentId: result.AgentId}, tasks, now)
		if err != nil {
			s.log.Error(err, "failed to provision launched instance", "runSpec", spec.Id.String())
			continue
		}
		s.tracker.Put(provisioned)
	}
}

// readyIds builds the Healthy==true set for a run-spec, used to gate
// LiveCount when the spec declares health checks.
func (s *Scheduler) readyIds(runSpecId pathid.PathId) map[string]bool {
	out := map[string]bool{}
	for _, inst := range s.tracker.ByRunSpec(runSpecId) {
		if inst.State.Healthy != nil && *inst.State.Healthy {
			out[inst.Id.String()] = true
		}
	}
	return out
}
