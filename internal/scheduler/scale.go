package scheduler

import (
	"context"

	"k8s.io/apimachinery/pkg/util/wait"
)

// runScaleLoop periodically walks the persisted root and tops up any
// run-spec whose live count has fallen below its declared Instances,
// e.g. after an instance was killed outside a deployment, such as an
// agent loss. Run-specs currently locked by an in-flight deployment are
// skipped; the executor's own Scale/Restart action is already driving
// them toward target.
func (s *Scheduler) runScaleLoop(ctx context.Context) {
	_ = wait.PollUntilContextCancel(ctx, s.cfg.ScaleInterval, true, func(ctx context.Context) (bool, error) {
		s.scaleTick(ctx)
		return false, nil
	})
}

func (s *Scheduler) scaleTick(ctx context.Context) {
	root, ok, err := s.roots.Root(ctx)
	if err != nil || !ok {
		return
	}
	locked := s.lockedRunSpecIds()
	for id, spec := range root.AllRunSpecs() {
		if locked[id] {
			continue
		}
		requireReady := len(spec.HealthChecks) > 0
		live := s.tracker.LiveCount(spec.Id, requireReady, s.readyIds(spec.Id))
		if delta := spec.Instances - live; delta > 0 {
			s.requestLaunches(ctx, spec, delta)
		}
	}
}

func (s *Scheduler) lockedRunSpecIds() map[string]bool {
	out := make(chan map[string]bool, 1)
	s.cmds <- func() {
		snapshot := make(map[string]bool, len(s.locks))
		for id := range s.locks {
			snapshot[id] = true
		}
		out <- snapshot
	}
	return <-out
}
