package scheduler

import (
	"context"
	"time"

	"github.com/kindling-sh/marathon/internal/runspec"
)

// applyRevert applies changes (produced by planner.Plan.Revert) on top of
// current and stores the result, swallowing any error: a revert racing an
// unrelated, newer root update is expected to occasionally lose, and
// Plan.Revert already skips anything superseded, so a failure here just
// means someone else moved the root again between read and write.
func (s *Scheduler) applyRevert(ctx context.Context, current *runspec.Group, changes []runspec.Change) {
	next, err := runspec.Update(current, time.Now(), changes...)
	if err != nil {
		s.log.Error(err, "revert produced an invalid root update")
		return
	}
	updatedApps, deletedApps, updatedPods, deletedPods := classifyChanges(changes)
	if err := s.roots.StoreRoot(ctx, next, updatedApps, deletedApps, updatedPods, deletedPods); err != nil {
		s.log.Error(err, "failed to store reverted root")
	}
}

func classifyChanges(changes []runspec.Change) (updatedApps, deletedApps, updatedPods, deletedPods []string) {
	for _, c := range changes {
		id := c.Id.Resolve(c.RelativeTo).String()
		switch c.Kind {
		case runspec.ChangePutApp:
			updatedApps = append(updatedApps, id)
		case runspec.ChangePutPod:
			updatedPods = append(updatedPods, id)
		case runspec.ChangeDeleteApp:
			deletedApps = append(deletedApps, id)
		case runspec.ChangeDeletePod:
			deletedPods = append(deletedPods, id)
		}
	}
	return
}
