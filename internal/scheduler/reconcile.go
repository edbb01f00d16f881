package scheduler

import (
	"context"
	"time"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/metrics"
	"github.com/kindling-sh/marathon/internal/offerlayer"
)

// ReconcileTasks drives one reconciliation pass: orphaned instances
// (those whose run-spec no longer exists in the persisted root) are
// decommissioned, then every remaining non-terminal, non-Provisioned
// task is submitted to the offer layer for a status sweep, finished by
// an empty-list sentinel. Concurrent callers coalesce onto one in-flight
// run via singleflight.
func (s *Scheduler) ReconcileTasks(ctx context.Context) error {
	_, err, shared := s.reconcile.Do("reconcile", func() (interface{}, error) {
		return nil, s.doReconcile(ctx)
	})
	if shared {
		metrics.ReconciliationsCoalesced.Inc()
	}
	return err
}

func (s *Scheduler) doReconcile(ctx context.Context) error {
	now := time.Now()
	if root, ok, err := s.roots.Root(ctx); err == nil && ok {
		for _, orphan := range s.tracker.OrphansFor(root) {
			s.tracker.SetGoal(ctx, orphan.Id.String(), instance.Decommissioned, instance.ReasonOrphaned, now)
		}
	}

	candidates := s.tracker.ReconciliationCandidates()
	queries := make([]offerlayer.TaskStatusQuery, len(candidates))
	for i, c := range candidates {
		queries[i] = offerlayer.TaskStatusQuery{TaskId: c.TaskId, Condition: c.Condition}
	}
	if err := s.offer.Reconcile(ctx, queries); err != nil {
		return err
	}
	return s.offer.Reconcile(ctx, nil)
}
