package kill

import (
	"context"
	"time"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/repository/instancebus"
)

// killInstances selects which tasks to kill: Scheduled instances resolve
// immediately; for the rest, every task that is not already terminal or
// Unreachable produces a kill request, and the batch promise resolves
// once all such instances are observed terminal.
func (s *Service) killInstances(instances []instance.Instance, done chan error) {
	watched := map[string]bool{}

	for _, inst := range instances {
		if inst.IsScheduled() {
			continue
		}
		hasKillableTask := false
		for taskId, task := range inst.TasksMap {
			if instance.IsTerminal(task.Condition) || task.Condition == instance.Unreachable {
				continue
			}
			hasKillableTask = true
			s.enqueueOrIssue(taskId, inst.Id.String())
		}
		if hasKillableTask {
			watched[inst.Id.String()] = true
		}
	}

	if len(watched) == 0 {
		done <- nil
		return
	}

	p := &batchPromise{remainingInstances: watched, done: done}
	for instanceId := range watched {
		s.instanceWatchers[instanceId] = append(s.instanceWatchers[instanceId], p)
	}
}

// killUnknown implements KillUnknownTaskById: one kill, resolved by the
// next UnknownInstanceTerminated event for taskId.
func (s *Service) killUnknown(taskId string, done chan error) {
	s.unknownPromises[taskId] = append(s.unknownPromises[taskId], done)
	s.enqueueOrIssue(taskId, "")
}

// enqueueOrIssue applies the chunk-size throttle: issue immediately if a
// slot is free, otherwise queue.
func (s *Service) enqueueOrIssue(taskId, instanceId string) {
	if _, already := s.inFlight[taskId]; already {
		return
	}
	if len(s.inFlight) < s.cfg.ChunkSize {
		s.issueKill(taskId, instanceId, time.Now())
		return
	}
	s.pending = append(s.pending, pendingKill{taskId: taskId, instanceId: instanceId})
}

func (s *Service) issueKill(taskId, instanceId string, now time.Time) {
	k, ok := s.inFlight[taskId]
	if !ok {
		k = &inFlightKill{taskId: taskId, instanceId: instanceId, firstRequested: now}
		s.inFlight[taskId] = k
	}
	k.lastIssued = now
	k.attempts++

	offer := s.offer
	log := s.log
	go func() {
		if err := offer.Kill(context.Background(), taskId); err != nil {
			log.Error(err, "kill request failed", "taskId", taskId)
		}
	}()
}

// fillSlots issues pending kills into any in-flight slots freed by
// completed tasks.
func (s *Service) fillSlots(ctx context.Context) {
	for len(s.pending) > 0 && len(s.inFlight) < s.cfg.ChunkSize {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if _, stillTracked := s.inFlight[next.taskId]; stillTracked {
			continue
		}
		s.issueKill(next.taskId, next.instanceId, time.Now())
	}
}

// retryExpired re-issues any in-flight kill that hasn't gone terminal
// within killRetryTimeout.
func (s *Service) retryExpired(now time.Time) {
	for taskId, k := range s.inFlight {
		if now.Sub(k.lastIssued) >= s.cfg.RetryTimeout {
			s.issueKill(taskId, k.instanceId, now)
		}
	}
}

// handleEvent consumes the instance bus stream.
func (s *Service) handleEvent(ev instancebus.Event) {
	switch ev.Kind {
	case instancebus.UnknownInstanceTerminated:
		s.completeTask(ev.TaskId, "")
		if chans, ok := s.unknownPromises[ev.TaskId]; ok {
			for _, ch := range chans {
				ch <- nil
			}
			delete(s.unknownPromises, ev.TaskId)
		}

	case instancebus.InstanceChanged:
		cond, ok := instance.ParseCondition(ev.Condition)
		if !ok || !instance.IsTerminal(cond) {
			return
		}
		s.completeInstance(ev.InstanceId)
	}
}

// completeTask drops a terminated task from in-flight/pending bookkeeping.
func (s *Service) completeTask(taskId, instanceId string) {
	delete(s.inFlight, taskId)
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.taskId != taskId {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

// completeInstance resolves every batch promise waiting on instanceId,
// and drops the in-flight/pending entries for its tasks.
func (s *Service) completeInstance(instanceId string) {
	for taskId, k := range s.inFlight {
		if k.instanceId == instanceId {
			delete(s.inFlight, taskId)
		}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.instanceId != instanceId {
			kept = append(kept, p)
		}
	}
	s.pending = kept

	for _, p := range s.instanceWatchers[instanceId] {
		delete(p.remainingInstances, instanceId)
		if len(p.remainingInstances) == 0 {
			p.done <- nil
		}
	}
	delete(s.instanceWatchers, instanceId)
}

// warmStart enqueues kills for every instance the tracker reports as
// pending decommission with non-terminal tasks.
func (s *Service) warmStart(tracker Tracker) {
	if tracker == nil {
		return
	}
	for _, inst := range tracker.InstancesPendingKill() {
		s.killInstances([]instance.Instance{inst}, make(chan error, 1))
	}
}
