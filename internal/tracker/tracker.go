// Package tracker implements the instance tracker: the authoritative,
// single-writer/multi-reader map of every instance. Mutations run
// under a single mutex serializing per-instance-id updates; reads take
// the read lock, matching the mutex-guarded map pattern in
// repository/memory.Store.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// Bus is the narrow slice of instancebus.Bus the tracker publishes
// through, so tests can substitute a recorder.
type Bus interface {
	PublishInstanceChanged(ctx context.Context, instanceId, condition, goal string, at time.Time) error
}

// Tracker is the in-memory instance map.
type Tracker struct {
	mu        sync.RWMutex
	instances map[string]instance.Instance
	bus       Bus
}

func New(bus Bus) *Tracker {
	return &Tracker{instances: map[string]instance.Instance{}, bus: bus}
}

// Put inserts or replaces an instance outright (used when scheduling a new
// instance, or resetting state warm-started from a repository snapshot).
func (t *Tracker) Put(inst instance.Instance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instances[inst.Id.String()] = inst
}

// Get returns the current instance for id.
func (t *Tracker) Get(id string) (instance.Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	inst, ok := t.instances[id]
	return inst, ok
}

// All returns every tracked instance, snapshot-copied.
func (t *Tracker) All() []instance.Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]instance.Instance, 0, len(t.instances))
	for _, inst := range t.instances {
		out = append(out, inst)
	}
	return out
}

// ByRunSpec returns every instance belonging to runSpecId.
func (t *Tracker) ByRunSpec(runSpecId pathid.PathId) []instance.Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []instance.Instance
	for _, inst := range t.instances {
		if inst.Id.RunSpecId.Equal(runSpecId) {
			out = append(out, inst)
		}
	}
	return out
}

// ApplyTaskUpdate folds an observed task status into the named instance's
// reducer and publishes InstanceChanged. now is the
// wall-clock time of the update. Returns false if no such instance is
// tracked (the caller should treat that as an unknown-task update).
func (t *Tracker) ApplyTaskUpdate(ctx context.Context, id string, task instance.Task, now time.Time) (instance.Instance, bool) {
	t.mu.Lock()
	inst, ok := t.instances[id]
	if !ok {
		t.mu.Unlock()
		return instance.Instance{}, false
	}
	inst = inst.ApplyTaskUpdate(task, now)
	t.instances[id] = inst
	t.mu.Unlock()

	if t.bus != nil {
		_ = t.bus.PublishInstanceChanged(ctx, id, inst.State.Condition.String(), inst.State.Goal.String(), now)
	}
	return inst, true
}

// SetGoal updates an instance's goal (e.g. reconciliation's Orphaned
// decommission) and publishes the change.
func (t *Tracker) SetGoal(ctx context.Context, id string, goal instance.Goal, reason instance.DecommissionReason, now time.Time) (instance.Instance, bool) {
	t.mu.Lock()
	inst, ok := t.instances[id]
	if !ok {
		t.mu.Unlock()
		return instance.Instance{}, false
	}
	inst = inst.SetGoal(goal, reason)
	t.instances[id] = inst
	t.mu.Unlock()

	if t.bus != nil {
		_ = t.bus.PublishInstanceChanged(ctx, id, inst.State.Condition.String(), inst.State.Goal.String(), now)
	}
	return inst, true
}

// Expunge removes an instance outright, once IsExpungeable() is true.
func (t *Tracker) Expunge(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.instances, id)
}

// LiveCount counts instances of runSpecId in an active condition with
// goal=Running, applying a readiness gate when the spec requires one:
// readyIds, when non-nil, must contain the instance id for it to count.
func (t *Tracker) LiveCount(runSpecId pathid.PathId, requireReady bool, readyIds map[string]bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for id, inst := range t.instances {
		if !inst.Id.RunSpecId.Equal(runSpecId) {
			continue
		}
		if inst.State.Goal != instance.Running || !instance.IsActive(inst.State.Condition) {
			continue
		}
		if requireReady && !readyIds[id] {
			continue
		}
		count++
	}
	return count
}

// InstancesPendingKill implements kill.Tracker: every instance whose goal
// is Decommissioned or Stopped with at least one non-terminal task.
func (t *Tracker) InstancesPendingKill() []instance.Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []instance.Instance
	for _, inst := range t.instances {
		if inst.State.Goal != instance.Decommissioned && inst.State.Goal != instance.Stopped {
			continue
		}
		for _, task := range inst.TasksMap {
			if !instance.IsTerminal(task.Condition) {
				out = append(out, inst)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id.String() < out[j].Id.String() })
	return out
}

// OrphansFor returns every tracked instance whose run-spec no longer
// exists in root.
func (t *Tracker) OrphansFor(root *runspec.Group) []instance.Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []instance.Instance
	for _, inst := range t.instances {
		if _, ok := root.RunSpecById(inst.Id.RunSpecId); !ok {
			out = append(out, inst)
		}
	}
	return out
}

// ReconciliationCandidates builds the task-status query list the offer
// layer's reconcile call submits: every task excluding terminal conditions
// and Provisioned.
func (t *Tracker) ReconciliationCandidates() []TaskStatusQuery {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []TaskStatusQuery
	for _, inst := range t.instances {
		for taskId, task := range inst.TasksMap {
			if instance.IsTerminal(task.Condition) || task.Condition == instance.Provisioned {
				continue
			}
			out = append(out, TaskStatusQuery{TaskId: taskId, Condition: task.Condition.String()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskId < out[j].TaskId })
	return out
}

// TaskStatusQuery mirrors offerlayer.TaskStatusQuery to keep this package
// free of an import cycle back into offerlayer for this one shared shape.
type TaskStatusQuery struct {
	TaskId    string
	Condition string
}
