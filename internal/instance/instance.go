// Package instance implements the runtime instance/task model: the
// multi-task condition reducer, health aggregation, goal-driven lifecycle
// and the unreachable-inactive latch.
package instance

import (
	"sort"
	"time"

	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// State is the derived, reducer-computed portion of an Instance.
type State struct {
	Condition  Condition
	Since      time.Time
	ActiveSince *time.Time
	Healthy    *bool
	Goal       Goal
}

// Instance is the runtime counterpart of a run-spec replica.
type Instance struct {
	Id        Id
	AgentInfo *AgentInfo
	State     State
	TasksMap  map[string]Task
	RunSpec   runspec.RunSpec
	Reservation *Reservation
	Role      string

	DecommissionReason DecommissionReason

	// unreachableInactiveLatch pins State.Condition at UnreachableInactive
	// once promoted: a later Running status update on a task does not
	// revert the instance-level condition; only Reschedule (issued by a
	// deployment action) clears it.
	unreachableInactiveLatch bool
}

// NewScheduled creates an instance in the initial Scheduled state with no
// agent binding and no tasks lifecycle.
func NewScheduled(id Id, spec runspec.RunSpec, role string, now time.Time) Instance {
	return Instance{
		Id:      id,
		RunSpec: spec,
		Role:    role,
		State:   State{Condition: Scheduled, Since: now, Goal: Running},
	}
}

// IsScheduled reports whether goal=Running AND (condition is terminal OR
// condition=Scheduled).
func (inst Instance) IsScheduled() bool {
	return inst.State.Goal == Running && (IsTerminal(inst.State.Condition) || inst.State.Condition == Scheduled)
}

// Provision transitions Scheduled -> Provisioned, binding the accepting
// offer's AgentInfo and the launched tasks. Requires
// goal=Running; any other goal means the offer arrived after a Stop/
// Decommission raced it and should be declined by the caller instead.
func (inst Instance) Provision(agent AgentInfo, tasks map[string]Task, now time.Time) (Instance, error) {
	if inst.State.Goal != Running {
		return inst, marathonerr.Wrap(marathonerr.ValidationFailure, "cannot provision instance with goal "+inst.State.Goal.String(), nil)
	}
	if inst.State.Condition != Scheduled {
		return inst, marathonerr.Wrap(marathonerr.ValidationFailure, "cannot provision instance in condition "+inst.State.Condition.String(), nil)
	}
	inst.AgentInfo = &agent
	inst.TasksMap = tasks
	inst.State.Condition = Provisioned
	inst.State.Since = now
	return inst, nil
}

// ApplyTaskUpdate replaces one task's observed condition/health/timestamps
// and re-derives the instance's State by reducing over TasksMap. now is
// the wall-clock time of this update, used both for State.Since
// advancement and for evaluating the unreachable-inactive promotion
// window.
func (inst Instance) ApplyTaskUpdate(task Task, now time.Time) Instance {
	if inst.TasksMap == nil {
		inst.TasksMap = map[string]Task{}
	}
	inst.TasksMap[task.Id] = task
	return inst.reduce(now)
}

func (inst Instance) reduce(now time.Time) Instance {
	conditions := make([]Condition, 0, len(inst.TasksMap))
	for _, t := range inst.TasksMap {
		conditions = append(conditions, t.Condition)
	}
	reduced := Reduce(conditions)

	if reduced == Unreachable && inst.RunSpec.Unreachable.Enabled {
		for _, t := range inst.TasksMap {
			if d, ok := t.unreachableFor(now); ok && d > inst.RunSpec.Unreachable.InactiveAfter {
				inst.unreachableInactiveLatch = true
				break
			}
		}
	}

	effective := reduced
	if inst.unreachableInactiveLatch {
		effective = UnreachableInactive
	}

	healthy := aggregateHealth(inst.TasksMap)
	activeSince := minStartedAt(inst.TasksMap)

	sameState := effective == inst.State.Condition && healthyEqual(healthy, inst.State.Healthy)
	since := inst.State.Since
	if !sameState {
		since = now
	}

	inst.State.Condition = effective
	inst.State.Healthy = healthy
	inst.State.ActiveSince = activeSince
	inst.State.Since = since
	return inst
}

// Reschedule clears the unreachable-inactive latch, called by a deployment
// action (Scale/Restart) that re-schedules the instance. The condition is
// re-derived from the tasks without the inactive promotion, so a task that
// is still unreachable leaves the instance Unreachable until a later task
// update finds it unreachable past InactiveAfter again.
func (inst Instance) Reschedule(now time.Time) Instance {
	inst.unreachableInactiveLatch = false
	inst = inst.reduce(now)
	if inst.unreachableInactiveLatch {
		inst.unreachableInactiveLatch = false
		inst.State.Condition = Unreachable
		inst.State.Since = now
	}
	return inst
}

// SetGoal changes the instance's goal, recording a reason when moving to
// Decommissioned via reconciliation.
func (inst Instance) SetGoal(goal Goal, reason DecommissionReason) Instance {
	inst.State.Goal = goal
	if goal == Decommissioned {
		inst.DecommissionReason = reason
	} else {
		inst.DecommissionReason = ReasonNone
	}
	return inst
}

// IsExpungeable reports whether goal=Decommissioned and every task has
// reached a terminal condition, at which point the instance should be
// removed from the tracker and its reservation (if any) released.
func (inst Instance) IsExpungeable() bool {
	if inst.State.Goal != Decommissioned {
		return false
	}
	if len(inst.TasksMap) == 0 {
		return true
	}
	for _, t := range inst.TasksMap {
		if !IsTerminal(t.Condition) {
			return false
		}
	}
	return true
}

func aggregateHealth(tasks map[string]Task) *bool {
	falseV, trueV := false, true
	sawRunningHealthyTrue := false
	for _, t := range tasks {
		if t.Condition == Running && t.Healthy != nil && !*t.Healthy {
			return &falseV
		}
	}
	for _, t := range tasks {
		if t.Condition != Running && t.Condition != Finished {
			return nil
		}
	}
	for _, t := range tasks {
		if t.Condition == Running && t.Healthy != nil && *t.Healthy {
			sawRunningHealthyTrue = true
		}
	}
	if sawRunningHealthyTrue {
		return &trueV
	}
	return nil
}

func minStartedAt(tasks map[string]Task) *time.Time {
	var min *time.Time
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := tasks[id]
		if t.StartedAt == nil {
			continue
		}
		if min == nil || t.StartedAt.Before(*min) {
			min = t.StartedAt
		}
	}
	return min
}

func healthyEqual(a, b *bool) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
