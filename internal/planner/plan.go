// Package planner computes the ordered, dependency-respecting deployment
// plan transforming a current root group into a target root group. The
// planner is pure and stateless: every function here is safe to call
// from any goroutine with no shared state.
package planner

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// ActionKind is the tag of a DeploymentStep action.
type ActionKind int

const (
	ActionStart ActionKind = iota
	ActionStop
	ActionScale
	ActionRestart
)

func (k ActionKind) String() string {
	switch k {
	case ActionStart:
		return "Start"
	case ActionStop:
		return "Stop"
	case ActionScale:
		return "Scale"
	case ActionRestart:
		return "Restart"
	default:
		return "Unknown"
	}
}

// Action is one action within a DeploymentStep.
type Action struct {
	Kind ActionKind
	Spec runspec.RunSpec

	// To is the scale target for ActionScale.
	To int

	// SentencedToDeath names instances a Scale-down must kill.
	SentencedToDeath []instance.Id
}

// Step is an unordered set of actions runnable in parallel.
type Step struct {
	Actions []Action
}

// Plan is the ordered sequence of steps transforming Original into Target.
type Plan struct {
	Id       string
	Original *runspec.Group
	Target   *runspec.Group
	Steps    []Step
	Version  time.Time

	// AffectedRunSpecIds is the symmetric difference of run-spec ids
	// (present-in-target xor present-in-original) union ids whose spec
	// bytes changed.
	AffectedRunSpecIds []string
}

// NewPlanId mints a fresh plan id (v4 UUID; plan ids have no ordering
// requirement the way instance ids do).
func NewPlanId() string { return uuid.New().String() }

// sortedIds renders a []pathid.PathId as sorted strings for deterministic
// iteration.
func sortedIds(ids []pathid.PathId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}
