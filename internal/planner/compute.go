package planner

import (
	"sort"
	"time"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// Compute builds the deployment plan transforming original into target,
// following four-stage composition. toKill supplies, per
// run-spec id, the instances a scale-down step should sentence to death
// (the scheduler's instance tracker decides that set; the planner only
// threads it through).
func Compute(original, target *runspec.Group, toKill map[string][]instance.Id, version time.Time) (*Plan, error) {
	originalSpecs := original.AllRunSpecs()
	targetSpecs := target.AllRunSpecs()

	var stops, starts []Step
	stopStep := Step{}
	for id, spec := range originalSpecs {
		if _, ok := targetSpecs[id]; !ok {
			stopStep.Actions = append(stopStep.Actions, Action{Kind: ActionStop, Spec: spec})
		}
	}
	sortActionsBySpecId(stopStep.Actions)
	if len(stopStep.Actions) > 0 {
		stops = append(stops, stopStep)
	}

	startStep := Step{}
	for id, spec := range targetSpecs {
		if _, ok := originalSpecs[id]; !ok {
			placeholder := spec
			placeholder.Instances = 0
			startStep.Actions = append(startStep.Actions, Action{Kind: ActionStart, Spec: placeholder})
		}
	}
	sortActionsBySpecId(startStep.Actions)
	if len(startStep.Actions) > 0 {
		starts = append(starts, startStep)
	}

	affected := affectedIds(originalSpecs, targetSpecs)
	depths := target.LongestPathLengths()

	byDepth := map[int][]string{}
	maxDepth := -1
	for _, id := range affected {
		d := depths[id]
		byDepth[d] = append(byDepth[d], id)
		if d > maxDepth {
			maxDepth = d
		}
	}

	var layered []Step
	for d := 0; d <= maxDepth; d++ {
		ids := byDepth[d]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		step := Step{}
		for _, id := range ids {
			targetSpec, inTarget := targetSpecs[id]
			if !inTarget {
				// Affected solely because it was deleted; already handled
				// by the Step 0 stop above.
				continue
			}
			originalSpec, inOriginal := originalSpecs[id]

			switch {
			case !inOriginal:
				step.Actions = append(step.Actions, Action{Kind: ActionScale, Spec: targetSpec, To: targetSpec.Instances})
			case runspec.IsOnlyScaleChange(originalSpec, targetSpec) || targetSpec.Instances == 0:
				step.Actions = append(step.Actions, Action{
					Kind: ActionScale, Spec: targetSpec, To: targetSpec.Instances,
					SentencedToDeath: toKill[id],
				})
			case runspec.NeedsRestart(originalSpec, targetSpec):
				step.Actions = append(step.Actions, Action{Kind: ActionRestart, Spec: targetSpec})
			}
		}
		if len(step.Actions) > 0 {
			layered = append(layered, step)
		}
	}

	var steps []Step
	steps = append(steps, stops...)
	steps = append(steps, starts...)
	steps = append(steps, layered...)

	return &Plan{
		Id:                 NewPlanId(),
		Original:           original,
		Target:             target,
		Steps:              steps,
		Version:            version,
		AffectedRunSpecIds: affected,
	}, nil
}

// affectedIds is the symmetric difference of ids (added xor removed) union
// ids present in both whose spec changed.
func affectedIds(original, target map[string]runspec.RunSpec) []string {
	set := map[string]bool{}
	for id := range original {
		if _, ok := target[id]; !ok {
			set[id] = true
		}
	}
	for id, t := range target {
		o, ok := original[id]
		if !ok || !runspec.Identical(o, t) {
			set[id] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortActionsBySpecId(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].Spec.Id.Less(actions[j].Spec.Id) })
}
