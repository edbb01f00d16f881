package planner

import (
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// Revert produces the runspec.Change list that undoes (Target - Original)
// as applied on top of current, preserving any run-specs added after the
// plan started. Only affected ids this plan itself touched are
// considered; an id is skipped (left to whatever current holds) if
// something else has since changed it away from what this plan put in
// place, so a concurrent, unrelated update is never clobbered by the
// revert.
func (p *Plan) Revert(current *runspec.Group) ([]runspec.Change, error) {
	var changes []runspec.Change

	for _, idStr := range p.AffectedRunSpecIds {
		id, err := pathid.Parse(idStr)
		if err != nil {
			return nil, err
		}

		curSpec, curOk := current.RunSpecById(id)
		targetSpec, targetHad := p.Target.RunSpecById(id)
		originalSpec, originalHad := p.Original.RunSpecById(id)

		if targetHad {
			if !curOk {
				// Already removed by something else since; nothing to undo.
				continue
			}
			if !runspec.Identical(curSpec, targetSpec) {
				// Superseded by a later, unrelated change; leave it alone.
				continue
			}
		} else if curOk {
			// This plan never put a value here (it was a pure addition to
			// current after the plan's own target was computed); skip.
			continue
		}

		switch {
		case originalHad:
			kind := runspec.ChangePutApp
			if originalSpec.IsPod() {
				kind = runspec.ChangePutPod
			}
			changes = append(changes, runspec.Change{
				Kind: kind, Id: id, RelativeTo: pathid.Root(), Spec: originalSpec,
			})
		case curOk:
			kind := runspec.ChangeDeleteApp
			if curSpec.IsPod() {
				kind = runspec.ChangeDeletePod
			}
			changes = append(changes, runspec.Change{Kind: kind, Id: id, RelativeTo: pathid.Root()})
		}
	}

	return changes, nil
}
