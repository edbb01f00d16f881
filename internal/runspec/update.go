package runspec

import (
	"time"

	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/pathid"
)

// ChangeKind tags which operation a Change performs.
type ChangeKind int

const (
	ChangePutApp ChangeKind = iota
	ChangePutPod
	ChangePutGroup
	ChangeDeleteApp
	ChangeDeletePod
	ChangeDeleteGroup
	ChangeSetEnforceRole
)

// Change is one operation in a root-group update. RelativeTo is the group
// path the operation's (possibly relative) Id should resolve against.
type Change struct {
	Kind        ChangeKind
	Id          pathid.PathId
	RelativeTo  pathid.PathId
	Spec        RunSpec // for ChangePutApp / ChangePutPod
	EnforceRole bool    // for ChangePutGroup / ChangeSetEnforceRole
}

// resolvedId resolves c.Id relative to c.RelativeTo
func (c Change) resolvedId() pathid.PathId {
	return c.Id.Resolve(c.RelativeTo)
}

// Update applies one or more changes to root, returning a new root group or
// a *marathonerr.Error on any rule violation. The previous
// root is left untouched; Update always works on a clone.
func Update(root *Group, version time.Time, changes ...Change) (*Group, error) {
	next := root.clone()
	touchedGroupsForEnforce := map[string]bool{}
	runSpecTouched := map[string]bool{}

	for _, c := range changes {
		id := c.resolvedId()
		switch c.Kind {
		case ChangePutApp, ChangePutPod:
			if err := applyPutRunSpec(next, id, c); err != nil {
				return nil, err
			}
			runSpecTouched[id.Parent().String()] = true
		case ChangePutGroup:
			if err := applyPutGroup(next, id, c.EnforceRole); err != nil {
				return nil, err
			}
			touchedGroupsForEnforce[id.String()] = true
		case ChangeDeleteApp, ChangeDeletePod:
			if err := applyDeleteRunSpec(next, id); err != nil {
				return nil, err
			}
			runSpecTouched[id.Parent().String()] = true
		case ChangeDeleteGroup:
			if err := applyDeleteGroup(next, id); err != nil {
				return nil, err
			}
		case ChangeSetEnforceRole:
			g := next.GroupById(id)
			if g == nil {
				return nil, marathonerr.Wrap(marathonerr.ValidationFailure, "unknown group "+id.String(), nil)
			}
			g.EnforceRole = c.EnforceRole
			touchedGroupsForEnforce[id.String()] = true
		}
	}

	// Enforce-role toggles are rejected if the same update also changes
	// run-specs under that group.
	for gid := range touchedGroupsForEnforce {
		for rsParent := range runSpecTouched {
			if rsParent == gid || isDescendantPath(rsParent, gid) {
				return nil, marathonerr.Wrap(marathonerr.ValidationFailure,
					"cannot change enforceRole and run-specs under "+gid+" in the same update", nil)
			}
		}
	}

	if err := validateRoleInheritance(next); err != nil {
		return nil, err
	}
	if err := validateNoIdCollisions(next); err != nil {
		return nil, err
	}
	if err := validateDependenciesAcyclic(next); err != nil {
		return nil, err
	}

	next.Version = version
	return next, nil
}

func isDescendantPath(candidate, ancestor string) bool {
	if ancestor == "/" {
		return true
	}
	return len(candidate) > len(ancestor) && candidate[:len(ancestor)] == ancestor && candidate[len(ancestor)] == '/'
}

func applyPutRunSpec(root *Group, id pathid.PathId, c Change) error {
	parent := root.ensureGroupPath(id.Parent())
	if _, exists := parent.Groups[id.Name()]; exists {
		return marathonerr.Wrap(marathonerr.Conflict, "id "+id.String()+" collides with an existing group", nil)
	}
	spec := c.Spec
	spec.Id = id
	parent.RunSpecs[id.Name()] = spec
	return nil
}

func applyDeleteRunSpec(root *Group, id pathid.PathId) error {
	parent := root.findGroup(id.Parent())
	if parent == nil {
		return marathonerr.Wrap(marathonerr.ValidationFailure, "unknown run-spec "+id.String(), nil)
	}
	if _, ok := parent.RunSpecs[id.Name()]; !ok {
		return marathonerr.Wrap(marathonerr.ValidationFailure, "unknown run-spec "+id.String(), nil)
	}
	delete(parent.RunSpecs, id.Name())
	return nil
}

func applyPutGroup(root *Group, id pathid.PathId, enforceRole bool) error {
	parent := root.ensureGroupPath(id.Parent())
	if _, exists := parent.RunSpecs[id.Name()]; exists {
		return marathonerr.Wrap(marathonerr.Conflict, "id "+id.String()+" collides with an existing run-spec", nil)
	}
	if existing, ok := parent.Groups[id.Name()]; ok {
		existing.EnforceRole = enforceRole
		return nil
	}
	parent.Groups[id.Name()] = &Group{Id: id, EnforceRole: enforceRole, Groups: map[string]*Group{}, RunSpecs: map[string]RunSpec{}}
	return nil
}

func applyDeleteGroup(root *Group, id pathid.PathId) error {
	parent := root.findGroup(id.Parent())
	if parent == nil {
		return marathonerr.Wrap(marathonerr.ValidationFailure, "unknown group "+id.String(), nil)
	}
	if _, ok := parent.Groups[id.Name()]; !ok {
		return marathonerr.Wrap(marathonerr.ValidationFailure, "unknown group "+id.String(), nil)
	}
	delete(parent.Groups, id.Name())
	return nil
}

// validateRoleInheritance re-resolves every run-spec's effective role,
// rejecting declared roles that conflict with an enforcing ancestor.
func validateRoleInheritance(root *Group) error {
	for _, rs := range root.AllRunSpecs() {
		if _, err := root.EffectiveRole(rs.Id, rs.Role); err != nil {
			return err
		}
	}
	return nil
}

// validateNoIdCollisions checks the global invariant that a group id and a
// run-spec id never collide anywhere in the tree; the
// per-parent checks in applyPut* already cover direct collisions, this is
// the whole-tree sweep for paranoia after batched changes.
func validateNoIdCollisions(root *Group) error {
	runSpecs := root.AllRunSpecs()
	var walk func(g *Group) error
	walk = func(g *Group) error {
		for name, child := range g.Groups {
			_ = name
			if _, ok := runSpecs[child.Id.String()]; ok {
				return marathonerr.Wrap(marathonerr.Conflict, "group/run-spec id collision at "+child.Id.String(), nil)
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// validateDependenciesAcyclic rebuilds the dependency graph over every
// run-spec in root and rejects it if it contains a cycle.
func validateDependenciesAcyclic(root *Group) error {
	specs := root.AllRunSpecs()
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return marathonerr.Wrap(marathonerr.ValidationFailure, "dependency cycle involving "+id, nil)
		}
		color[id] = gray
		if rs, ok := specs[id]; ok {
			for _, dep := range rs.DependencyIds() {
				if _, known := specs[dep.String()]; known {
					if err := visit(dep.String()); err != nil {
						return err
					}
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range specs {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
