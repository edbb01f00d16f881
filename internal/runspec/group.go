package runspec

import (
	"time"

	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/pathid"
)

// Group is a namespace of run-specs and sub-groups.
// A RootGroup is simply the Group rooted at pathid.Root().
type Group struct {
	Id          pathid.PathId
	EnforceRole bool
	Groups      map[string]*Group  // keyed by child segment name
	RunSpecs    map[string]RunSpec // keyed by run-spec segment name
	Version     time.Time
}

// NewRoot returns an empty root group at the given version timestamp.
func NewRoot(version time.Time) *Group {
	return &Group{Id: pathid.Root(), Groups: map[string]*Group{}, RunSpecs: map[string]RunSpec{}, Version: version}
}

func (g *Group) clone() *Group {
	c := &Group{Id: g.Id, EnforceRole: g.EnforceRole, Version: g.Version,
		Groups: make(map[string]*Group, len(g.Groups)), RunSpecs: make(map[string]RunSpec, len(g.RunSpecs))}
	for k, v := range g.Groups {
		c.Groups[k] = v.clone()
	}
	for k, v := range g.RunSpecs {
		c.RunSpecs[k] = v
	}
	return c
}

// findGroup walks down from g following id's segments (relative to g.Id).
// Returns nil if any intermediate segment is missing.
func (g *Group) findGroup(id pathid.PathId) *Group {
	cur := g
	for _, seg := range relativeSegments(g.Id, id) {
		next, ok := cur.Groups[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// relativeSegments returns id's segments beyond base's, assuming id is a
// descendant of (or equal to) base.
func relativeSegments(base, id pathid.PathId) []string {
	bs := base.Segments()
	is := id.Segments()
	if len(is) < len(bs) {
		return nil
	}
	return is[len(bs):]
}

// ensureGroupPath walks/creates intermediate groups down to id, returning
// the (possibly newly created) group at id. Used internally by update ops;
// callers must have already cloned the tree being mutated.
func (g *Group) ensureGroupPath(id pathid.PathId) *Group {
	cur := g
	segs := relativeSegments(g.Id, id)
	walked := g.Id
	for _, seg := range segs {
		walked = walked.Child(seg)
		next, ok := cur.Groups[seg]
		if !ok {
			next = &Group{Id: walked, Groups: map[string]*Group{}, RunSpecs: map[string]RunSpec{}}
			cur.Groups[seg] = next
		}
		cur = next
	}
	return cur
}

// RunSpecById looks up a run-spec anywhere in the tree by absolute id.
func (g *Group) RunSpecById(id pathid.PathId) (RunSpec, bool) {
	parent := g.findGroup(id.Parent())
	if parent == nil {
		return RunSpec{}, false
	}
	rs, ok := parent.RunSpecs[id.Name()]
	return rs, ok
}

// GroupById looks up a group anywhere in the tree by absolute id.
func (g *Group) GroupById(id pathid.PathId) *Group {
	return g.findGroup(id)
}

// AllRunSpecs returns every run-spec in the tree, keyed by absolute id
// string, for planner/validation passes that need a flat view.
func (g *Group) AllRunSpecs() map[string]RunSpec {
	out := map[string]RunSpec{}
	g.collectRunSpecs(out)
	return out
}

func (g *Group) collectRunSpecs(out map[string]RunSpec) {
	for _, rs := range g.RunSpecs {
		out[rs.Id.String()] = rs
	}
	for _, child := range g.Groups {
		child.collectRunSpecs(out)
	}
}

// nearestEnforcingAncestor walks from id's containing group up to the root,
// returning the nearest ancestor group with EnforceRole=true, or nil.
func (g *Group) nearestEnforcingAncestor(id pathid.PathId) *Group {
	var chain []*Group
	cur := g
	chain = append(chain, cur)
	for _, seg := range relativeSegments(g.Id, id.Parent()) {
		next, ok := cur.Groups[seg]
		if !ok {
			break
		}
		chain = append(chain, next)
		cur = next
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].EnforceRole {
			return chain[i]
		}
	}
	return nil
}

// EffectiveRole resolves the role a run-spec at id should carry, applying
// enforce-role inheritance: the nearest enforcing ancestor's
// own name wins over any role the run-spec declared.
func (g *Group) EffectiveRole(id pathid.PathId, declared string) (string, error) {
	ancestor := g.nearestEnforcingAncestor(id)
	if ancestor == nil {
		return declared, nil
	}
	enforced := ancestor.Id.Name()
	if declared != "" && declared != enforced {
		return "", marathonerr.Wrap(marathonerr.ValidationFailure,
			"run-spec "+id.String()+" declares role "+declared+" but "+ancestor.Id.String()+" enforces role "+enforced, nil)
	}
	return enforced, nil
}
