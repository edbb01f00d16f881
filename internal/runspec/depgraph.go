package runspec

// LongestPathLengths computes, for every run-spec id in root, the length of
// the longest chain of transitive dependencies below it: 0 for a run-spec
// with no dependencies (a "leaf" that depends on nothing downstream),
// 1 + max(length of each direct dependency) otherwise.
// Dependencies outside root's run-spec set don't extend the chain (they are
// not actionable by the planner). The graph must already be acyclic
// (validateDependenciesAcyclic enforces this on every Update).
func (g *Group) LongestPathLengths() map[string]int {
	specs := g.AllRunSpecs()
	memo := map[string]int{}
	var depth func(id string) int
	depth = func(id string) int {
		if v, ok := memo[id]; ok {
			return v
		}
		memo[id] = 0 // break cycles defensively; validated acyclic upstream
		rs, ok := specs[id]
		if !ok {
			return 0
		}
		max := 0
		for _, dep := range rs.DependencyIds() {
			depId := dep.String()
			if _, known := specs[depId]; !known {
				continue
			}
			if d := depth(depId) + 1; d > max {
				max = d
			}
		}
		memo[id] = max
		return max
	}
	for id := range specs {
		depth(id)
	}
	return memo
}
