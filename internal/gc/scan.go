package gc

import (
	"context"
	"time"

	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/runspec"
)

// ScanResult is the deletion candidate set the scan produced, before
// subtracting anything concurrently stored during the scan.
type ScanResult struct {
	AppsToDelete        []EntityRef
	AppVersionsToDelete []EntityRef
	PodsToDelete        []EntityRef
	PodVersionsToDelete []EntityRef
	RootsToDelete       []EntityRef
}

// All flattens the result into one slice for the FSM's subtraction step.
func (r ScanResult) All() []EntityRef {
	var out []EntityRef
	out = append(out, r.AppsToDelete...)
	out = append(out, r.AppVersionsToDelete...)
	out = append(out, r.PodsToDelete...)
	out = append(out, r.PodVersionsToDelete...)
	out = append(out, r.RootsToDelete...)
	return out
}

// Source is the read-only view over the repositories and in-flight
// deployments the scan needs. A failure in any one method is swallowed by
// Scan and treated as "nothing to delete in this branch", erring toward
// keeping data rather than deleting it on an uncertain read.
type Source interface {
	CurrentRoot(ctx context.Context) (*runspec.Group, error)
	RecentRootVersions(ctx context.Context, limit int) ([]*runspec.Group, error)
	InFlightPlans(ctx context.Context) ([]*planner.Plan, error)

	AppIds(ctx context.Context) ([]string, error)
	AppVersions(ctx context.Context, id string) ([]time.Time, error)
	PodIds(ctx context.Context) ([]string, error)
	PodVersions(ctx context.Context, id string) ([]time.Time, error)
	RootVersionTimestamps(ctx context.Context) ([]time.Time, error)
}

// Scanner runs the scan algorithm against a Source with configured
// retention thresholds.
type Scanner struct {
	Source          Source
	MaxRootVersions int
	MaxVersions     int // per run-spec, applies to both app and pod version history
}

// Scan computes, for apps/pods/roots, the versions referenced by the
// current root, the last MaxRootVersions root versions, and every
// in-flight deployment's original/target roots; anything else beyond the
// first MaxVersions most-recent versions per id is a deletion candidate.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	referencedApps := map[string]map[string]bool{}  // runSpecId -> versionKey -> referenced
	referencedPods := map[string]map[string]bool{}
	referencedAppWhole := map[string]bool{}
	referencedPodWhole := map[string]bool{}

	mark := func(g *runspec.Group) {
		if g == nil {
			return
		}
		for id, rs := range g.AllRunSpecs() {
			vkey := rs.Version.ConfigChangeAt.String()
			if rs.IsPod() {
				referencedPodWhole[id] = true
				if referencedPods[id] == nil {
					referencedPods[id] = map[string]bool{}
				}
				referencedPods[id][vkey] = true
			} else {
				referencedAppWhole[id] = true
				if referencedApps[id] == nil {
					referencedApps[id] = map[string]bool{}
				}
				referencedApps[id][vkey] = true
			}
		}
	}

	// Without a complete reference set every app/pod would look
	// unreferenced, so a failed reference read means nothing is deleted.
	root, err := s.Source.CurrentRoot(ctx)
	if err != nil {
		return ScanResult{}, nil
	}
	mark(root)

	rootVersions, err := s.Source.RecentRootVersions(ctx, s.MaxRootVersions)
	if err != nil {
		return ScanResult{}, nil
	}
	for _, g := range rootVersions {
		mark(g)
	}

	plans, err := s.Source.InFlightPlans(ctx)
	if err != nil {
		return ScanResult{}, nil
	}
	for _, p := range plans {
		mark(p.Original)
		mark(p.Target)
	}

	result := ScanResult{}

	appIds, err := s.Source.AppIds(ctx)
	if err == nil {
		for _, id := range appIds {
			versions, verr := s.Source.AppVersions(ctx, id)
			if verr != nil {
				continue
			}
			whole, toDeleteVersions := classify(versions, s.MaxVersions, referencedApps[id], referencedAppWhole[id])
			if whole {
				result.AppsToDelete = append(result.AppsToDelete, EntityRef{Kind: "app", Id: id})
			}
			for _, v := range toDeleteVersions {
				result.AppVersionsToDelete = append(result.AppVersionsToDelete, EntityRef{Kind: "app", Id: id, Version: v})
			}
		}
	}

	podIds, err := s.Source.PodIds(ctx)
	if err == nil {
		for _, id := range podIds {
			versions, verr := s.Source.PodVersions(ctx, id)
			if verr != nil {
				continue
			}
			whole, toDeleteVersions := classify(versions, s.MaxVersions, referencedPods[id], referencedPodWhole[id])
			if whole {
				result.PodsToDelete = append(result.PodsToDelete, EntityRef{Kind: "pod", Id: id})
			}
			for _, v := range toDeleteVersions {
				result.PodVersionsToDelete = append(result.PodVersionsToDelete, EntityRef{Kind: "pod", Id: id, Version: v})
			}
		}
	}

	if rootTimestamps, err := s.Source.RootVersionTimestamps(ctx); err == nil {
		if len(rootTimestamps) > s.MaxRootVersions {
			for _, t := range rootTimestamps[:len(rootTimestamps)-s.MaxRootVersions] {
				result.RootsToDelete = append(result.RootsToDelete, EntityRef{Kind: "root", Version: t.String()})
			}
		}
	}

	return result, nil
}

// versionKeyLayout is the layout time.Time.String() formats with, and the
// layout ParseVersionKey reads EntityRef.Version back with:
// Scan stamps every version candidate with v.String() (see classify and
// the root-version branch above), so a Compactor turning an EntityRef back
// into the timestamp Delete/DeleteVersion expect must parse it the same way.
const versionKeyLayout = "2006-01-02 15:04:05.999999999 -0700 MST"

// ParseVersionKey recovers the time.Time a Scanner encoded into
// EntityRef.Version.
func ParseVersionKey(s string) (time.Time, error) {
	return time.Parse(versionKeyLayout, s)
}

// classify decides, for one run-spec's version history, whether the whole
// entity is unreferenced (no live root/deployment points at any version of
// it) and which individual versions beyond MaxVersions and unreferenced
// are deletion candidates.
//
// versions is oldest-first (repository.VersionedRepository.Versions), so
// the newest entries are at the end of the slice.
func classify(versions []time.Time, maxVersions int, referencedVersions map[string]bool, referencedWhole bool) (wholeEntityDeletable bool, versionsToDelete []string) {
	if len(versions) == 0 {
		return false, nil
	}

	if !referencedWhole {
		// Nothing anywhere (current root, recent root history, in-flight
		// plans) points at this run-spec id anymore: the whole entity,
		// including every version, is deletable. There is no "most
		// recent version" left to protect for an entity that no longer
		// exists.
		versionsToDelete = make([]string, len(versions))
		for i, v := range versions {
			versionsToDelete[i] = v.String()
		}
		return true, versionsToDelete
	}

	// keep is floored at 1 so that an entity still referenced somewhere
	// never loses its most recent version to a misconfigured (<=0)
	// MaxVersions.
	keep := maxVersions
	if keep < 1 {
		keep = 1
	}
	if keep > len(versions) {
		keep = len(versions)
	}
	cutoff := len(versions) - keep
	for i, v := range versions {
		if i >= cutoff {
			continue
		}
		key := v.String()
		if referencedVersions[key] {
			continue
		}
		versionsToDelete = append(versionsToDelete, key)
	}
	return false, versionsToDelete
}
