// Package runspec implements the immutable RunSpec model:
// the App|Pod tagged variant, role inheritance, version metadata and the
// dependency graph over run-spec ids.
package runspec

import (
	"sort"

	"github.com/kindling-sh/marathon/internal/pathid"
)

// Kind is the RunSpec tag. Polymorphic behavior is implemented as
// exhaustive switches over Kind rather than an interface hierarchy.
type Kind int

const (
	KindApp Kind = iota
	KindPod
)

func (k Kind) String() string {
	if k == KindPod {
		return "Pod"
	}
	return "App"
}

// PodContainer is one container within a PodDefinition; pods run one task
// per container.
type PodContainer struct {
	Name      string
	Image     string
	Resources Resources
	Command   []string
}

// RunSpec is the sum type {AppDefinition, PodDefinition}. Values are
// immutable: every mutation produces a new RunSpec with a bumped Version
// rather than editing in place.
type RunSpec struct {
	Kind Kind
	Id   pathid.PathId

	Version VersionInfo
	Role    string

	Instances int
	Resources Resources

	Unreachable UnreachableStrategy
	Upgrade     UpgradeStrategy

	HealthChecks    []HealthCheck
	ReadinessChecks []ReadinessCheck

	// Dependencies is the set of run-spec ids this spec depends on. Edge
	// direction: "a -> b means b depends on a", so these are
	// the ids that must be Running before this spec is considered healthy
	// for dependency-ordering purposes: it is the "b" side reading its own
	// "a" predecessors.
	Dependencies []pathid.PathId

	// App-only fields (Kind == KindApp). Zero-valued for pods.
	Command   string
	Args      []string
	Container string
	Env       map[string]string

	// Pod-only fields (Kind == KindPod). Empty for apps.
	Containers []PodContainer
}

// IsApp reports whether this is an AppDefinition.
func (r RunSpec) IsApp() bool { return r.Kind == KindApp }

// IsPod reports whether this is a PodDefinition.
func (r RunSpec) IsPod() bool { return r.Kind == KindPod }

// TaskCount is the number of tasks one instance of this spec launches: 1
// for an app, len(Containers) for a pod.
func (r RunSpec) TaskCount() int {
	if r.Kind == KindPod {
		if len(r.Containers) == 0 {
			return 1
		}
		return len(r.Containers)
	}
	return 1
}

// IsScaledToZero reports whether the spec currently targets zero instances.
func (r RunSpec) IsScaledToZero() bool { return r.Instances == 0 }

// DependencyIds returns a sorted copy of Dependencies for deterministic
// iteration (planner tie-breaks, cycle detection).
func (r RunSpec) DependencyIds() []pathid.PathId {
	out := append([]pathid.PathId{}, r.Dependencies...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// configFingerprint is everything about a RunSpec that should trigger a
// Restart if it changes, explicitly excluding Instances (scale-only
// changes use Scale, not Restart) and all of VersionInfo: comparing on a
// canonical, version-info-stripped form avoids spurious restarts from
// clock adjustments alone.
type configFingerprint struct {
	role        string
	resources   Resources
	unreachable UnreachableStrategy
	upgrade     UpgradeStrategy
	health      string
	readiness   string
	deps        string
	command     string
	args        string
	container   string
	env         string
	containers  string
}

func (r RunSpec) fingerprint() configFingerprint {
	return configFingerprint{
		role:        r.Role,
		resources:   r.Resources,
		unreachable: r.Unreachable,
		upgrade:     r.Upgrade,
		health:      healthChecksKey(r.HealthChecks),
		readiness:   readinessChecksKey(r.ReadinessChecks),
		deps:        depsKey(r.DependencyIds()),
		command:     r.Command,
		args:        stringsKey(r.Args),
		container:   r.Container,
		env:         envKey(r.Env),
		containers:  containersKey(r.Containers),
	}
}

func (a configFingerprint) equal(b configFingerprint) bool {
	return a.role == b.role &&
		a.resources.Equal(b.resources) &&
		a.unreachable == b.unreachable &&
		a.upgrade == b.upgrade &&
		a.health == b.health &&
		a.readiness == b.readiness &&
		a.deps == b.deps &&
		a.command == b.command &&
		a.args == b.args &&
		a.container == b.container &&
		a.env == b.env &&
		a.containers == b.containers
}

// IsOnlyScaleChange reports whether a and b (same id, different versions)
// differ only in Instances.
func IsOnlyScaleChange(a, b RunSpec) bool {
	return a.fingerprint().equal(b.fingerprint()) && a.Instances != b.Instances
}

// NeedsRestart reports whether any field other than Instances or
// version-info timestamps differs between a and b.
func NeedsRestart(a, b RunSpec) bool {
	return !a.fingerprint().equal(b.fingerprint())
}

// Identical reports whether a and b are indistinguishable for planning
// purposes: same fingerprint and same instance count.
func Identical(a, b RunSpec) bool {
	return a.fingerprint().equal(b.fingerprint()) && a.Instances == b.Instances
}
