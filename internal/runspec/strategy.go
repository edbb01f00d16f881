package runspec

import "time"

// UnreachableStrategy controls when an instance with unreachable tasks is
// promoted to UnreachableInactive.
type UnreachableStrategy struct {
	Enabled       bool
	InactiveAfter time.Duration
	ExpungeAfter  time.Duration
}

// Disabled is the zero-value strategy: unreachable tasks never promote to
// UnreachableInactive.
var Disabled = UnreachableStrategy{}

// UpgradeStrategy bounds how much capacity a Restart step may sacrifice or
// exceed while rolling.
type UpgradeStrategy struct {
	// MinimumHealthCapacity is in [0, 1]: the floor on (old+new)/target
	// instances during a restart.
	MinimumHealthCapacity float64
	// MaximumOverCapacity is in [0, 1]: the ceiling on how far above target
	// instances the restart may temporarily run.
	MaximumOverCapacity float64
}

// DefaultUpgradeStrategy matches the common Marathon default of a
// conservative rolling restart.
var DefaultUpgradeStrategy = UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0.0}

// MinimumHealthyInstances returns ceil(minimumHealthCapacity * target).
func (u UpgradeStrategy) MinimumHealthyInstances(target int) int {
	if target <= 0 {
		return 0
	}
	v := u.MinimumHealthCapacity * float64(target)
	n := int(v)
	if float64(n) < v {
		n++
	}
	return n
}

// MaximumInstances returns target + floor(maximumOverCapacity * target).
func (u UpgradeStrategy) MaximumInstances(target int) int {
	return target + int(u.MaximumOverCapacity*float64(target))
}

// VersionOrigin distinguishes a version bump that only touched instances
// (OnlyVersion) from one with a substantive config change (NewConfig).
type VersionOrigin int

const (
	OnlyVersion VersionOrigin = iota
	NewConfig
)

// VersionInfo is the timestamp + origin metadata attached to every RunSpec
// version.
type VersionInfo struct {
	Origin VersionOrigin

	// Scaled is true when NewConfig was produced purely by an instances
	// change (kept distinct from OnlyVersion so restart/scale planning can
	// tell "no config at all changed" from "config changed but only the
	// count").
	Scaled bool

	// RestartedAt records an explicit operator-requested restart.
	RestartedAt *time.Time

	// ConfigChangeAt is excluded from configFingerprint: two specs
	// differing only in this timestamp are not needsRestart.
	ConfigChangeAt time.Time
}

// HealthCheck is an app-defined liveness/readiness probe definition.
type HealthCheck struct {
	Protocol           string // "HTTP", "TCP", "COMMAND"
	Path               string
	Port               int32
	IntervalSeconds    int32
	TimeoutSeconds     int32
	MaxConsecutiveFail int32
}

// ReadinessCheck must pass before a newly started instance counts as ready
// during an upgrade.
type ReadinessCheck struct {
	Path               string
	Port               int32
	IntervalSeconds    int32
	TimeoutSeconds     int32
	HTTPStatusCodes    []int32
	PreserveLastResponse bool
}
