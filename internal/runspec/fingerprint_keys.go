package runspec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kindling-sh/marathon/internal/pathid"
)

// The helpers below turn slices/maps into a stable, order-independent (for
// maps) or order-preserving (for slices, where order is semantically
// meaningful, e.g. command args) string key so configFingerprint can be
// compared with ==. They trade a small amount of allocation for avoiding a
// reflect.DeepEqual dependency on the hot comparison path the planner runs
// over every affected run-spec.

func stringsKey(ss []string) string {
	return strings.Join(ss, "\x00")
}

func envKey(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\x00", k, env[k])
	}
	return b.String()
}

func depsKey(ids []pathid.PathId) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, "\x00")
}

func healthChecksKey(checks []HealthCheck) string {
	var b strings.Builder
	for _, c := range checks {
		fmt.Fprintf(&b, "%s|%s|%d|%d|%d|%d\x00",
			c.Protocol, c.Path, c.Port, c.IntervalSeconds, c.TimeoutSeconds, c.MaxConsecutiveFail)
	}
	return b.String()
}

func readinessChecksKey(checks []ReadinessCheck) string {
	var b strings.Builder
	for _, c := range checks {
		fmt.Fprintf(&b, "%s|%d|%d|%d|%v|%v\x00",
			c.Path, c.Port, c.IntervalSeconds, c.TimeoutSeconds, c.HTTPStatusCodes, c.PreserveLastResponse)
	}
	return b.String()
}

func containersKey(cs []PodContainer) string {
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "%s|%s|%s|%s\x00",
			c.Name, c.Image, stringsKey(c.Command), c.Resources.CPU.String()+c.Resources.Mem.String()+c.Resources.Disk.String()+c.Resources.GPUs.String())
	}
	return b.String()
}
