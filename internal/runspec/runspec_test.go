package runspec_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

var _ = Describe("RunSpec change classification", func() {
	base := runspec.RunSpec{
		Kind:      runspec.KindApp,
		Id:        pathid.MustParse("/web"),
		Role:      "infra",
		Instances: 3,
		Command:   "serve",
		Version:   runspec.VersionInfo{ConfigChangeAt: time.Unix(1000, 0)},
	}

	It("treats an identical copy as needing no restart and not a scale change", func() {
		other := base
		Expect(runspec.NeedsRestart(base, other)).To(BeFalse())
		Expect(runspec.IsOnlyScaleChange(base, other)).To(BeFalse())
		Expect(runspec.Identical(base, other)).To(BeTrue())
	})

	It("treats a change only to Instances as a scale-only change, not a restart", func() {
		scaled := base
		scaled.Instances = 5
		Expect(runspec.IsOnlyScaleChange(base, scaled)).To(BeTrue())
		Expect(runspec.NeedsRestart(base, scaled)).To(BeFalse())
		Expect(runspec.Identical(base, scaled)).To(BeFalse())
	})

	It("ignores a version timestamp change with nothing else different", func() {
		bumped := base
		bumped.Version.ConfigChangeAt = time.Unix(2000, 0)
		Expect(runspec.NeedsRestart(base, bumped)).To(BeFalse())
		Expect(runspec.IsOnlyScaleChange(base, bumped)).To(BeFalse())
	})

	It("requires a restart when Command changes", func() {
		changed := base
		changed.Command = "serve-v2"
		Expect(runspec.NeedsRestart(base, changed)).To(BeTrue())
		Expect(runspec.IsOnlyScaleChange(base, changed)).To(BeFalse())
	})

	It("requires a restart when a dependency is added, independent of declaration order", func() {
		withDeps := base
		withDeps.Dependencies = []pathid.PathId{pathid.MustParse("/b"), pathid.MustParse("/a")}
		reordered := withDeps
		reordered.Dependencies = []pathid.PathId{pathid.MustParse("/a"), pathid.MustParse("/b")}
		Expect(runspec.NeedsRestart(withDeps, reordered)).To(BeFalse())
		Expect(runspec.NeedsRestart(base, withDeps)).To(BeTrue())
	})

	It("requires a restart when the environment map changes regardless of iteration order", func() {
		a := base
		a.Env = map[string]string{"A": "1", "B": "2"}
		b := base
		b.Env = map[string]string{"B": "2", "A": "1"}
		Expect(runspec.NeedsRestart(a, b)).To(BeFalse())

		c := base
		c.Env = map[string]string{"A": "1", "B": "3"}
		Expect(runspec.NeedsRestart(a, c)).To(BeTrue())
	})

	It("requires a restart when a pod's container image changes", func() {
		pod := runspec.RunSpec{
			Kind:       runspec.KindPod,
			Id:         pathid.MustParse("/worker"),
			Instances:  2,
			Containers: []runspec.PodContainer{{Name: "main", Image: "v1"}},
		}
		updated := pod
		updated.Containers = []runspec.PodContainer{{Name: "main", Image: "v2"}}
		Expect(runspec.NeedsRestart(pod, updated)).To(BeTrue())
	})
})

var _ = Describe("RunSpec helpers", func() {
	It("reports TaskCount as 1 for an app", func() {
		app := runspec.RunSpec{Kind: runspec.KindApp}
		Expect(app.TaskCount()).To(Equal(1))
	})

	It("reports TaskCount as the container count for a pod", func() {
		pod := runspec.RunSpec{Kind: runspec.KindPod, Containers: []runspec.PodContainer{{}, {}, {}}}
		Expect(pod.TaskCount()).To(Equal(3))
	})

	It("reports TaskCount as 1 for a pod declaring no containers", func() {
		pod := runspec.RunSpec{Kind: runspec.KindPod}
		Expect(pod.TaskCount()).To(Equal(1))
	})

	It("sorts DependencyIds deterministically", func() {
		rs := runspec.RunSpec{Dependencies: []pathid.PathId{pathid.MustParse("/c"), pathid.MustParse("/a"), pathid.MustParse("/b")}}
		ids := rs.DependencyIds()
		Expect(ids).To(HaveLen(3))
		Expect(ids[0].String()).To(Equal("/a"))
		Expect(ids[1].String()).To(Equal("/b"))
		Expect(ids[2].String()).To(Equal("/c"))
	})

	It("reports IsScaledToZero only at zero instances", func() {
		Expect(runspec.RunSpec{Instances: 0}.IsScaledToZero()).To(BeTrue())
		Expect(runspec.RunSpec{Instances: 1}.IsScaledToZero()).To(BeFalse())
	})
})
