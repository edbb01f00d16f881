package runspec_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
)

var _ = Describe("Group role inheritance", func() {
	now := time.Unix(1700000000, 0)

	buildRoot := func() *runspec.Group {
		root, err := runspec.Update(runspec.NewRoot(now), now,
			runspec.Change{Kind: runspec.ChangePutGroup, Id: pathid.MustParse("/infra"), EnforceRole: true},
			runspec.Change{Kind: runspec.ChangePutGroup, Id: pathid.MustParse("/infra/db"), EnforceRole: false},
		)
		Expect(err).NotTo(HaveOccurred())
		return root
	}

	It("resolves no role for a run-spec outside any enforcing group", func() {
		root := buildRoot()
		role, err := root.EffectiveRole(pathid.MustParse("/standalone/app"), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(""))
	})

	It("passes through a declared role when nothing enforces one", func() {
		root := buildRoot()
		role, err := root.EffectiveRole(pathid.MustParse("/standalone/app"), "custom")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal("custom"))
	})

	It("enforces the nearest ancestor's name onto a run-spec with no declared role", func() {
		root := buildRoot()
		role, err := root.EffectiveRole(pathid.MustParse("/infra/app"), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal("infra"))
	})

	It("inherits the enforcing ancestor through a non-enforcing intermediate group", func() {
		root := buildRoot()
		role, err := root.EffectiveRole(pathid.MustParse("/infra/db/app"), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal("infra"))
	})

	It("accepts a declared role matching the enforced one", func() {
		root := buildRoot()
		role, err := root.EffectiveRole(pathid.MustParse("/infra/app"), "infra")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal("infra"))
	})

	It("rejects a declared role conflicting with the enforced one", func() {
		root := buildRoot()
		_, err := root.EffectiveRole(pathid.MustParse("/infra/app"), "other")
		Expect(err).To(HaveOccurred())
	})

	It("rejects the conflict at Update time for a put carrying the wrong role", func() {
		root := buildRoot()
		_, err := runspec.Update(root, now, runspec.Change{
			Kind: runspec.ChangePutApp,
			Id:   pathid.MustParse("/infra/app"),
			Spec: runspec.RunSpec{Kind: runspec.KindApp, Role: "other", Instances: 1},
		})
		Expect(err).To(HaveOccurred())
	})

	It("allows a nested enforcing group to override its parent's enforced role", func() {
		root, err := runspec.Update(runspec.NewRoot(now), now,
			runspec.Change{Kind: runspec.ChangePutGroup, Id: pathid.MustParse("/infra"), EnforceRole: true},
			runspec.Change{Kind: runspec.ChangePutGroup, Id: pathid.MustParse("/infra/special"), EnforceRole: true},
		)
		Expect(err).NotTo(HaveOccurred())
		role, err := root.EffectiveRole(pathid.MustParse("/infra/special/app"), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal("special"))
	})
})
