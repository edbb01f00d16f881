package runspec_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/runspec"
)

var _ = Describe("UpgradeStrategy", func() {
	Describe("MinimumHealthyInstances", func() {
		It("rounds up a fractional floor", func() {
			s := runspec.UpgradeStrategy{MinimumHealthCapacity: 0.5}
			Expect(s.MinimumHealthyInstances(5)).To(Equal(3))
		})

		It("requires full capacity under the default strategy", func() {
			Expect(runspec.DefaultUpgradeStrategy.MinimumHealthyInstances(4)).To(Equal(4))
		})

		It("returns zero for a non-positive target", func() {
			s := runspec.UpgradeStrategy{MinimumHealthCapacity: 1.0}
			Expect(s.MinimumHealthyInstances(0)).To(Equal(0))
			Expect(s.MinimumHealthyInstances(-3)).To(Equal(0))
		})

		It("requires nothing when the floor is zero", func() {
			s := runspec.UpgradeStrategy{MinimumHealthCapacity: 0}
			Expect(s.MinimumHealthyInstances(10)).To(Equal(0))
		})
	})

	Describe("MaximumInstances", func() {
		It("adds no headroom under the default strategy", func() {
			Expect(runspec.DefaultUpgradeStrategy.MaximumInstances(4)).To(Equal(4))
		})

		It("floors the over-capacity headroom", func() {
			s := runspec.UpgradeStrategy{MaximumOverCapacity: 0.34}
			Expect(s.MaximumInstances(5)).To(Equal(6)) // 5 + floor(1.7) = 6
		})

		It("allows doubling at maximum over-capacity of 1.0", func() {
			s := runspec.UpgradeStrategy{MaximumOverCapacity: 1.0}
			Expect(s.MaximumInstances(3)).To(Equal(6))
		})
	})
})
