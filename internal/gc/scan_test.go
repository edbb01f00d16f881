package gc

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("classify", func() {
	// versions is oldest-first, matching repository.VersionedRepository.Versions.
	oldest := time.Unix(1000, 0)
	middle := time.Unix(2000, 0)
	newest := time.Unix(3000, 0)
	versions := []time.Time{oldest, middle, newest}

	It("keeps the newest maxVersions and deletes the rest when referenced", func() {
		whole, toDelete := classify(versions, 1, nil, true)
		Expect(whole).To(BeFalse())
		Expect(toDelete).To(ConsistOf(oldest.String(), middle.String()))
	})

	It("keeps the newest two when maxVersions is two", func() {
		whole, toDelete := classify(versions, 2, nil, true)
		Expect(whole).To(BeFalse())
		Expect(toDelete).To(ConsistOf(oldest.String()))
	})

	It("never drops the newest version even when maxVersions is zero or negative", func() {
		for _, max := range []int{0, -1, -5} {
			whole, toDelete := classify(versions, max, nil, true)
			Expect(whole).To(BeFalse())
			Expect(toDelete).To(ConsistOf(oldest.String(), middle.String()), "maxVersions=%d", max)
		}
	})

	It("retains an older version that is still individually referenced", func() {
		referenced := map[string]bool{oldest.String(): true}
		whole, toDelete := classify(versions, 1, referenced, true)
		Expect(whole).To(BeFalse())
		Expect(toDelete).To(ConsistOf(middle.String()))
	})

	It("marks the whole entity deletable, including its newest version, once nothing references it", func() {
		whole, toDelete := classify(versions, 5, nil, false)
		Expect(whole).To(BeTrue())
		Expect(toDelete).To(ConsistOf(oldest.String(), middle.String(), newest.String()))
	})

	It("returns nothing to delete for an entity with no version history", func() {
		whole, toDelete := classify(nil, 2, nil, true)
		Expect(whole).To(BeFalse())
		Expect(toDelete).To(BeEmpty())
	})
})
