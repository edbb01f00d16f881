package pathid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/pathid"
)

var _ = Describe("PathId", func() {
	Describe("Parse", func() {
		It("parses an absolute multi-segment path", func() {
			p, err := pathid.Parse("/group/app")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.IsAbsolute()).To(BeTrue())
			Expect(p.Segments()).To(Equal([]string{"group", "app"}))
			Expect(p.String()).To(Equal("/group/app"))
		})

		It("parses a relative path with no leading slash", func() {
			p, err := pathid.Parse("app")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.IsAbsolute()).To(BeFalse())
			Expect(p.String()).To(Equal("app"))
		})

		It("rejects an empty string", func() {
			_, err := pathid.Parse("")
			Expect(err).To(HaveOccurred())
		})

		It("rejects a path with an empty segment", func() {
			_, err := pathid.Parse("/group//app")
			Expect(err).To(HaveOccurred())
		})

		It("rejects a segment containing the reserved '.' character", func() {
			_, err := pathid.Parse("/group/app.v2")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Root", func() {
		It("is absolute with no segments", func() {
			r := pathid.Root()
			Expect(r.IsRoot()).To(BeTrue())
			Expect(r.String()).To(Equal("/"))
		})
	})

	Describe("Parent and Name", func() {
		It("returns the containing path and final segment", func() {
			p := pathid.MustParse("/group/sub/app")
			Expect(p.Parent().String()).To(Equal("/group/sub"))
			Expect(p.Name()).To(Equal("app"))
		})

		It("returns Root for a top-level path's parent", func() {
			p := pathid.MustParse("/app")
			Expect(p.Parent().String()).To(Equal("/"))
		})

		It("returns an empty Name for root", func() {
			Expect(pathid.Root().Name()).To(Equal(""))
		})
	})

	Describe("Child", func() {
		It("appends a segment preserving absoluteness", func() {
			p := pathid.MustParse("/group").Child("app")
			Expect(p.String()).To(Equal("/group/app"))
		})
	})

	Describe("IsChildOf", func() {
		It("reports true for a direct child", func() {
			Expect(pathid.MustParse("/group/app").IsChildOf(pathid.MustParse("/group"))).To(BeTrue())
		})

		It("reports true for a transitive descendant", func() {
			Expect(pathid.MustParse("/group/sub/app").IsChildOf(pathid.MustParse("/group"))).To(BeTrue())
		})

		It("reports false for an unrelated path", func() {
			Expect(pathid.MustParse("/other/app").IsChildOf(pathid.MustParse("/group"))).To(BeFalse())
		})

		It("reports false for itself", func() {
			p := pathid.MustParse("/group")
			Expect(p.IsChildOf(p)).To(BeFalse())
		})
	})

	Describe("Resolve", func() {
		It("leaves an absolute path untouched", func() {
			p := pathid.MustParse("/group/app")
			Expect(p.Resolve(pathid.MustParse("/other")).String()).To(Equal("/group/app"))
		})

		It("anchors a relative path under base", func() {
			p := pathid.MustParse("app")
			Expect(p.Resolve(pathid.MustParse("/group")).String()).To(Equal("/group/app"))
		})
	})

	Describe("Equal", func() {
		It("matches identical absolute paths", func() {
			Expect(pathid.MustParse("/a/b").Equal(pathid.MustParse("/a/b"))).To(BeTrue())
		})

		It("treats matching segments with different absoluteness as unequal", func() {
			abs := pathid.MustParse("/a")
			rel, err := pathid.Parse("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(abs.Equal(rel)).To(BeFalse())
		})
	})

	Describe("Less", func() {
		It("orders lexicographically on the canonical string form", func() {
			Expect(pathid.MustParse("/a").Less(pathid.MustParse("/b"))).To(BeTrue())
			Expect(pathid.MustParse("/b").Less(pathid.MustParse("/a"))).To(BeFalse())
		})
	})

	Describe("Safe", func() {
		It("joins segments with the safe sentinel and drops the leading slash", func() {
			Expect(pathid.MustParse("/group/app").Safe()).To(Equal("group.app"))
		})
	})
})
