package tracker_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/runspec"
	"github.com/kindling-sh/marathon/internal/tracker"
)

type recordingBus struct {
	published []string
}

func (b *recordingBus) PublishInstanceChanged(_ context.Context, instanceId, condition, goal string, _ time.Time) error {
	b.published = append(b.published, instanceId+":"+condition+":"+goal)
	return nil
}

var _ = Describe("Tracker", func() {
	now := time.Unix(1700000000, 0)
	runSpecId := pathid.MustParse("/test/app")

	It("counts only active, goal=Running instances toward LiveCount", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)

		id1, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		running := instance.NewScheduled(id1, runspec.RunSpec{}, "", now)
		running = running.ApplyTaskUpdate(instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, now)
		tr.Put(running)

		id2, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		killed := instance.NewScheduled(id2, runspec.RunSpec{}, "", now)
		killed = killed.ApplyTaskUpdate(instance.Task{Id: "t2", Condition: instance.Killed, StartedAt: &now}, now)
		tr.Put(killed)

		Expect(tr.LiveCount(runSpecId, false, nil)).To(Equal(1))
	})

	It("applies a task update and publishes InstanceChanged", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)

		id, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		tr.Put(instance.NewScheduled(id, runspec.RunSpec{}, "", now))

		updated, ok := tr.ApplyTaskUpdate(context.Background(), id.String(), instance.Task{Id: "t1", Condition: instance.Running, StartedAt: &now}, now)
		Expect(ok).To(BeTrue())
		Expect(updated.State.Condition).To(Equal(instance.Running))
		Expect(bus.published).To(HaveLen(1))
	})

	It("lists orphans whose run-spec no longer exists in root", func() {
		tr := tracker.New(nil)
		id, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		tr.Put(instance.NewScheduled(id, runspec.RunSpec{}, "", now))

		root := runspec.NewRoot(now)
		orphans := tr.OrphansFor(root)
		Expect(orphans).To(HaveLen(1))
		Expect(orphans[0].Id.String()).To(Equal(id.String()))
	})
})
