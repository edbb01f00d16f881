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

var _ = Describe("Tracker reservation sweep", func() {
	now := time.Unix(1700000000, 0)
	runSpecId := pathid.MustParse("/resident/db")

	newInstWithReservation := func(state instance.ReservationState, deadline time.Time) (instance.Id, instance.Instance) {
		id, err := instance.NewId(runSpecId, instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		inst := instance.NewScheduled(id, runspec.RunSpec{}, "", now)
		inst.Reservation = &instance.Reservation{Id: id.String(), VolumeIds: []string{"vol-1"}, State: state, Deadline: deadline}
		return id, inst
	}

	It("leaves a reservation untouched before its deadline", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)
		id, inst := newInstWithReservation(instance.ReservationNew, now.Add(time.Hour))
		tr.Put(inst)

		tr.AdvanceReservations(context.Background(), now, time.Minute)

		got, ok := tr.Get(id.String())
		Expect(ok).To(BeTrue())
		Expect(got.Reservation.State).To(Equal(instance.ReservationNew))
	})

	It("advances a timed-out New reservation to Garbage", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)
		id, inst := newInstWithReservation(instance.ReservationNew, now.Add(-time.Second))
		tr.Put(inst)

		changed := tr.AdvanceReservations(context.Background(), now, 5*time.Minute)

		Expect(changed).To(HaveLen(1))
		got, ok := tr.Get(id.String())
		Expect(ok).To(BeTrue())
		Expect(got.Reservation.State).To(Equal(instance.ReservationGarbage))
		Expect(got.Reservation.Deadline).To(Equal(now.Add(5 * time.Minute)))
		Expect(bus.published).To(HaveLen(1))
	})

	It("releases and expunges a timed-out Garbage reservation on an instance with no live tasks", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)
		id, inst := newInstWithReservation(instance.ReservationGarbage, now.Add(-time.Second))
		inst = inst.SetGoal(instance.Decommissioned, instance.ReasonOrphaned)
		tr.Put(inst)

		tr.AdvanceReservations(context.Background(), now, time.Minute)

		_, ok := tr.Get(id.String())
		Expect(ok).To(BeFalse())
	})

	It("releases a timed-out Garbage reservation but keeps the instance when its goal isn't Decommissioned", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)
		id, inst := newInstWithReservation(instance.ReservationGarbage, now.Add(-time.Second))
		tr.Put(inst)

		tr.AdvanceReservations(context.Background(), now, time.Minute)

		got, ok := tr.Get(id.String())
		Expect(ok).To(BeTrue())
		Expect(got.Reservation).To(BeNil())
	})

	It("never times out a Launched reservation", func() {
		bus := &recordingBus{}
		tr := tracker.New(bus)
		id, inst := newInstWithReservation(instance.ReservationLaunched, now.Add(-time.Hour))
		tr.Put(inst)

		changed := tr.AdvanceReservations(context.Background(), now, time.Minute)

		Expect(changed).To(BeEmpty())
		got, ok := tr.Get(id.String())
		Expect(ok).To(BeTrue())
		Expect(got.Reservation.State).To(Equal(instance.ReservationLaunched))
	})
})
