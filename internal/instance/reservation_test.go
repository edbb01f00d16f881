package instance_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/instance"
)

var _ = Describe("Reservation", func() {
	now := time.Unix(1700000000, 0)

	Describe("TimedOut", func() {
		It("is false before the deadline", func() {
			r := instance.Reservation{State: instance.ReservationNew, Deadline: now.Add(time.Minute)}
			Expect(r.TimedOut(now)).To(BeFalse())
		})

		It("is true once the deadline has passed", func() {
			r := instance.Reservation{State: instance.ReservationNew, Deadline: now.Add(-time.Second)}
			Expect(r.TimedOut(now)).To(BeTrue())
		})

		It("is true exactly at the deadline", func() {
			r := instance.Reservation{State: instance.ReservationSuspended, Deadline: now}
			Expect(r.TimedOut(now)).To(BeTrue())
		})

		It("never times out while Launched, regardless of Deadline", func() {
			r := instance.Reservation{State: instance.ReservationLaunched, Deadline: now.Add(-time.Hour)}
			Expect(r.TimedOut(now)).To(BeFalse())
		})

		It("is false with a zero Deadline even in a state that carries a timeout", func() {
			r := instance.Reservation{State: instance.ReservationUnknown}
			Expect(r.TimedOut(now)).To(BeFalse())
		})
	})

	Describe("Advance", func() {
		It("moves New to Garbage with a fresh deadline", func() {
			r := instance.Reservation{State: instance.ReservationNew}
			next, ok := r.Advance(now, 5*time.Minute)
			Expect(ok).To(BeTrue())
			Expect(next.State).To(Equal(instance.ReservationGarbage))
			Expect(next.Deadline).To(Equal(now.Add(5 * time.Minute)))
		})

		It("moves Suspended to Garbage", func() {
			r := instance.Reservation{State: instance.ReservationSuspended}
			next, ok := r.Advance(now, time.Minute)
			Expect(ok).To(BeTrue())
			Expect(next.State).To(Equal(instance.ReservationGarbage))
		})

		It("moves Unknown to Garbage", func() {
			r := instance.Reservation{State: instance.ReservationUnknown}
			next, ok := r.Advance(now, time.Minute)
			Expect(ok).To(BeTrue())
			Expect(next.State).To(Equal(instance.ReservationGarbage))
		})

		It("signals expunge once a Garbage reservation advances again", func() {
			r := instance.Reservation{State: instance.ReservationGarbage, Deadline: now}
			next, ok := r.Advance(now, time.Minute)
			Expect(ok).To(BeFalse())
			Expect(next).To(Equal(instance.Reservation{}))
		})
	})

	Describe("ReservationState.String", func() {
		It("names every defined state", func() {
			Expect(instance.ReservationNew.String()).To(Equal("New"))
			Expect(instance.ReservationLaunched.String()).To(Equal("Launched"))
			Expect(instance.ReservationSuspended.String()).To(Equal("Suspended"))
			Expect(instance.ReservationGarbage.String()).To(Equal("Garbage"))
			Expect(instance.ReservationUnknown.String()).To(Equal("Unknown"))
		})
	})
})
