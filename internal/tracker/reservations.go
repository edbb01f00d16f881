package tracker

import (
	"context"
	"time"

	"github.com/kindling-sh/marathon/internal/instance"
)

// ReservationSweepConfig tunes the reservation-timeout sweep.
type ReservationSweepConfig struct {
	Interval     time.Duration
	ExpungeAfter time.Duration
}

func (c ReservationSweepConfig) withDefaults() ReservationSweepConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ExpungeAfter <= 0 {
		c.ExpungeAfter = 10 * time.Minute
	}
	return c
}

// RunReservationSweep ticks every cfg.Interval, advancing every tracked
// reservation whose deadline has passed, until ctx is cancelled. Mirrors
// kill.Service's retryExpired: a plain ticker loop rather than a
// command-channel actor, since Tracker already serializes mutation through
// its own mutex.
func (t *Tracker) RunReservationSweep(ctx context.Context, cfg ReservationSweepConfig) {
	cfg = cfg.withDefaults()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.AdvanceReservations(ctx, now, cfg.ExpungeAfter)
		}
	}
}

// AdvanceReservations moves every timed-out reservation forward one state.
// A reservation advanced past Garbage is released (cleared from the
// instance); an instance left goal=Decommissioned with no reservation and
// every task terminal is expunged outright, same as a normal
// Decommissioned completion. Returns the instances that changed.
func (t *Tracker) AdvanceReservations(ctx context.Context, now time.Time, expungeAfter time.Duration) []instance.Instance {
	t.mu.Lock()
	var changed []instance.Instance
	var expunged []instance.Instance
	for id, inst := range t.instances {
		if inst.Reservation == nil || !inst.Reservation.TimedOut(now) {
			continue
		}
		next, ok := inst.Reservation.Advance(now, expungeAfter)
		if ok {
			inst.Reservation = &next
		} else {
			inst.Reservation = nil
		}
		if inst.Reservation == nil && inst.IsExpungeable() {
			delete(t.instances, id)
			expunged = append(expunged, inst)
			continue
		}
		t.instances[id] = inst
		changed = append(changed, inst)
	}
	t.mu.Unlock()

	if t.bus == nil {
		return changed
	}
	for _, inst := range append(append([]instance.Instance{}, changed...), expunged...) {
		_ = t.bus.PublishInstanceChanged(ctx, inst.Id.String(), inst.State.Condition.String(), inst.State.Goal.String(), now)
	}
	return changed
}
