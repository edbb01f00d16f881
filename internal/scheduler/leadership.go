package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// LeaderElectionTiming matches the controller-runtime manager's default
// leader-election timing.
type LeaderElectionTiming struct {
	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration
}

func (t LeaderElectionTiming) withDefaults() LeaderElectionTiming {
	if t.LeaseDuration <= 0 {
		t.LeaseDuration = 15 * time.Second
	}
	if t.RenewDeadline <= 0 {
		t.RenewDeadline = 10 * time.Second
	}
	if t.RetryPeriod <= 0 {
		t.RetryPeriod = 2 * time.Second
	}
	return t
}

// RunLeaderElection gates s against lock, blocking until ctx is cancelled.
// On acquiring the lease it calls s.ElectedAsLeaderAndReady; on losing it
// (including at shutdown) it calls s.SteppedDown. lock is injected so
// production wiring can point at a resourcelock.LeaseLock against a real
// cluster used purely as a coordination substrate, while tests use an
// in-memory fake.
func RunLeaderElection(ctx context.Context, s *Scheduler, lock resourcelock.Interface, timing LeaderElectionTiming, log logr.Logger) error {
	timing = timing.withDefaults()
	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   timing.LeaseDuration,
		RenewDeadline:   timing.RenewDeadline,
		RetryPeriod:     timing.RetryPeriod,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				log.Info("acquired deployment executor lease")
				s.ElectedAsLeaderAndReady(ctx)
			},
			OnStoppedLeading: func() {
				log.Info("lost deployment executor lease")
				s.SteppedDown()
			},
		},
	})
	if err != nil {
		return err
	}
	elector.Run(ctx)
	return nil
}
