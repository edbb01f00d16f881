package gc_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/gc"
	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/runspec"
)

type emptySource struct{}

func (emptySource) CurrentRoot(context.Context) (*runspec.Group, error) { return nil, nil }
func (emptySource) RecentRootVersions(context.Context, int) ([]*runspec.Group, error) {
	return nil, nil
}
func (emptySource) InFlightPlans(context.Context) ([]*planner.Plan, error) { return nil, nil }
func (emptySource) AppIds(context.Context) ([]string, error)              { return nil, nil }
func (emptySource) AppVersions(context.Context, string) ([]time.Time, error) {
	return nil, nil
}
func (emptySource) PodIds(context.Context) ([]string, error) { return nil, nil }
func (emptySource) PodVersions(context.Context, string) ([]time.Time, error) {
	return nil, nil
}
func (emptySource) RootVersionTimestamps(context.Context) ([]time.Time, error) {
	return nil, nil
}

// deletingSource reports one app with a single stale, unreferenced version.
type deletingSource struct {
	emptySource
	staleVersion time.Time
}

func (s deletingSource) AppIds(context.Context) ([]string, error) { return []string{"/app"}, nil }
func (s deletingSource) AppVersions(context.Context, string) ([]time.Time, error) {
	return []time.Time{s.staleVersion}, nil
}

type blockingCompactor struct {
	mu       sync.Mutex
	deleted  []gc.EntityRef
	proceed  chan struct{}
}

func (c *blockingCompactor) DeleteVersions(ctx context.Context, refs []gc.EntityRef) error {
	<-c.proceed
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, refs...)
	return nil
}

func (c *blockingCompactor) Deleted() []gc.EntityRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gc.EntityRef{}, c.deleted...)
}

var _ = Describe("FSM", func() {
	It("starts in ReadyForGc when interval<=0 and returns there after an empty scan", func() {
		scanner := &gc.Scanner{Source: emptySource{}, MaxRootVersions: 5, MaxVersions: 2}
		compactor := &blockingCompactor{proceed: make(chan struct{})}
		close(compactor.proceed)
		fsm := gc.New(0, scanner, compactor, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fsm.Run(ctx)

		Expect(fsm.CurrentPhase()).To(Equal(gc.ReadyForGc))

		fsm.RunGC(ctx)
		Eventually(fsm.CurrentPhase).Should(Equal(gc.ReadyForGc))
	})

	It("moves through Scanning -> Compacting -> ReadyForGc and blocks a racing store on the deletion set", func() {
		stale := time.Unix(1000, 0)
		scanner := &gc.Scanner{Source: deletingSource{staleVersion: stale}, MaxRootVersions: 5, MaxVersions: 0}
		compactor := &blockingCompactor{proceed: make(chan struct{})}
		fsm := gc.New(0, scanner, compactor, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fsm.Run(ctx)

		fsm.RunGC(ctx)
		Eventually(fsm.CurrentPhase).Should(Equal(gc.Compacting))

		ref := gc.EntityRef{Kind: "app", Id: "/app", Version: stale.String()}
		guardDone := make(chan error, 1)
		go func() {
			guardDone <- fsm.Guard(ctx, ref, func() error { return nil })
		}()

		Consistently(guardDone, "100ms").ShouldNot(Receive())

		close(compactor.proceed)

		Eventually(guardDone).Should(Receive(BeNil()))
		Eventually(fsm.CurrentPhase).Should(Equal(gc.ReadyForGc))
		Expect(compactor.Deleted()).To(ContainElement(ref))
	})

	It("admits a store immediately when no compaction is blocking it", func() {
		scanner := &gc.Scanner{Source: emptySource{}, MaxRootVersions: 5, MaxVersions: 2}
		compactor := &blockingCompactor{proceed: make(chan struct{})}
		fsm := gc.New(0, scanner, compactor, logr.Discard())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go fsm.Run(ctx)

		ref := gc.EntityRef{Kind: "app", Id: "/app", Version: "v1"}
		err := fsm.Guard(ctx, ref, func() error { return nil })
		Expect(err).NotTo(HaveOccurred())
	})
})
