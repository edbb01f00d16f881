package scheduler_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/offerlayer"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/repository/memory"
	"github.com/kindling-sh/marathon/internal/runspec"
	"github.com/kindling-sh/marathon/internal/scheduler"
	"github.com/kindling-sh/marathon/internal/tracker"
)

// gatedOfferLayer wraps a Fake, blocking the first Reconcile call until
// release is closed, so a test can prove overlapping ReconcileTasks
// callers coalesce onto that one in-flight call.
type gatedOfferLayer struct {
	*offerlayer.Fake
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (g *gatedOfferLayer) Reconcile(ctx context.Context, tasks []offerlayer.TaskStatusQuery) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	<-g.release
	return g.Fake.Reconcile(ctx, tasks)
}

func (g *gatedOfferLayer) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

var _ = Describe("Scheduler reconciliation", func() {
	It("coalesces concurrent ReconcileTasks calls into one in-flight run", func() {
		offer := &gatedOfferLayer{Fake: offerlayer.NewFake(), release: make(chan struct{})}
		tr := tracker.New(nil)
		roots := memory.NewRootStore[*runspec.Group]()
		plans := memory.NewDeploymentStore[*planner.Plan](func(p *planner.Plan) string { return p.Id })
		sched := scheduler.New(scheduler.Config{}, offer, tr, noopKiller{}, roots, plans, nil, nil, logr.Discard())

		ctx := context.Background()
		results := make(chan error, 3)
		for i := 0; i < 3; i++ {
			go func() { results <- sched.ReconcileTasks(ctx) }()
		}

		Eventually(offer.callCount).Should(Equal(1))
		Consistently(offer.callCount, "100ms").Should(Equal(1))

		close(offer.release)

		for i := 0; i < 3; i++ {
			Eventually(results).Should(Receive(BeNil()))
		}
		Expect(offer.callCount()).To(Equal(2)) // the query round plus the empty-list sentinel
	})

	It("decommissions orphaned instances during reconciliation", func() {
		offer := offerlayer.NewFake()
		tr := tracker.New(nil)
		roots := memory.NewRootStore[*runspec.Group]()
		plans := memory.NewDeploymentStore[*planner.Plan](func(p *planner.Plan) string { return p.Id })
		sched := scheduler.New(scheduler.Config{}, offer, tr, noopKiller{}, roots, plans, nil, nil, logr.Discard())

		now := time.Now()
		root := runspec.NewRoot(now)
		Expect(roots.StoreRoot(context.Background(), root, nil, nil, nil, nil)).To(Succeed())

		orphanId, err := instance.NewId(pathid.MustParse("/gone/app"), instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		tr.Put(instance.NewScheduled(orphanId, runspec.RunSpec{}, "", now))

		Expect(sched.ReconcileTasks(context.Background())).To(Succeed())

		inst, ok := tr.Get(orphanId.String())
		Expect(ok).To(BeTrue())
		Expect(inst.State.Goal).To(Equal(instance.Decommissioned))
	})
})
