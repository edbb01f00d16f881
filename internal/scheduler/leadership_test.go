package scheduler_test

import (
	"context"
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

var _ = Describe("Scheduler election", func() {
	It("reconciles tracked instances against the persisted root on election", func() {
		offer := offerlayer.NewFake()
		tr := tracker.New(nil)
		roots := memory.NewRootStore[*runspec.Group]()
		plans := memory.NewDeploymentStore[*planner.Plan](func(p *planner.Plan) string { return p.Id })
		sched := scheduler.New(scheduler.Config{ScaleInterval: time.Hour}, offer, tr, noopKiller{}, roots, plans, nil, nil, logr.Discard())

		now := time.Now()
		root := runspec.NewRoot(now)
		Expect(roots.StoreRoot(context.Background(), root, nil, nil, nil, nil)).To(Succeed())

		orphanId, err := instance.NewId(pathid.MustParse("/gone/app"), instance.PrefixMarathon)
		Expect(err).NotTo(HaveOccurred())
		tr.Put(instance.NewScheduled(orphanId, runspec.RunSpec{}, "", now))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sched.ElectedAsLeaderAndReady(ctx)

		inst, ok := tr.Get(orphanId.String())
		Expect(ok).To(BeTrue())
		Expect(inst.State.Goal).To(Equal(instance.Decommissioned))
	})
})
