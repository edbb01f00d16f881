// Package scheduler implements the deployment executor: the
// leadership gate, the per-run-spec lock manager, the parallel step
// runner, task reconciliation and the scale loop. Like the
// kill service and the GC FSM, the lock/registry bookkeeping is owned by a
// single-threaded actor; the long-running, potentially-blocking work of
// actually driving a plan to completion happens in goroutines that report
// back into the actor via the same command-channel pattern.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"

	"github.com/kindling-sh/marathon/internal/events"
	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/metrics"
	"github.com/kindling-sh/marathon/internal/offerlayer"
	"github.com/kindling-sh/marathon/internal/pathid"
	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/repository"
	"github.com/kindling-sh/marathon/internal/repository/instancebus"
	"github.com/kindling-sh/marathon/internal/runspec"
	"github.com/kindling-sh/marathon/internal/tracker"
)

// Tracker is the slice of the instance tracker the scheduler needs:
// live-count queries for scale completion, orphan/reconciliation listing
// and goal mutation.
type Tracker interface {
	ByRunSpec(runSpecId pathid.PathId) []instance.Instance
	All() []instance.Instance
	Get(id string) (instance.Instance, bool)
	LiveCount(runSpecId pathid.PathId, requireReady bool, readyIds map[string]bool) int
	Put(inst instance.Instance)
	SetGoal(ctx context.Context, id string, goal instance.Goal, reason instance.DecommissionReason, now time.Time) (instance.Instance, bool)
	OrphansFor(root *runspec.Group) []instance.Instance
	ReconciliationCandidates() []tracker.TaskStatusQuery
}

// Killer is the slice of the kill service the scheduler drives
// sentenced-to-death instances through on a scale-down.
type Killer interface {
	KillInstances(instances []instance.Instance) <-chan error
}

// EventPublisher is the slice of events.Publisher the scheduler emits
// deployment lifecycle records through; nil-safe, since it is purely
// observational.
type EventPublisher interface {
	DeploymentStarted(ctx context.Context, deploymentId string, at time.Time) error
	StepCompleted(ctx context.Context, deploymentId string, stepIndex int, at time.Time) error
	DeploymentFailed(ctx context.Context, deploymentId, reason string, at time.Time) error
	DeploymentCancelled(ctx context.Context, deploymentId, reason string, at time.Time) error
	DeploymentCompleted(ctx context.Context, deploymentId string, at time.Time) error
}

var _ EventPublisher = (*events.Publisher)(nil)

// Config tunes the scheduler's scale loop and step polling.
type Config struct {
	ScaleInterval time.Duration
	PollInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScaleInterval <= 0 {
		c.ScaleInterval = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// runningDeployment is the executor's bookkeeping for one in-flight plan.
type runningDeployment struct {
	plan     *planner.Plan
	cancel   context.CancelFunc
	resolved sync.Once
	done     chan error
}

func (r *runningDeployment) resolve(err error) {
	r.resolved.Do(func() {
		r.done <- err
		close(r.done)
	})
}

// Scheduler is the deployment executor actor.
type Scheduler struct {
	cfg      Config
	log      logr.Logger
	offer    offerlayer.OfferLayer
	tracker  Tracker
	killer   Killer
	roots    repository.RootRepository[*runspec.Group]
	plans    repository.DeploymentRepository[*planner.Plan]
	events   EventPublisher
	recorder record.EventRecorder

	cmds    chan func()
	stop    chan struct{}
	stopped chan struct{}

	locks       map[string]string // runSpecId -> deploymentId holding it
	running     map[string]*runningDeployment
	reconcile   singleflight.Group
	isLeader    bool
}

// New constructs a Scheduler. Call Start to run the actor loop; Deploy and
// Cancel are processed once it runs, whether or not the scheduler is
// leader. The election-time work (reconciliation, plan resumption, the
// scale loop) starts from ElectedAsLeaderAndReady.
func New(cfg Config, offer offerlayer.OfferLayer, tr Tracker, killer Killer,
	roots repository.RootRepository[*runspec.Group], plans repository.DeploymentRepository[*planner.Plan],
	pub EventPublisher, recorder record.EventRecorder, log logr.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		log:      log.WithValues("component", "scheduler"),
		offer:    offer,
		tracker:  tr,
		killer:   killer,
		roots:    roots,
		plans:    plans,
		events:   pub,
		recorder: recorder,
		cmds:     make(chan func(), 64),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		locks:    map[string]string{},
		running:  map[string]*runningDeployment{},
	}
}

// Start begins the actor loop. Leadership-gated work (resuming in-flight
// plans, the scale loop, reconciliation subscriptions) is driven from
// ElectedAsLeaderAndReady, normally wired as the leader elector's
// OnStartedLeading callback; see RunLeaderElection.
func (s *Scheduler) Start(ctx context.Context, events <-chan instancebus.Event) {
	go s.run(ctx, events)
}

func (s *Scheduler) run(ctx context.Context, evs <-chan instancebus.Event) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case fn := <-s.cmds:
			fn()
		case ev, ok := <-evs:
			if !ok {
				evs = nil
				continue
			}
			_ = ev // readiness/condition state lives in the tracker already;
			// the actor itself has no per-instance bookkeeping to update.
		}
	}
}

// Stop halts the actor loop.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

// ElectedAsLeaderAndReady runs the on-elected sequence: reconcile task
// status for every tracked instance against the offer layer and
// decommission orphans, resume any outstanding plans from the deployment
// repository, then let the caller (normally a Redis subscription set up
// by the wiring layer) start feeding instance events. It blocks until
// that startup sequence is done; the leader elector's OnStartedLeading
// callback should call this synchronously.
func (s *Scheduler) ElectedAsLeaderAndReady(ctx context.Context) {
	s.log.Info("elected leader, resuming")
	s.cmds <- func() { s.isLeader = true }

	if root, ok, err := s.roots.Root(ctx); err == nil && ok {
		s.recordEvent(root.Id.String(), corev1.EventTypeNormal, "LeaderElected", "reconciling tracked instances against persisted root")
	}

	if err := s.ReconcileTasks(ctx); err != nil {
		s.log.Error(err, "reconciliation failed on election")
	}

	outstanding, err := s.plans.All(ctx)
	if err != nil {
		s.log.Error(err, "failed to list outstanding plans on election")
	}
	for _, plan := range outstanding {
		s.resumePlan(ctx, plan)
	}

	go s.runScaleLoop(ctx)
}

// SteppedDown clears leadership; in-flight plan goroutines keep their own
// contexts and are not forcibly cancelled, mirroring a graceful handoff.
func (s *Scheduler) SteppedDown() {
	s.cmds <- func() { s.isLeader = false }
}

func (s *Scheduler) recordEvent(name, eventType, reason, message string) {
	if s.recorder == nil {
		return
	}
	ref := &corev1.ObjectReference{Kind: "MarathonDeployment", Name: name, APIVersion: "marathon.internal/v1"}
	s.recorder.Event(ref, eventType, reason, message)
}

// acquireLocks reports, for a prospective deployment, every affected
// run-spec id already held by another deployment (conflicts keyed by
// holding deployment id). Must run inside the actor goroutine.
func (s *Scheduler) acquireLocks(deploymentId string, ids []string) map[string][]string {
	conflicts := map[string][]string{}
	for _, id := range ids {
		if holder, locked := s.locks[id]; locked && holder != deploymentId {
			conflicts[holder] = append(conflicts[holder], id)
		}
	}
	return conflicts
}

func (s *Scheduler) commitLocks(deploymentId string, ids []string) {
	for _, id := range ids {
		s.locks[id] = deploymentId
	}
	metrics.ActiveLocks.Set(float64(len(s.locks)))
}

func (s *Scheduler) releaseLocks(deploymentId string) {
	for id, holder := range s.locks {
		if holder == deploymentId {
			delete(s.locks, id)
		}
	}
	metrics.ActiveLocks.Set(float64(len(s.locks)))
}

func sortedConflictHolders(conflicts map[string][]string) []string {
	out := make([]string, 0, len(conflicts))
	for id := range conflicts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
