// Package kill implements the throttled, retrying kill-service actor.
// Like the scheduler and GC, it is a single-threaded actor: every public
// method sends a command over a channel and the run loop is the only
// goroutine that ever touches the in-flight/pending state, so no locking
// is needed inside it.
package kill

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/kindling-sh/marathon/internal/instance"
	"github.com/kindling-sh/marathon/internal/offerlayer"
	"github.com/kindling-sh/marathon/internal/repository/instancebus"
)

const (
	defaultChunkSize    = 5
	defaultRetryTimeout = 10 * time.Minute
	tickInterval        = 30 * time.Second
)

// Tracker is the read-only slice of the instance tracker the kill
// service needs for warm start: every instance with a Decommissioned or
// Stopped goal and at least one non-terminal task.
type Tracker interface {
	InstancesPendingKill() []instance.Instance
}

// Config tunes the actor's throttling behavior.
type Config struct {
	ChunkSize    int
	RetryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = defaultRetryTimeout
	}
	return c
}

type inFlightKill struct {
	taskId         string
	instanceId     string
	firstRequested time.Time
	lastIssued     time.Time
	attempts       int
}

type pendingKill struct {
	taskId     string
	instanceId string
}

// batchPromise backs one KillInstances call, which may span several
// instances; it resolves once every watched instance id has been
// observed terminal.
type batchPromise struct {
	remainingInstances map[string]bool
	done               chan error
}

// Service is the kill-service actor.
type Service struct {
	cfg     Config
	offer   offerlayer.OfferLayer
	log     logr.Logger
	cmds    chan func()
	stop    chan struct{}
	stopped chan struct{}

	inFlight map[string]*inFlightKill // keyed by taskId
	pending  []pendingKill

	// instanceWatchers indexes, per instance id, the batch promises still
	// waiting on that instance to go terminal.
	instanceWatchers map[string][]*batchPromise
	unknownPromises  map[string][]chan error // keyed by taskId
}

// New constructs a Service; call Start to begin processing.
func New(cfg Config, offer offerlayer.OfferLayer, log logr.Logger) *Service {
	return &Service{
		cfg:              cfg.withDefaults(),
		offer:            offer,
		log:              log.WithValues("component", "kill"),
		cmds:             make(chan func(), 64),
		stop:             make(chan struct{}),
		stopped:          make(chan struct{}),
		inFlight:         map[string]*inFlightKill{},
		instanceWatchers: map[string][]*batchPromise{},
		unknownPromises:  map[string][]chan error{},
	}
}

// Start begins the run loop and performs the warm-start scan against
// tracker.
func (s *Service) Start(ctx context.Context, tracker Tracker, events <-chan instancebus.Event) {
	go s.run(ctx, events)
	s.cmds <- func() { s.warmStart(tracker) }
}

func (s *Service) run(ctx context.Context, events <-chan instancebus.Event) {
	defer close(s.stopped)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case fn := <-s.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
			s.fillSlots(ctx)
		case now := <-ticker.C:
			s.retryExpired(now)
			s.fillSlots(context.Background())
		}
	}
}

// Stop halts the run loop. In-flight promises are left unresolved; callers
// that stop the service are expected to be shutting down the process.
func (s *Service) Stop() {
	close(s.stop)
	<-s.stopped
}

// KillInstances requests that every task belonging to instances be killed,
// resolving done once all of them are confirmed terminal.
// Scheduled instances resolve immediately with no tasks to kill.
func (s *Service) KillInstances(instances []instance.Instance) <-chan error {
	done := make(chan error, 1)
	s.cmds <- func() { s.killInstances(instancesCopy(instances), done) }
	return done
}

// KillUnknownTaskById issues one kill for a task outside any tracked
// instance, resolving when an UnknownInstanceTerminated event for taskId
// is observed.
func (s *Service) KillUnknownTaskById(taskId string) <-chan error {
	done := make(chan error, 1)
	s.cmds <- func() { s.killUnknown(taskId, done) }
	return done
}

func instancesCopy(in []instance.Instance) []instance.Instance {
	out := make([]instance.Instance, len(in))
	copy(out, in)
	return out
}
