package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-logr/logr"
	"k8s.io/client-go/tools/record"

	"github.com/kindling-sh/marathon/internal/config"
	"github.com/kindling-sh/marathon/internal/events"
	"github.com/kindling-sh/marathon/internal/gc"
	"github.com/kindling-sh/marathon/internal/kill"
	"github.com/kindling-sh/marathon/internal/offerlayer"
	"github.com/kindling-sh/marathon/internal/planner"
	"github.com/kindling-sh/marathon/internal/repository"
	"github.com/kindling-sh/marathon/internal/repository/instancebus"
	"github.com/kindling-sh/marathon/internal/repository/memory"
	"github.com/kindling-sh/marathon/internal/repository/postgres"
	"github.com/kindling-sh/marathon/internal/runspec"
	"github.com/kindling-sh/marathon/internal/scheduler"
	"github.com/kindling-sh/marathon/internal/tracker"
)

// buildKillService constructs the kill-service actor against cfg's
// throttling knobs. Callers still need to Start it with a tracker and an
// instance-event channel.
func buildKillService(cfg *config.Config, offer offerlayer.OfferLayer, log logr.Logger) *kill.Service {
	return kill.New(kill.Config{
		ChunkSize:    cfg.Kill.ChunkSize,
		RetryTimeout: time.Duration(cfg.Kill.RetrySeconds) * time.Second,
	}, offer, log)
}

// buildGcFsm constructs the GC FSM wired against backend b.
func buildGcFsm(cfg *config.Config, b *backend, log logr.Logger) *gc.FSM {
	scanner := &gc.Scanner{
		Source:          repoGcSource{b: b},
		MaxRootVersions: cfg.Gc.MaxRootVersions,
		MaxVersions:     cfg.Gc.MaxVersions,
	}
	interval := time.Duration(cfg.Gc.IntervalSeconds) * time.Second
	return gc.New(interval, scanner, repoGcCompactor{b: b, log: log}, log)
}

// buildScheduler constructs the scheduler actor against backend b. recorder
// may be nil (status/deploy/kill/gc one-shots have nothing to attach
// human-readable events to).
func buildScheduler(cfg *config.Config, offer offerlayer.OfferLayer, tr *tracker.Tracker, killer *kill.Service,
	b *backend, pub scheduler.EventPublisher, recorder record.EventRecorder, log logr.Logger) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		ScaleInterval: time.Duration(cfg.Scheduler.ScaleIntervalSeconds) * time.Second,
		PollInterval:  time.Duration(cfg.Scheduler.PollIntervalMillis) * time.Millisecond,
	}, offer, tr, killer, b.Roots, b.Plans, pub, recorder, log)
}

// buildReservationSweepConfig reads the sweep interval/expunge deadline the
// tracker's reservation-timeout loop runs against.
func buildReservationSweepConfig(cfg *config.Config) tracker.ReservationSweepConfig {
	return tracker.ReservationSweepConfig{
		Interval:     time.Duration(cfg.Reservation.SweepIntervalSeconds) * time.Second,
		ExpungeAfter: time.Duration(cfg.Reservation.ExpungeAfterSeconds) * time.Second,
	}
}

// backend bundles every repository the control plane needs, built once per
// process against either the in-memory or Postgres implementation
// depending on cfg.Repository.Backend.
type backend struct {
	Apps  repository.VersionedRepository[runspec.RunSpec]
	Pods  repository.VersionedRepository[runspec.RunSpec]
	Roots repository.RootRepository[*runspec.Group]
	Plans repository.DeploymentRepository[*planner.Plan]

	db *sql.DB // nil for the memory backend
}

func (b *backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func runSpecIdOf(r runspec.RunSpec) string { return r.Id.String() }
func planIdOf(p *planner.Plan) string      { return p.Id }

// buildBackend wires the repository layer per cfg.Repository.Backend.
func buildBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Repository.Backend {
	case "", "memory":
		return &backend{
			Apps:  memory.New[runspec.RunSpec](runSpecIdOf),
			Pods:  memory.New[runspec.RunSpec](runSpecIdOf),
			Roots: memory.NewRootStore[*runspec.Group](),
			Plans: memory.NewDeploymentStore[*planner.Plan](planIdOf),
		}, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.Repository.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		runSpecCodec := postgres.JSONCodec[runspec.RunSpec]()
		rootCodec := postgres.JSONCodec[*runspec.Group]()
		planCodec := postgres.JSONCodec[*planner.Plan]()
		return &backend{
			Apps:  postgres.New[runspec.RunSpec](db, "apps", runSpecIdOf, runSpecCodec),
			Pods:  postgres.New[runspec.RunSpec](db, "pods", runSpecIdOf, runSpecCodec),
			Roots: postgres.NewRootStore[*runspec.Group](db, "roots", rootCodec),
			Plans: postgres.NewDeploymentStore[*planner.Plan](db, "deployments", planIdOf, planCodec),
			db:    db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Repository.Backend)
	}
}

// buildOfferLayer resolves the configured offer-layer backend through the
// registry (internal/offerlayer/fake.go registers "fake"; production
// deployments register their Mesos-facing implementation the same way).
func buildOfferLayer(cfg *config.Config) (offerlayer.OfferLayer, error) {
	backend := cfg.OfferLayer.Backend
	if backend == "" {
		backend = "fake"
	}
	return offerlayer.Build(backend, cfg.OfferLayer.Options)
}

// buildInstanceBus connects to Redis for the instance-event pub/sub
// backbone. Every caller that doesn't otherwise need a running event
// stream (status, deploy, kill, gc run) can still build one to warm-start
// a tracker; Subscribe is only invoked by "serve".
func buildInstanceBus(cfg *config.Config) *instancebus.Bus {
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	return instancebus.New(rdb)
}

// buildEventPublisher returns a genuinely nil scheduler.EventPublisher
// interface when no Kafka brokers are configured (not a *events.Publisher
// typed nil, which would compare non-nil against the scheduler's "is this
// nil" checks and panic on first use).
func buildEventPublisher(cfg *config.Config) scheduler.EventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = "marathon.deployment-events"
	}
	return events.NewPublisher(cfg.Kafka.Brokers, topic)
}

// repoGcSource adapts backend onto gc.Source.
type repoGcSource struct {
	b *backend
}

func (s repoGcSource) CurrentRoot(ctx context.Context) (*runspec.Group, error) {
	root, ok, err := s.b.Roots.Root(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return root, nil
}

func (s repoGcSource) RecentRootVersions(ctx context.Context, limit int) ([]*runspec.Group, error) {
	timestamps, err := s.b.Roots.RootVersions(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(timestamps) > limit {
		timestamps = timestamps[len(timestamps)-limit:]
	}
	out := make([]*runspec.Group, 0, len(timestamps))
	for _, ts := range timestamps {
		g, ok, err := s.b.Roots.RootVersion(ctx, ts)
		if err != nil || !ok {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s repoGcSource) InFlightPlans(ctx context.Context) ([]*planner.Plan, error) {
	return s.b.Plans.All(ctx)
}

func (s repoGcSource) AppIds(ctx context.Context) ([]string, error) { return s.b.Apps.Ids(ctx) }
func (s repoGcSource) AppVersions(ctx context.Context, id string) ([]time.Time, error) {
	return s.b.Apps.Versions(ctx, id)
}
func (s repoGcSource) PodIds(ctx context.Context) ([]string, error) { return s.b.Pods.Ids(ctx) }
func (s repoGcSource) PodVersions(ctx context.Context, id string) ([]time.Time, error) {
	return s.b.Pods.Versions(ctx, id)
}
func (s repoGcSource) RootVersionTimestamps(ctx context.Context) ([]time.Time, error) {
	return s.b.Roots.RootVersions(ctx)
}

// repoGcCompactor adapts backend onto gc.Compactor, deleting each
// EntityRef the scanner decided is unreferenced.
type repoGcCompactor struct {
	b   *backend
	log logr.Logger
}

func (c repoGcCompactor) DeleteVersions(ctx context.Context, refs []gc.EntityRef) error {
	for _, ref := range refs {
		var err error
		switch ref.Kind {
		case "app":
			err = c.deleteVersioned(ctx, c.b.Apps, ref)
		case "pod":
			err = c.deleteVersioned(ctx, c.b.Pods, ref)
		case "root":
			if ref.Version == "" {
				continue
			}
			ts, perr := gc.ParseVersionKey(ref.Version)
			if perr != nil {
				c.log.Error(perr, "failed to parse root version key", "version", ref.Version)
				continue
			}
			err = c.b.Roots.DeleteRootVersion(ctx, ts)
		}
		if err != nil {
			c.log.Error(err, "failed to delete gc'd entity", "kind", ref.Kind, "id", ref.Id)
		}
	}
	return nil
}

func (c repoGcCompactor) deleteVersioned(ctx context.Context, repo repository.VersionedRepository[runspec.RunSpec], ref gc.EntityRef) error {
	if ref.Version == "" {
		return repo.Delete(ctx, ref.Id)
	}
	ts, err := gc.ParseVersionKey(ref.Version)
	if err != nil {
		return err
	}
	return repo.DeleteVersion(ctx, ref.Id, ts)
}
