package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/client-go/tools/record"

	"github.com/kindling-sh/marathon/internal/config"
	"github.com/kindling-sh/marathon/internal/metrics"
	"github.com/kindling-sh/marathon/internal/scheduler"
	"github.com/kindling-sh/marathon/internal/telemetry"
	"github.com/kindling-sh/marathon/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the leader-elected control plane (scheduler, kill service, GC)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, syncLog, err := telemetry.New(telemetry.Config{Development: devLogs})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer syncLog()

	watcher, err := config.NewWatcher(configPath, func(c *config.Config) {
		log.Info("config reloaded", "path", configPath)
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer watcher.Close()
	cfg := watcher.Current()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	httpServer := &http.Server{Addr: metricsAddr(cfg), Handler: metricsMux(reg)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server stopped")
		}
	}()
	defer httpServer.Shutdown(context.Background())

	b, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}
	defer b.Close()

	offer, err := buildOfferLayer(cfg)
	if err != nil {
		return fmt.Errorf("build offer layer: %w", err)
	}

	bus := buildInstanceBus(cfg)
	tr := tracker.New(bus)

	killSvc := buildKillService(cfg, offer, log)
	killEvents, closeKillSub := bus.Subscribe(ctx)
	killSvc.Start(ctx, tr, killEvents)
	defer killSvc.Stop()
	defer closeKillSub()

	gcFsm := buildGcFsm(cfg, b, log)
	go gcFsm.Run(ctx)

	go tr.RunReservationSweep(ctx, buildReservationSweepConfig(cfg))

	pub := buildEventPublisher(cfg)
	if closer, ok := pub.(io.Closer); ok {
		defer closer.Close()
	}
	recorder := buildEventRecorder(log)

	sched := buildScheduler(cfg, offer, tr, killSvc, b, pub, recorder, log)
	schedEvents, closeSchedSub := bus.Subscribe(ctx)
	sched.Start(ctx, schedEvents)
	defer sched.Stop()
	defer closeSchedSub()

	if err := runLeadershipGate(ctx, cfg, sched, log); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func metricsAddr(cfg *config.Config) string {
	if cfg.MetricsAddr != "" {
		return cfg.MetricsAddr
	}
	return ":9090"
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// buildEventRecorder wires an EventRecorder that logs through log rather
// than recording to a real apiserver sink: the control plane isn't
// necessarily running against a Kubernetes cluster (leader election's
// LeaseLock is used purely as a coordination substrate), so there is no
// object store to attach Events to.
func buildEventRecorder(log logr.Logger) record.EventRecorder {
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	broadcaster := record.NewBroadcaster()
	broadcaster.StartLogging(func(format string, args ...interface{}) {
		log.Info(fmt.Sprintf(format, args...))
	})
	return broadcaster.NewRecorder(scheme, corev1.EventSource{Component: "marathon-scheduler"})
}

// runLeadershipGate either runs a real client-go leader election (when
// cfg.LeaderElection.Kubeconfig names a cluster to coordinate through) or,
// for a single-instance deployment, elects itself immediately.
func runLeadershipGate(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, log logr.Logger) error {
	if cfg.LeaderElection.Kubeconfig == "" {
		log.Info("leader election disabled, running as single instance")
		sched.ElectedAsLeaderAndReady(ctx)
		return nil
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.LeaderElection.Kubeconfig)
	if err != nil {
		return fmt.Errorf("build kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}
	identity := fmt.Sprintf("marathon-%d", time.Now().UnixNano())
	lock, err := resourcelock.New(resourcelock.LeasesResourceLock,
		cfg.LeaderElection.Namespace, cfg.LeaderElection.Name,
		clientset.CoreV1(), clientset.CoordinationV1(),
		resourcelock.ResourceLockConfig{Identity: identity})
	if err != nil {
		return fmt.Errorf("build leader election lock: %w", err)
	}

	go func() {
		if err := scheduler.RunLeaderElection(ctx, sched, lock, scheduler.LeaderElectionTiming{}, log); err != nil {
			log.Error(err, "leader election exited")
		}
	}()
	return nil
}
