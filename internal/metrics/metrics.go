// Package metrics registers the control plane's Prometheus collectors:
// counters and gauges for the scheduler, kill service and GC actors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DeploymentsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "scheduler",
		Name:      "deployments_started_total",
		Help:      "Deployments started, by whether they were forced.",
	}, []string{"forced"})

	DeploymentsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "scheduler",
		Name:      "deployments_completed_total",
		Help:      "Deployments that finished, by outcome.",
	}, []string{"outcome"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marathon",
		Subsystem: "scheduler",
		Name:      "step_duration_seconds",
		Help:      "Time for a deployment step's actions to all complete.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	ActiveLocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "marathon",
		Subsystem: "scheduler",
		Name:      "locked_run_specs",
		Help:      "Run-specs currently locked by an in-flight deployment.",
	})

	KillsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "kill",
		Name:      "issued_total",
		Help:      "Kill requests sent to the offer layer, by outcome.",
	}, []string{"outcome"})

	KillQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marathon",
		Subsystem: "kill",
		Name:      "queue_depth",
		Help:      "In-flight and pending kill requests.",
	}, []string{"state"})

	GcPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "marathon",
		Subsystem: "gc",
		Name:      "phase",
		Help:      "Current GC FSM phase, encoded 0=Resting 1=ReadyForGc 2=Scanning 3=Compacting.",
	})

	GcCompactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "gc",
		Name:      "compactions_total",
		Help:      "Completed compaction passes, by whether anything was reclaimed.",
	}, []string{"reclaimed"})

	ReconciliationsCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "scheduler",
		Name:      "reconciliations_coalesced_total",
		Help:      "ReconcileTasks calls that piggybacked on an in-flight run instead of starting a new one.",
	})
)

// MustRegister registers every collector in this package against reg. A
// caller-supplied registry (rather than prometheus.MustRegister against
// the global default) keeps tests free to use their own registry.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		DeploymentsStarted,
		DeploymentsCompleted,
		StepDuration,
		ActiveLocks,
		KillsIssued,
		KillQueueDepth,
		GcPhase,
		GcCompactions,
		ReconciliationsCoalesced,
	)
}
