package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., arbiter_...).
const namespace = "arbiter"

// lowLatencyBuckets resolves sub-5ms walks, which the default buckets lump together.
// Range: 1ms to 1s.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .025, .050, .100, .250, .500, 1}

var (
	// -------------------------------------------------------------------------
	// ENGINE
	// -------------------------------------------------------------------------

	// EngineEvaluationDuration measures complete walks, root to terminal node.
	// Metric: arbiter_engine_evaluation_seconds
	EngineEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluation_seconds",
		Help:      "Time taken to evaluate the decision graph",
		Buckets:   lowLatencyBuckets,
	}, []string{"status"}) // ok, fault

	// EngineCasesTotal counts evaluated cases.
	// Metric: arbiter_engine_cases_total
	EngineCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "cases_total",
		Help:      "Total evaluated cases by node, case and outcome",
	}, []string{"node", "case", "outcome", "error_type"})

	// EngineNodesTotal counts evaluated nodes.
	// Metric: arbiter_engine_nodes_total
	EngineNodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "nodes_total",
		Help:      "Total evaluated nodes by outcome",
	}, []string{"node", "outcome"})

	// -------------------------------------------------------------------------
	// EXPERIMENTS
	// -------------------------------------------------------------------------

	ExperimentVisitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "visits_total",
		Help:      "Total eligible experiment visits",
	}, []string{"experiment"})

	ExperimentResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "resolutions_total",
		Help:      "Total resolved experiment visits by result",
	}, []string{"experiment", "result"}) // success, failure

	ExperimentAdvancesLinkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "advances_linked_total",
		Help:      "Total downstream advances linked to successful visits",
	}, []string{"experiment", "first_time"})

	// -------------------------------------------------------------------------
	// OUTCOME WORKER
	// -------------------------------------------------------------------------

	OutcomeJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outcomes",
		Name:      "jobs_total",
		Help:      "Total advance-created events processed",
	}, []string{"status"}) // success, fail, invalid

	OutcomeJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outcomes",
		Name:      "job_processing_seconds",
		Help:      "Time taken to apply one advance-created event",
		Buckets:   prometheus.DefBuckets,
	})

	OutcomeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outcomes",
		Name:      "queue_depth",
		Help:      "Current number of pending advance-created events",
	})
)
