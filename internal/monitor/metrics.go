package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rdee"

const batchSubsystem = "batch"

// Metrics mirrors monitor counters into Prometheus collectors.
type Metrics struct {
	// ValidationsTotal counts validation outcomes by status (valid, invalid).
	ValidationsTotal *prometheus.CounterVec

	// OutcomesTotal counts finalized runs by result and collapse stage.
	OutcomesTotal *prometheus.CounterVec

	// EngineErrorsTotal counts runs that raised instead of finalizing.
	EngineErrorsTotal prometheus.Counter

	// StorageTotal counts trace writes by status (success, failure).
	StorageTotal *prometheus.CounterVec

	// RecursionDepth observes the deepest level of each run.
	RecursionDepth prometheus.Histogram

	// NodesEvaluated observes branches evaluated per run.
	NodesEvaluated prometheus.Histogram

	// RunDurationSeconds observes engine wall time per run.
	RunDurationSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "validations_total",
				Help:      "Parameter set validations by status",
			},
			[]string{"status"},
		),

		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "outcomes_total",
				Help:      "Finalized root runs by result and collapse stage",
			},
			[]string{"result", "collapse_stage"},
		),

		EngineErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "engine_errors_total",
				Help:      "Root runs aborted by configuration faults, budget exhaustion or cancellation",
			},
		),

		StorageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "storage_total",
				Help:      "Trace writes by status",
			},
			[]string{"status"},
		),

		RecursionDepth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "recursion_depth",
				Help:      "Deepest recursion level reached per run",
				Buckets:   prometheus.LinearBuckets(0, 1, 16),
			},
		),

		NodesEvaluated: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "nodes_evaluated",
				Help:      "Branches evaluated per run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 20),
			},
		),

		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: batchSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Engine wall time per root run in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60},
			},
		),
	}
}
