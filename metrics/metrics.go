package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets spans quick interpreter runs up to long compiles.
var ExecutionBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Execution outcomes
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	// ExecutionsTotal counts pipeline executions by language and outcome.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"language", "outcome"},
	)

	// ExecutionDuration records the wall time of a whole pipeline run.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codebot_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"language"},
	)

	// PoolAcquireTotal counts pool acquisitions by result (hit/miss).
	PoolAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_pool_acquire_total",
			Help: "Container pool acquisitions",
		},
		[]string{"result"},
	)

	// PoolIdle tracks the number of idle pooled containers.
	PoolIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codebot_pool_idle",
			Help: "Idle pooled containers",
		},
	)

	// SandboxesActive tracks sandbox containers created by this process and not yet stopped.
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codebot_sandboxes_active",
			Help: "Live sandbox containers",
		},
	)

	// SweepRemovedTotal counts orphaned containers removed by the sweep.
	SweepRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codebot_sweep_removed_total",
			Help: "Orphaned sandbox containers removed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		PoolAcquireTotal,
		PoolIdle,
		SandboxesActive,
		SweepRemovedTotal,
	)
}
