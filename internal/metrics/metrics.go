// Package metrics exposes scheduler and run instrumentation as Prometheus
// collectors on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// Run statuses
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var (
	// QueueLength tracks monsters waiting for a free slot
	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "combatsim_queue_length",
			Help: "Monsters queued for simulation",
		},
	)

	// WorkersBusy tracks slots currently running a job
	WorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "combatsim_workers_busy",
			Help: "Executor slots currently running a job",
		},
	)

	// JobsTotal counts finished jobs by outcome
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combatsim_jobs_total",
			Help: "Total number of simulation jobs finished",
		},
		[]string{"outcome"},
	)

	// RunsTotal counts finished runs by status
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combatsim_runs_total",
			Help: "Total number of simulation runs finished",
		},
		[]string{"status"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "combatsim_job_duration_seconds",
			Help:    "Wall time of one monster simulation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "combatsim_run_duration_seconds",
			Help:    "Wall time of a full simulation run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(QueueLength)
	prometheus.MustRegister(WorkersBusy)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(RunDuration)
}

// Observer records scheduler state changes. It implements simulation.Observer.
type Observer struct{}

var _ simulation.Observer = Observer{}

func (Observer) QueueLength(n int) {
	QueueLength.Set(float64(n))
}

func (Observer) BusySlots(n int) {
	WorkersBusy.Set(float64(n))
}

func (Observer) JobFinished(outcome string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(outcome).Inc()
	JobDuration.Observe(elapsed.Seconds())
}

// Listener records finished runs. It implements simulation.Listener.
type Listener struct{}

var _ simulation.Listener = Listener{}

func (Listener) Progress(simulation.Progress) {}

func (Listener) Complete(s simulation.Summary) {
	status := StatusCompleted
	if s.Cancelled {
		status = StatusCancelled
	}
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(s.Duration().Seconds())
}
