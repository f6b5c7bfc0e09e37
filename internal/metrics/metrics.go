package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

const (
	namespace = "report_autofill"

	// Labels
	outcomeLabel = "outcome"
	statusLabel  = "status"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	jobs            *prometheus.CounterVec
	dedupSkips      prometheus.Counter
	batches         prometheus.Counter
	batchDuration   prometheus.Histogram
	inFlight        prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submission_attempts_total",
				Help:      "Number of submission attempts by outcome",
			},
			[]string{outcomeLabel},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_attempt_duration_seconds",
				Help:      "Duration of one submission attempt",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{outcomeLabel},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Number of jobs that reached a terminal status",
			},
			[]string{statusLabel},
		),
		dedupSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_skips_total",
			Help:      "Jobs skipped because the revision was already submitted",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Number of completed batch runs",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch run",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempts_in_flight",
			Help:      "Submission attempts currently running",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.attempts,
			m.attemptDuration,
			m.jobs,
			m.dedupSkips,
			m.batches,
			m.batchDuration,
			m.inFlight,
		)
	}

	return m
}

// AttemptStarted marks one attempt as in flight
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// AttemptFinished records the outcome and duration of one attempt
func (m *Metrics) AttemptFinished(outcome domain.OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.attempts.WithLabelValues(string(outcome)).Inc()
	m.attemptDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// JobFinished counts a job reaching a terminal status
func (m *Metrics) JobFinished(result domain.JobResult) {
	if m == nil {
		return
	}
	if result.Deduplicated {
		m.dedupSkips.Inc()
	}
	m.jobs.WithLabelValues(string(result.Status)).Inc()
}

// BatchFinished records a completed batch run
func (m *Metrics) BatchFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.batchDuration.Observe(elapsed.Seconds())
}
