// Package metrics holds the Prometheus instruments for the analysis pipeline.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "aianalysis"
	Subsystem = "jobs"
)

type Metrics struct {
	JobsQueued        prometheus.Counter
	JobsSkipped       *prometheus.CounterVec
	JobsFinished      *prometheus.CounterVec
	JobDuration       prometheus.Histogram
	GenerationCalls   *prometheus.CounterVec
	GenerationRetries prometheus.Counter
	RateLimitWait     prometheus.Histogram
	CacheFallbacks    *prometheus.CounterVec
	SyncRequests      *prometheus.CounterVec
}

// New creates and registers all pipeline metrics on reg.
// A nil reg registers on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "queued_total",
			Help:      "Jobs created and handed to the dispatcher",
		}),
		JobsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "skipped_total",
			Help:      "Queue requests that did not create a job, by reason",
		}, []string{"reason"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "finished_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"status"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "duration_seconds",
			Help:      "Wall time of the processing routine",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
		}),
		GenerationCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "generation",
			Name:      "calls_total",
			Help:      "Generation backend calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		GenerationRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "generation",
			Name:      "retries_total",
			Help:      "Backoff retries after a failed generation attempt",
		}),
		RateLimitWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a generation token",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		CacheFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cache",
			Name:      "fallbacks_total",
			Help:      "Cache operations that failed and fell back to local state",
		}, []string{"op"}),
		SyncRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "requests_total",
			Help:      "Synchronous get-or-generate outcomes",
		}, []string{"source"}),
	}
}

func (m *Metrics) JobQueued() {
	if m == nil {
		return
	}
	m.JobsQueued.Inc()
}

func (m *Metrics) JobSkipped(reason string) {
	if m == nil {
		return
	}
	m.JobsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) GenerationCall(kind, outcome string) {
	if m == nil {
		return
	}
	m.GenerationCalls.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) GenerationRetry() {
	if m == nil {
		return
	}
	m.GenerationRetries.Inc()
}

func (m *Metrics) RateLimited(wait time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(wait.Seconds())
}

func (m *Metrics) CacheFallback(op string) {
	if m == nil {
		return
	}
	m.CacheFallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) SyncRequest(source string) {
	if m == nil {
		return
	}
	m.SyncRequests.WithLabelValues(source).Inc()
}
