package metrics_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.JobQueued()
		m.JobSkipped("locked")
		m.JobFinished("succeeded", time.Second)
		m.GenerationCall("evaluate", "ok")
		m.GenerationRetry()
		m.RateLimited(time.Millisecond)
		m.CacheFallback("get")
		m.SyncRequest("cached")
	})
}

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.JobQueued()
	m.JobQueued()
	m.JobFinished("failed", 3*time.Second)
	m.GenerationCall("guide", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsQueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationCalls.WithLabelValues("guide", "error")))
}

func TestNew_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New(prometheus.NewRegistry())
		metrics.New(prometheus.NewRegistry())
	})
}
