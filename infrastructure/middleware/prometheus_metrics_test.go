package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Each test builds its instance against a fresh registry so repeated
// registration cannot panic.
func newTestMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.NewRegistry())
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "success"})
	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "success"})
	pm.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": "failure"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.runsTotal.WithLabelValues("failure")))
}

func TestPrometheusMetrics_RecordCounterFallback(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("custom_event", 3, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("custom_event")))
}

func TestPrometheusMetrics_StageFailures(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("stage_failures_total", 1, map[string]string{"stage": "cluster"})
	pm.RecordCounter("stage_failures_total", 1, map[string]string{})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.stageFailures.WithLabelValues("cluster")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.stageFailures.WithLabelValues("all")))
}

func TestPrometheusMetrics_HermeticityWarnings(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordCounter("hermeticity_warnings_total", 1, map[string]string{"group": "inclusion"})
	pm.RecordCounter("hermeticity_warnings_total", 1, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.hermeticityWarnings.WithLabelValues("inclusion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.hermeticityWarnings.WithLabelValues("unknown")))
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordGauge("pipeline_global_score", 2.1, nil)
	pm.RecordGauge("pipeline_global_score", 1.8, nil)

	assert.Equal(t, 1.8, testutil.ToFloat64(pm.systemGauges.WithLabelValues("pipeline_global_score")))
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordLatency("stage_duration", 120*time.Millisecond, map[string]string{"stage": "dimension"})
	pm.RecordLatency("pipeline_run", time.Second, nil)

	// One series per (operation, stage) combination.
	assert.Equal(t, 2, testutil.CollectAndCount(pm.stageLatency))
}

func TestPrometheusMetrics_RecordHistogram(t *testing.T) {
	pm := newTestMetrics()

	pm.RecordHistogram("cluster_score", 2.4, map[string]string{"stage": "cluster"})

	assert.Equal(t, 1, testutil.CollectAndCount(pm.scoreDistribution))
}
