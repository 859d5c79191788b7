// Package middleware provides cross-cutting observability adapters for the
// aggregation engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-cascade/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It exposes pipeline run outcomes, per-stage latency,
// hermeticity warnings, and the latest global score.
type PrometheusMetrics struct {
	stageLatency        *prometheus.HistogramVec
	runsTotal           *prometheus.CounterVec
	stageFailures       *prometheus.CounterVec
	hermeticityWarnings *prometheus.CounterVec
	operationCounter    *prometheus.CounterVec
	scoreDistribution   *prometheus.HistogramVec
	systemGauges        *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance registered in
// the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWith registers the metrics in the given registerer.
// Tests use a fresh registry to avoid duplicate registration panics.
func NewPrometheusMetricsWith(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cascade_stage_duration_seconds",
				Help:    "Execution time of each aggregation stage.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "stage"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal status.",
			},
			[]string{"status"},
		),
		stageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_stage_failures_total",
				Help: "Total number of aggregation stage failures.",
			},
			[]string{"stage"},
		),
		hermeticityWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_hermeticity_warnings_total",
				Help: "Groups aggregated with incomplete membership in lenient mode.",
			},
			[]string{"group"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_operations_total",
				Help: "Total engine operations not covered by a dedicated counter.",
			},
			[]string{"operation"},
		),
		scoreDistribution: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cascade_score_distribution",
				Help:    "Distribution of emitted scores by stage.",
				Buckets: prometheus.LinearBuckets(0, 0.25, 13),
			},
			[]string{"metric", "stage"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cascade_system_state",
				Help: "Current engine state values, including the latest global score.",
			},
			[]string{"metric"},
		),
	}
}

func stageLabel(labels map[string]string) string {
	if stage, ok := labels["stage"]; ok && stage != "" {
		return stage
	}
	return "all"
}

// RecordLatency implements the MetricsCollector interface by recording
// operation durations in the stage latency histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string, duration time.Duration, labels map[string]string,
) {
	pm.stageLatency.WithLabelValues(operation, stageLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// the matching Prometheus counter.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "pipeline_runs_total":
		status, ok := labels["status"]
		if !ok {
			status = "unknown"
		}
		pm.runsTotal.WithLabelValues(status).Add(value)
	case "stage_failures_total":
		pm.stageFailures.WithLabelValues(stageLabel(labels)).Add(value)
	case "hermeticity_warnings_total":
		group, ok := labels["group"]
		if !ok {
			group = "unknown"
		}
		pm.hermeticityWarnings.WithLabelValues(group).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting the
// matching system gauge.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in the score distribution histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	pm.scoreDistribution.WithLabelValues(metric, stageLabel(labels)).Observe(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
