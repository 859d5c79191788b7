// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"time"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like completed runs, stage
	// failures, or hermeticity warnings.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the latest global score.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like per-stage score spreads.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// RunObserver receives lifecycle callbacks for pipeline runs and stages.
// Implementations typically open tracing spans; the returned contexts carry
// span state back into the driver.
type RunObserver interface {
	// OnRunStart is called once when a pipeline run begins.
	OnRunStart(ctx context.Context, runID string) context.Context

	// OnStageStart is called before each aggregation stage executes.
	OnStageStart(ctx context.Context, stage string) context.Context

	// OnStageEnd is called after a stage completes, with its error if any.
	OnStageEnd(ctx context.Context, stage string, err error)

	// OnRunEnd is called once when the run terminates, successfully or not.
	OnRunEnd(ctx context.Context, err error)
}
