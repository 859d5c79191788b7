// Package pipeline drives the four aggregation stages as an explicit state
// machine: items flow to dimension, area, cluster, and global scores, each
// transition validated before the next stage starts. A stage failure stops
// the run and preserves the partial results and provenance produced so far.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-cascade/internal/aggregator"
	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/ports"
	"github.com/ahrav/go-cascade/internal/provenance"
	"github.com/ahrav/go-cascade/pkg/logger"
)

// State is the lifecycle state of one pipeline run.
type State string

const (
	StateInit          State = "INIT"
	StateDimensionDone State = "DIMENSION_DONE"
	StateAreaDone      State = "AREA_DONE"
	StateClusterDone   State = "CLUSTER_DONE"
	StateGlobalDone    State = "GLOBAL_DONE"
	StateFailed        State = "FAILED"
)

// Result bundles everything one run produced. On failure the slices hold
// whatever the completed stages emitted and FailedStage names the stage that
// aborted; the provenance DAG always reflects exactly the completed work.
type Result struct {
	RunID string
	State State
	// FailedStage is empty unless State is StateFailed.
	FailedStage string

	Dimensions []domain.DimensionScore
	Areas      []domain.AreaScore
	Clusters   []domain.ClusterScore
	Global     *domain.GlobalScore

	Provenance *provenance.DAG
	// GlobalNode is the provenance node of the global score, valid only
	// when State is StateGlobalDone.
	GlobalNode provenance.NodeID

	StartedAt  time.Time
	FinishedAt time.Time
}

// Driver owns the stage sequencing for pipeline runs. A Driver is immutable
// after construction and safe for concurrent runs; each run gets its own
// provenance DAG.
type Driver struct {
	cfg      *config.Config
	metrics  ports.MetricsCollector
	observer ports.RunObserver
	log      logger.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithMetrics wires a metrics collector into the driver.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(d *Driver) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithObserver wires a run observer into the driver.
func WithObserver(o ports.RunObserver) Option {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// New validates the configuration and builds a Driver. An invalid
// configuration is rejected here so every subsequent run can trust it.
func New(cfg *config.Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:      cfg,
		metrics:  nopMetrics{},
		observer: nopObserver{},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run executes all four stages over the given scored items. The returned
// Result is non-nil even on error, carrying the partial outputs and the
// failed stage; the error itself is the stage error unchanged.
func (d *Driver) Run(ctx context.Context, items []domain.ScoredItem) (*Result, error) {
	result := &Result{
		RunID:      uuid.NewString(),
		State:      StateInit,
		Provenance: provenance.New(),
		StartedAt:  time.Now(),
	}

	ctx = d.observer.OnRunStart(ctx, result.RunID)
	d.log.Info(ctx, "pipeline run started",
		logger.String("run_id", result.RunID),
		logger.Int("items", len(items)))

	err := d.runStages(ctx, items, result)

	result.FinishedAt = time.Now()
	d.observer.OnRunEnd(ctx, err)

	status := "success"
	if err != nil {
		status = "failure"
		d.log.Error(ctx, "pipeline run failed",
			logger.String("run_id", result.RunID),
			logger.String("stage", result.FailedStage),
			logger.Err(err))
	} else {
		d.log.Info(ctx, "pipeline run completed",
			logger.String("run_id", result.RunID),
			logger.Float64("global_score", result.Global.Score),
			logger.String("quality", string(result.Global.QualityLevel)),
			logger.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
		d.metrics.RecordGauge("pipeline_global_score", result.Global.Score, nil)
	}
	d.metrics.RecordCounter("pipeline_runs_total", 1, map[string]string{"status": status})
	d.metrics.RecordLatency("pipeline_run", result.FinishedAt.Sub(result.StartedAt), nil)

	return result, err
}

func (d *Driver) runStages(ctx context.Context, items []domain.ScoredItem, result *Result) error {
	dag := result.Provenance

	dims, err := runStage(d, ctx, aggregator.StageDimension, result, func(ctx context.Context) (*aggregator.DimensionResult, error) {
		return aggregator.NewDimension(d.cfg, d.cfg, dag).Aggregate(ctx, items)
	})
	if err != nil {
		return err
	}
	result.Dimensions = dims.Scores
	result.State = StateDimensionDone

	areas, err := runStage(d, ctx, aggregator.StageArea, result, func(ctx context.Context) (*aggregator.AreaResult, error) {
		return aggregator.NewArea(d.cfg, d.cfg, dag).Aggregate(ctx, dims)
	})
	if err != nil {
		return err
	}
	result.Areas = areas.Scores
	result.State = StateAreaDone
	d.warnDegradedAreas(ctx, areas.Scores)

	clusters, err := runStage(d, ctx, aggregator.StageCluster, result, func(ctx context.Context) (*aggregator.ClusterResult, error) {
		return aggregator.NewCluster(d.cfg, d.cfg, dag).Aggregate(ctx, areas)
	})
	if err != nil {
		return err
	}
	result.Clusters = clusters.Scores
	result.State = StateClusterDone
	d.warnDegradedClusters(ctx, clusters.Scores)

	global, err := runStage(d, ctx, aggregator.StageGlobal, result, func(ctx context.Context) (*aggregator.GlobalResult, error) {
		return aggregator.NewGlobal(d.cfg, d.cfg, dag).Aggregate(ctx, clusters)
	})
	if err != nil {
		return err
	}
	result.Global = &global.Score
	result.GlobalNode = global.Node
	result.State = StateGlobalDone
	return nil
}

// runStage wraps one stage with observability and the failure transition.
func runStage[T any](d *Driver, ctx context.Context, stage string, result *Result, fn func(ctx context.Context) (T, error)) (T, error) {
	stageCtx := d.observer.OnStageStart(ctx, stage)
	start := time.Now()

	out, err := fn(stageCtx)

	d.metrics.RecordLatency("stage_duration", time.Since(start), map[string]string{"stage": stage})
	d.observer.OnStageEnd(stageCtx, stage, err)
	if err != nil {
		d.metrics.RecordCounter("stage_failures_total", 1, map[string]string{"stage": stage})
		result.State = StateFailed
		result.FailedStage = stage
		return out, err
	}
	d.log.Debug(stageCtx, "stage completed",
		logger.String("stage", stage),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (d *Driver) warnDegradedAreas(ctx context.Context, areas []domain.AreaScore) {
	for _, as := range areas {
		if as.Hermetic {
			continue
		}
		d.metrics.RecordCounter("hermeticity_warnings_total", 1,
			map[string]string{"group": string(as.Area)})
		d.log.Warn(ctx, "area aggregated without full dimension coverage",
			logger.String("area", string(as.Area)),
			logger.Any("missing", as.MissingDimensions))
	}
}

func (d *Driver) warnDegradedClusters(ctx context.Context, clusters []domain.ClusterScore) {
	for _, cs := range clusters {
		if !cs.Hermetic {
			d.metrics.RecordCounter("hermeticity_warnings_total", 1,
				map[string]string{"group": string(cs.Cluster)})
			d.log.Warn(ctx, "cluster aggregated without full area coverage",
				logger.String("cluster", string(cs.Cluster)),
				logger.Any("missing", cs.MissingAreas))
		}
		if cs.Scenario == domain.ScenarioHigh || cs.Scenario == domain.ScenarioExtreme {
			d.log.Warn(ctx, "high dispersion detected",
				logger.String("cluster", string(cs.Cluster)),
				logger.String("scenario", string(cs.Scenario)),
				logger.Float64("cv", cs.Dispersion.CV),
				logger.Float64("penalty_factor", cs.PenaltyFactor))
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (nopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (nopMetrics) RecordGauge(string, float64, map[string]string)        {}
func (nopMetrics) RecordHistogram(string, float64, map[string]string)    {}

type nopObserver struct{}

func (nopObserver) OnRunStart(ctx context.Context, _ string) context.Context   { return ctx }
func (nopObserver) OnStageStart(ctx context.Context, _ string) context.Context { return ctx }
func (nopObserver) OnStageEnd(context.Context, string, error)                  {}
func (nopObserver) OnRunEnd(context.Context, error)                            {}
