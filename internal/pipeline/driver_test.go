package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/hermetic"
)

func fullItems(cfg *config.Config, score float64) []domain.ScoredItem {
	items := make([]domain.ScoredItem, 0, cfg.Taxonomy.ExpectedItemCount())
	for _, area := range cfg.Taxonomy.SortedAreas() {
		for _, dim := range cfg.Taxonomy.SortedDimensions() {
			for i := 0; i < cfg.Taxonomy.ItemsPerCell; i++ {
				items = append(items, domain.ScoredItem{
					ItemID: fmt.Sprintf("%s/%s/item-%d", area, dim, i),
					Key:    domain.GroupKey{Area: area, Dimension: dim},
					Score:  score,
				})
			}
		}
	}
	return items
}

func withoutArea(items []domain.ScoredItem, area domain.AreaID) []domain.ScoredItem {
	out := make([]domain.ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Key.Area != area {
			out = append(out, it)
		}
	}
	return out
}

func TestDriverRun_Success(t *testing.T) {
	cfg := config.Default()
	driver, err := New(cfg)
	require.NoError(t, err)

	result, err := driver.Run(context.Background(), fullItems(cfg, 2.0/3.0))
	require.NoError(t, err)

	assert.Equal(t, StateGlobalDone, result.State)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.FailedStage)
	assert.Len(t, result.Dimensions, 60)
	assert.Len(t, result.Areas, 10)
	assert.Len(t, result.Clusters, 4)
	require.NotNil(t, result.Global)
	assert.InDelta(t, 2.0, result.Global.Score, 1e-9)
	assert.Equal(t, domain.QualityLevel("acceptable"), result.Global.QualityLevel)
	// 300 item leaves + 60 cells + 10 areas + 4 clusters + 1 global.
	assert.Equal(t, 375, result.Provenance.Len())
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestDriverNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Taxonomy.Clusters[0].Members = nil

	_, err := New(cfg)
	require.Error(t, err)
}

func TestDriverRun_FailsAtDimensionStage(t *testing.T) {
	cfg := config.Default()
	driver, err := New(cfg)
	require.NoError(t, err)

	items := fullItems(cfg, 0.5)
	result, err := driver.Run(context.Background(), items[:len(items)-1])

	var cardErr *domain.CardinalityError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "dimension", result.FailedStage)
	assert.Empty(t, result.Dimensions)
	assert.Nil(t, result.Global)
}

func TestDriverRun_FailsAtClusterStageKeepsPartials(t *testing.T) {
	cfg := config.Default()
	cfg.Hermeticity = hermetic.ModeLenient
	driver, err := New(cfg)
	require.NoError(t, err)

	// Dropping one of inclusion's two areas leaves a single-area cluster,
	// where dispersion is undefined.
	items := withoutArea(fullItems(cfg, 0.5), "participation")
	result, err := driver.Run(context.Background(), items)

	var dispErr *domain.DispersionComputationError
	require.ErrorAs(t, err, &dispErr)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "cluster", result.FailedStage)
	assert.Len(t, result.Dimensions, 54)
	assert.Len(t, result.Areas, 9)
	assert.Empty(t, result.Clusters)
	assert.Nil(t, result.Global)
	// Provenance holds exactly the completed stages' nodes:
	// 270 items + 54 cells + 9 areas.
	assert.Equal(t, 333, result.Provenance.Len())
}

func TestDriverRun_RepeatRunsAreIdentical(t *testing.T) {
	cfg := config.Default()
	driver, err := New(cfg)
	require.NoError(t, err)

	items := fullItems(cfg, 0.5)
	for i := range items {
		items[i].Score = float64(i%7) / 10.0
	}

	first, err := driver.Run(context.Background(), items)
	require.NoError(t, err)
	second, err := driver.Run(context.Background(), items)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Global, second.Global)
	assert.Equal(t, first.Dimensions, second.Dimensions)
	assert.Equal(t, first.GlobalNode, second.GlobalNode)
	assert.Equal(t, first.Provenance.EdgeSet(), second.Provenance.EdgeSet())
}

// recordingObserver captures the lifecycle callback sequence.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) OnRunStart(ctx context.Context, runID string) context.Context {
	o.record("run_start")
	return ctx
}

func (o *recordingObserver) OnStageStart(ctx context.Context, stage string) context.Context {
	o.record("start:" + stage)
	return ctx
}

func (o *recordingObserver) OnStageEnd(_ context.Context, stage string, err error) {
	if err != nil {
		o.record("fail:" + stage)
		return
	}
	o.record("end:" + stage)
}

func (o *recordingObserver) OnRunEnd(_ context.Context, err error) {
	o.record("run_end")
}

// countingMetrics counts metric emissions by name.
type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	latency  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

func (m *countingMetrics) RecordLatency(string, time.Duration, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency++
}

func (m *countingMetrics) RecordCounter(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric] += value
}

func (m *countingMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
}

func (m *countingMetrics) RecordHistogram(string, float64, map[string]string) {}

func TestDriverRun_ObservabilityWiring(t *testing.T) {
	cfg := config.Default()
	obs := &recordingObserver{}
	metrics := newCountingMetrics()

	driver, err := New(cfg, WithObserver(obs), WithMetrics(metrics))
	require.NoError(t, err)

	result, err := driver.Run(context.Background(), fullItems(cfg, 2.0/3.0))
	require.NoError(t, err)

	want := []string{
		"run_start",
		"start:dimension", "end:dimension",
		"start:area", "end:area",
		"start:cluster", "end:cluster",
		"start:global", "end:global",
		"run_end",
	}
	assert.Equal(t, want, obs.events)

	assert.Equal(t, 1.0, metrics.counters["pipeline_runs_total"])
	assert.InDelta(t, result.Global.Score, metrics.gauges["pipeline_global_score"], 1e-9)
	// Four stage latencies plus the run latency.
	assert.Equal(t, 5, metrics.latency)
}

func TestDriverRun_ObserverSeesStageFailure(t *testing.T) {
	cfg := config.Default()
	obs := &recordingObserver{}
	metrics := newCountingMetrics()

	driver, err := New(cfg, WithObserver(obs), WithMetrics(metrics))
	require.NoError(t, err)

	_, err = driver.Run(context.Background(), nil)
	require.Error(t, err)

	want := []string{"run_start", "start:dimension", "fail:dimension", "run_end"}
	assert.Equal(t, want, obs.events)
	assert.Equal(t, 1.0, metrics.counters["stage_failures_total"])
}
