package aggregator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/dispersion"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/hermetic"
	"github.com/ahrav/go-cascade/internal/provenance"
)

// testConfig returns a compact but fully valid configuration: five areas
// across three dimensions, partitioned into two clusters, two items per
// cell (30 items, 15 cells).
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		ScaleMax: 3.0,
		Taxonomy: domain.Taxonomy{
			Areas:      []domain.AreaID{"alpha", "beta", "gamma", "delta", "epsilon"},
			Dimensions: []domain.DimensionID{"definition", "implementation", "monitoring"},
			Clusters: []domain.Cluster{
				{ID: "north", Members: []domain.AreaID{"alpha", "beta", "gamma"}},
				{ID: "south", Members: []domain.AreaID{"delta", "epsilon"}},
			},
			ItemsPerCell: 2,
		},
		Hermeticity: hermetic.ModeStrict,
		DimensionFusion: config.DimensionFusion{
			Method: config.FusionWeightedMean,
		},
		Dispersion:   dispersion.DefaultThresholds(),
		Penalty:      config.PenaltyConfig{Weight: 0.5, Cap: 0.3},
		GapThreshold: 0.55,
		QualityBands: []config.QualityBand{
			{Name: "excellent", Min: 0.85},
			{Name: "good", Min: 0.70},
			{Name: "acceptable", Min: 0.55},
			{Name: "insufficient", Min: 0.0},
		},
		Coherence: config.CoherenceWeights{Strategic: 0.4, Operational: 0.4, Institutional: 0.2},
		Alignment: config.AlignmentWeights{Vertical: 0.4, Horizontal: 0.3, Temporal: 0.3},
		AlignmentPairs: config.AlignmentPairs{
			Vertical: config.DimensionPair{A: "definition", B: "implementation"},
			Temporal: config.DimensionPair{A: "monitoring", B: "definition"},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// makeItems builds one complete item set for the taxonomy, calling score for
// each (cell, index) pair to produce the normalized item score.
func makeItems(cfg *config.Config, score func(key domain.GroupKey, i int) float64) []domain.ScoredItem {
	items := make([]domain.ScoredItem, 0, cfg.Taxonomy.ExpectedItemCount())
	for _, area := range cfg.Taxonomy.SortedAreas() {
		for _, dim := range cfg.Taxonomy.SortedDimensions() {
			key := domain.GroupKey{Area: area, Dimension: dim}
			for i := 0; i < cfg.Taxonomy.ItemsPerCell; i++ {
				items = append(items, domain.ScoredItem{
					ItemID: fmt.Sprintf("%s/%s/item-%d", area, dim, i),
					Key:    key,
					Score:  score(key, i),
				})
			}
		}
	}
	return items
}

func uniformItems(cfg *config.Config, v float64) []domain.ScoredItem {
	return makeItems(cfg, func(domain.GroupKey, int) float64 { return v })
}

// dropCell removes every item of the given cell.
func dropCell(items []domain.ScoredItem, key domain.GroupKey) []domain.ScoredItem {
	out := make([]domain.ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Key == key {
			continue
		}
		out = append(out, it)
	}
	return out
}

// dropArea removes every item belonging to the given area.
func dropArea(items []domain.ScoredItem, area domain.AreaID) []domain.ScoredItem {
	out := make([]domain.ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Key.Area == area {
			continue
		}
		out = append(out, it)
	}
	return out
}

// runAll drives all four stages over a fresh provenance DAG, failing the
// test on any stage error.
func runAll(t *testing.T, cfg *config.Config, items []domain.ScoredItem) (*GlobalResult, *provenance.DAG) {
	t.Helper()
	ctx := context.Background()
	dag := provenance.New()

	dims, err := NewDimension(cfg, cfg, dag).Aggregate(ctx, items)
	require.NoError(t, err)
	areas, err := NewArea(cfg, cfg, dag).Aggregate(ctx, dims)
	require.NoError(t, err)
	clusters, err := NewCluster(cfg, cfg, dag).Aggregate(ctx, areas)
	require.NoError(t, err)
	global, err := NewGlobal(cfg, cfg, dag).Aggregate(ctx, clusters)
	require.NoError(t, err)
	return global, dag
}
