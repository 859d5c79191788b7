package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/hermetic"
	"github.com/ahrav/go-cascade/internal/provenance"
)

func TestAreaAggregate_HermeticUniform(t *testing.T) {
	cfg := testConfig(t)
	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), uniformItems(cfg, 0.5))
	require.NoError(t, err)

	result, err := NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)
	require.NoError(t, err)

	require.Len(t, result.Scores, len(cfg.Taxonomy.Areas))
	for _, as := range result.Scores {
		assert.True(t, as.Hermetic)
		assert.Nil(t, as.MissingDimensions)
		assert.InDelta(t, 1.5, as.Score, 1e-9)
		assert.Len(t, as.Dimensions, len(cfg.Taxonomy.Dimensions))
		// All dimensions tie; the lexicographically first one wins.
		assert.Equal(t, domain.DimensionID("definition"), as.WeakestDimension)
	}
}

func TestAreaAggregate_WeightedDimensions(t *testing.T) {
	cfg := testConfig(t)
	cfg.DimensionWeights = map[domain.DimensionID]float64{
		"definition":     0.5,
		"implementation": 0.3,
		"monitoring":     0.2,
	}
	require.NoError(t, cfg.Validate())

	perDim := map[domain.DimensionID]float64{
		"definition":     0.9, // 2.7 on the raw scale
		"implementation": 0.3, // 0.9
		"monitoring":     0.6, // 1.8
	}
	items := makeItems(cfg, func(key domain.GroupKey, _ int) float64 {
		return perDim[key.Dimension]
	})

	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), items)
	require.NoError(t, err)
	result, err := NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)
	require.NoError(t, err)

	for _, as := range result.Scores {
		// 0.5*2.7 + 0.3*0.9 + 0.2*1.8 = 1.98
		assert.InDelta(t, 1.98, as.Score, 1e-9)
		assert.Equal(t, domain.DimensionID("implementation"), as.WeakestDimension)
	}
}

func TestAreaAggregate_CardinalityMismatchStrict(t *testing.T) {
	cfg := testConfig(t)
	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), uniformItems(cfg, 0.5))
	require.NoError(t, err)

	dims.Scores = dims.Scores[:len(dims.Scores)-1]
	_, err = NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)

	var cardErr *domain.CardinalityError
	require.ErrorAs(t, err, &cardErr)
	assert.Equal(t, StageArea, cardErr.Stage)
}

func TestAreaAggregate_DuplicateDimension(t *testing.T) {
	cfg := testConfig(t)
	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), uniformItems(cfg, 0.5))
	require.NoError(t, err)

	// Same count, but one cell replaced by a duplicate of another.
	last := len(dims.Scores) - 1
	dup := dims.Scores[last-1]
	dims.Scores[last] = dup

	_, err = NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)
	var hermErr *domain.HermeticityViolation
	require.ErrorAs(t, err, &hermErr)
}

func TestAreaAggregate_LenientMissingDimension(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hermeticity = hermetic.ModeLenient

	missing := domain.GroupKey{Area: "beta", Dimension: "monitoring"}
	perDim := map[domain.DimensionID]float64{
		"definition":     0.9,
		"implementation": 0.3,
		"monitoring":     0.6,
	}
	items := dropCell(makeItems(cfg, func(key domain.GroupKey, _ int) float64 {
		return perDim[key.Dimension]
	}), missing)

	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), items)
	require.NoError(t, err)
	result, err := NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)
	require.NoError(t, err)

	require.Len(t, result.Scores, len(cfg.Taxonomy.Areas))
	for _, as := range result.Scores {
		if as.Area != "beta" {
			assert.True(t, as.Hermetic, "area %s", as.Area)
			continue
		}
		assert.False(t, as.Hermetic)
		assert.Equal(t, []domain.DimensionID{"monitoring"}, as.MissingDimensions)
		// Equal weights renormalized over the two observed dimensions:
		// (2.7 + 0.9) / 2 = 1.8.
		assert.InDelta(t, 1.8, as.Score, 1e-9)
	}
}

func TestAreaAggregate_LenientDropsEmptyArea(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hermeticity = hermetic.ModeLenient

	items := dropArea(uniformItems(cfg, 0.5), "gamma")

	dag := provenance.New()
	dims, err := NewDimension(cfg, cfg, dag).Aggregate(context.Background(), items)
	require.NoError(t, err)
	result, err := NewArea(cfg, cfg, dag).Aggregate(context.Background(), dims)
	require.NoError(t, err)

	assert.Len(t, result.Scores, len(cfg.Taxonomy.Areas)-1)
	_, ok := result.Nodes["gamma"]
	assert.False(t, ok)
}
