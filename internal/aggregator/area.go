package aggregator

import (
	"context"
	"fmt"
	"sort"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/fusion"
	"github.com/ahrav/go-cascade/internal/hermetic"
	"github.com/ahrav/go-cascade/internal/ports"
	"github.com/ahrav/go-cascade/internal/provenance"
)

// AreaResult is the output of the dimension-to-area stage.
type AreaResult struct {
	// Scores is ordered by area ID.
	Scores []domain.AreaScore
	// Nodes maps each area to its provenance node.
	Nodes map[domain.AreaID]provenance.NodeID
}

// Area aggregates dimension scores into per-area scores, validating the
// hermeticity of every area's dimension group first.
type Area struct {
	cfg     *config.Config
	weights ports.WeightResolver
	dag     *provenance.DAG
}

// NewArea creates the dimension-to-area aggregator.
func NewArea(cfg *config.Config, weights ports.WeightResolver, dag *provenance.DAG) *Area {
	return &Area{cfg: cfg, weights: weights, dag: dag}
}

// Aggregate groups dimension scores by area, checks each group against the
// configured dimension set, and fuses every area's available dimensions.
// In lenient mode a non-hermetic area aggregates its observed dimensions
// with renormalized weights and records the gap on the AreaScore; in strict
// mode it aborts the stage.
func (a *Area) Aggregate(ctx context.Context, dims *DimensionResult) (*AreaResult, error) {
	expected := a.cfg.Taxonomy.CellCount()
	if n := len(dims.Scores); n != expected {
		// Lenient mode tolerates missing cells; the per-area hermeticity
		// check records them. Surplus or empty input is always a fault.
		if a.cfg.Hermeticity == hermetic.ModeStrict || n == 0 || n > expected {
			return nil, domain.NewCardinalityError(StageArea, expected, n)
		}
	}

	groups := make(map[domain.AreaID][]domain.DimensionScore, len(a.cfg.Taxonomy.Areas))
	for _, ds := range dims.Scores {
		if !a.cfg.Taxonomy.HasArea(ds.Area) {
			return nil, &domain.HermeticityViolation{
				Group:      StageArea + " input",
				Unexpected: []string{string(ds.Area)},
			}
		}
		groups[ds.Area] = append(groups[ds.Area], ds)
	}

	// In lenient mode an area whose every cell is missing drops out here and
	// surfaces as a missing member at the cluster stage.
	areas := make([]domain.AreaID, 0, len(a.cfg.Taxonomy.Areas))
	for _, area := range a.cfg.Taxonomy.SortedAreas() {
		if len(groups[area]) == 0 && a.cfg.Hermeticity == hermetic.ModeLenient {
			continue
		}
		areas = append(areas, area)
	}
	expectedDims := make([]string, 0, len(a.cfg.Taxonomy.Dimensions))
	for _, d := range a.cfg.Taxonomy.SortedDimensions() {
		expectedDims = append(expectedDims, string(d))
	}

	outputs := make([]domain.AreaScore, len(areas))
	err := forEachParallel(ctx, len(areas), func(_ context.Context, i int) error {
		out, err := a.fuseArea(areas[i], groups[areas[i]], expectedDims)
		if err != nil {
			return err
		}
		outputs[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &AreaResult{
		Scores: outputs,
		Nodes:  make(map[domain.AreaID]provenance.NodeID, len(areas)),
	}
	for i, area := range areas {
		score := outputs[i]

		observed := sortedDimensionIDs(score.Dimensions)
		shares := normalizeShares(a.weights.DimensionWeightVector(observed))
		node := a.dag.AddNode(provenance.LevelArea, opWeightedMean, string(area), shares)
		for _, d := range observed {
			key := domain.GroupKey{Area: area, Dimension: d}
			from, ok := dims.Nodes[key]
			if !ok {
				return nil, fmt.Errorf("no provenance node for cell %s", key)
			}
			if err := a.dag.AddEdge(from, node); err != nil {
				return nil, err
			}
		}
		result.Nodes[area] = node
	}
	return result, nil
}

func (a *Area) fuseArea(area domain.AreaID, group []domain.DimensionScore, expectedDims []string) (domain.AreaScore, error) {
	byDim := make(map[domain.DimensionID]domain.DimensionScore, len(group))
	observed := make([]string, 0, len(group))
	for _, ds := range group {
		if _, dup := byDim[ds.Dimension]; dup {
			return domain.AreaScore{}, &domain.HermeticityViolation{
				Group:      string(area),
				Unexpected: []string{string(ds.Dimension) + " (duplicate)"},
			}
		}
		byDim[ds.Dimension] = ds
		observed = append(observed, string(ds.Dimension))
	}

	report, err := hermetic.Check(string(area), expectedDims, observed, a.cfg.Hermeticity)
	if err != nil {
		return domain.AreaScore{}, err
	}
	if len(byDim) == 0 {
		return domain.AreaScore{}, fmt.Errorf("area %s: %w: no dimension scores", area, domain.ErrEmptyInput)
	}

	dims := sortedDimensionIDs(byDim)
	scores := make([]float64, len(dims))
	for i, d := range dims {
		scores[i] = byDim[d].Score
	}

	weights := a.weights.DimensionWeightVector(dims)
	// A hermetic area uses the configured table as-is; a degraded one
	// renormalizes over the observed subset.
	mode := fusion.NormalizationStrict
	if !report.Hermetic {
		mode = fusion.NormalizationAuto
	}
	fused, err := fusion.WeightedMean(scores, weights, mode)
	if err != nil {
		return domain.AreaScore{}, fmt.Errorf("area %s: %w", area, err)
	}

	weakest := dims[0]
	for _, d := range dims[1:] {
		if byDim[d].Score < byDim[weakest].Score {
			weakest = d
		}
	}

	missing := make([]domain.DimensionID, 0, len(report.Missing))
	for _, m := range report.Missing {
		missing = append(missing, domain.DimensionID(m))
	}
	if len(missing) == 0 {
		missing = nil
	}

	return domain.AreaScore{
		Area:              area,
		Score:             clampScore(fused, a.cfg.ScaleMax),
		Dimensions:        byDim,
		Hermetic:          report.Hermetic,
		MissingDimensions: missing,
		WeakestDimension:  weakest,
	}, nil
}

// sortedDimensionIDs returns the map's keys in lexicographic order; the
// canonical iteration order for every fusion over dimensions.
func sortedDimensionIDs(m map[domain.DimensionID]domain.DimensionScore) []domain.DimensionID {
	out := make([]domain.DimensionID, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
