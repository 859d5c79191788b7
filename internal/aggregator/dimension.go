package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/dispersion"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/fusion"
	"github.com/ahrav/go-cascade/internal/hermetic"
	"github.com/ahrav/go-cascade/internal/ports"
	"github.com/ahrav/go-cascade/internal/provenance"
)

// DimensionResult is the output of the item-to-dimension stage: one score
// per (area, dimension) cell plus the provenance node of each.
type DimensionResult struct {
	// Scores is ordered by (area, dimension), areas and dimensions each in
	// lexicographic order.
	Scores []domain.DimensionScore
	// Nodes maps each cell to its provenance node.
	Nodes map[domain.GroupKey]provenance.NodeID
}

// Dimension aggregates scored items into per-(area, dimension) scores.
// It is stateless across runs and safe for concurrent use.
type Dimension struct {
	cfg     *config.Config
	weights ports.WeightResolver
	dag     *provenance.DAG
}

// NewDimension creates the item-to-dimension aggregator.
func NewDimension(cfg *config.Config, weights ports.WeightResolver, dag *provenance.DAG) *Dimension {
	return &Dimension{cfg: cfg, weights: weights, dag: dag}
}

// Aggregate groups items by (area, dimension), fuses each cell, and emits
// one DimensionScore per cell with provenance edges from every contributing
// item.
//
// The total input count is checked against the configured cardinality before
// any group is processed; a mismatch aborts immediately with a
// CardinalityError and no partial output. Items carrying a group key outside
// the taxonomy abort with a HermeticityViolation.
func (a *Dimension) Aggregate(ctx context.Context, items []domain.ScoredItem) (*DimensionResult, error) {
	expected := a.cfg.Taxonomy.ExpectedItemCount()
	if n := len(items); n != expected {
		// Lenient mode tolerates whole missing cells, which surface as
		// missing dimensions downstream. Surplus or empty input is always
		// a fault.
		if a.cfg.Hermeticity == hermetic.ModeStrict || n == 0 || n > expected {
			return nil, domain.NewCardinalityError(StageDimension, expected, n)
		}
	}

	groups := make(map[domain.GroupKey][]domain.ScoredItem, a.cfg.Taxonomy.CellCount())
	for _, item := range items {
		if !a.cfg.Taxonomy.HasArea(item.Key.Area) || !a.cfg.Taxonomy.HasDimension(item.Key.Dimension) {
			return nil, &domain.HermeticityViolation{
				Group:      StageDimension + " input",
				Unexpected: []string{item.Key.String()},
			}
		}
		groups[item.Key] = append(groups[item.Key], item)
	}

	// Canonical cell order: areas then dimensions, both lexicographic. A cell
	// is either complete or, in lenient mode, entirely absent; a partially
	// filled cell is a fault in both modes (item-level scoring failures are
	// represented by error flags, not by dropped items).
	perCell := a.cfg.Taxonomy.ItemsPerCell
	cells := make([]domain.GroupKey, 0, a.cfg.Taxonomy.CellCount())
	for _, area := range a.cfg.Taxonomy.SortedAreas() {
		for _, dim := range a.cfg.Taxonomy.SortedDimensions() {
			key := domain.GroupKey{Area: area, Dimension: dim}
			switch n := len(groups[key]); {
			case n == perCell:
				cells = append(cells, key)
			case n == 0 && a.cfg.Hermeticity == hermetic.ModeLenient:
			default:
				return nil, domain.NewCardinalityError(
					fmt.Sprintf("%s[%s]", StageDimension, key), perCell, n)
			}
		}
	}

	outputs := make([]fusedCell, len(cells))
	err := forEachParallel(ctx, len(cells), func(_ context.Context, i int) error {
		out, err := a.fuseCell(cells[i], groups[cells[i]])
		if err != nil {
			return err
		}
		outputs[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Single provenance writer after the stage barrier: node IDs depend only
	// on the canonical cell order, keeping runs bit-identical.
	result := &DimensionResult{
		Scores: make([]domain.DimensionScore, len(cells)),
		Nodes:  make(map[domain.GroupKey]provenance.NodeID, len(cells)),
	}
	for i, key := range cells {
		out := outputs[i]
		result.Scores[i] = out.score

		node := a.dag.AddNode(provenance.LevelDimension, a.operationName(), key.String(), out.shares)
		for _, item := range out.contributing {
			leaf := a.dag.AddNode(provenance.LevelItem, opSource, item.ItemID, nil)
			if err := a.dag.AddEdge(leaf, node); err != nil {
				return nil, err
			}
		}
		result.Nodes[key] = node
	}
	return result, nil
}

type fusedCell struct {
	score        domain.DimensionScore
	contributing []domain.ScoredItem
	shares       []float64
}

// fuseCell fuses one cell's items into a DimensionScore. Items are sorted by
// item ID so the summation order is canonical. Items flagged as scoring
// errors are excluded from fusion with the remaining weights renormalized;
// a cell with no usable item fails the stage.
func (a *Dimension) fuseCell(key domain.GroupKey, cellItems []domain.ScoredItem) (fusedCell, error) {
	sorted := make([]domain.ScoredItem, len(cellItems))
	copy(sorted, cellItems)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	valid := make([]domain.ScoredItem, 0, len(sorted))
	validIdx := make([]int, 0, len(sorted))
	for i, item := range sorted {
		if item.IsError {
			continue
		}
		if item.Score < 0 || item.Score > 1 || math.IsNaN(item.Score) {
			return fusedCell{}, fmt.Errorf("item %s score %.6f outside normalized [0,1]",
				item.ItemID, item.Score)
		}
		valid = append(valid, item)
		validIdx = append(validIdx, i)
	}
	if len(valid) == 0 {
		return fusedCell{}, fmt.Errorf("cell %s: %w: every item failed upstream scoring",
			key, domain.ErrEmptyInput)
	}

	scores := make([]float64, len(valid))
	ids := make([]string, len(valid))
	for i, item := range valid {
		scores[i] = item.Score
		ids[i] = item.ItemID
	}

	var fused float64
	var shares []float64
	switch a.cfg.DimensionFusion.Method {
	case config.FusionChoquet:
		// The calibration is defined over the full cell; excluded items
		// would silently shift interaction indices.
		if len(valid) != len(sorted) {
			return fusedCell{}, fmt.Errorf("cell %s: choquet fusion requires %d scored items, %d failed upstream",
				key, len(sorted), len(sorted)-len(valid))
		}
		var err error
		fused, err = a.cfg.DimensionFusion.Calibration.Fuse(scores)
		if err != nil {
			return fusedCell{}, fmt.Errorf("cell %s: %w", key, err)
		}
		shares = normalizeShares(effectiveChoquetWeights(a.cfg.DimensionFusion.Calibration))
	default:
		full := a.weights.ItemWeightVector(len(sorted))
		w := make([]float64, len(valid))
		for i, idx := range validIdx {
			w[i] = full[idx]
		}
		// Excluding error items leaves a partial weight vector; the switch
		// to auto renormalization is the explicit degraded mode.
		mode := fusion.NormalizationStrict
		if len(valid) < len(sorted) {
			mode = fusion.NormalizationAuto
		}
		var err error
		fused, err = fusion.WeightedMean(scores, w, mode)
		if err != nil {
			return fusedCell{}, fmt.Errorf("cell %s: %w", key, err)
		}
		shares = normalizeShares(w)
	}

	mean := dispersion.Mean(scores)
	std := dispersion.SampleStd(scores, mean)
	halfWidth := ciZ * std / math.Sqrt(float64(len(scores)))

	return fusedCell{
		score: domain.DimensionScore{
			Area:              key.Area,
			Dimension:         key.Dimension,
			Score:             clampScore(fused*a.cfg.ScaleMax, a.cfg.ScaleMax),
			ContributingItems: ids,
			Uncertainty: domain.Uncertainty{
				Std:    std,
				CILow:  math.Max(mean-halfWidth, 0),
				CIHigh: math.Min(mean+halfWidth, 1),
			},
		},
		contributing: valid,
		shares:       shares,
	}, nil
}

func (a *Dimension) operationName() string {
	if a.cfg.DimensionFusion.Method == config.FusionChoquet {
		return opChoquet
	}
	return opWeightedMean
}
