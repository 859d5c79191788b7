package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ahrav/go-cascade/internal/config"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/fusion"
	"github.com/ahrav/go-cascade/internal/hermetic"
	"github.com/ahrav/go-cascade/internal/ports"
	"github.com/ahrav/go-cascade/internal/provenance"
)

// GlobalResult is the terminal output of the aggregation pipeline.
type GlobalResult struct {
	Score domain.GlobalScore
	// Node is the provenance node of the global score.
	Node provenance.NodeID
}

// Global combines the cluster scores into the single holistic score and its
// cross-cutting sub-assessments.
type Global struct {
	cfg     *config.Config
	weights ports.WeightResolver
	dag     *provenance.DAG
}

// NewGlobal creates the cluster-to-global aggregator.
func NewGlobal(cfg *config.Config, weights ports.WeightResolver, dag *provenance.DAG) *Global {
	return &Global{cfg: cfg, weights: weights, dag: dag}
}

// Aggregate weighted-combines the cluster scores, computes cross-cutting
// coherence, systemic gaps, and strategic alignment, and emits exactly one
// GlobalScore. The cluster set must match the configured partition exactly;
// this stage has no lenient mode since its input is produced internally.
func (a *Global) Aggregate(ctx context.Context, clusters *ClusterResult) (*GlobalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expected := len(a.cfg.Taxonomy.Clusters)
	if len(clusters.Scores) != expected {
		return nil, domain.NewCardinalityError(StageGlobal, expected, len(clusters.Scores))
	}

	byCluster := make(map[domain.ClusterID]domain.ClusterScore, len(clusters.Scores))
	observed := make([]string, 0, len(clusters.Scores))
	for _, cs := range clusters.Scores {
		byCluster[cs.Cluster] = cs
		observed = append(observed, string(cs.Cluster))
	}
	expectedIDs := make([]string, 0, expected)
	for _, cl := range a.cfg.Taxonomy.SortedClusters() {
		expectedIDs = append(expectedIDs, string(cl.ID))
	}
	if _, err := hermetic.Check(StageGlobal, expectedIDs, observed, hermetic.ModeStrict); err != nil {
		return nil, err
	}

	ids := make([]domain.ClusterID, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	scores := make([]float64, len(ids))
	for i, id := range ids {
		scores[i] = byCluster[id].Score
	}
	weights := a.weights.ClusterWeightVector(ids)
	fused, err := fusion.WeightedMean(scores, weights, fusion.NormalizationStrict)
	if err != nil {
		return nil, fmt.Errorf("global: %w", err)
	}
	raw := clampScore(fused, a.cfg.ScaleMax)

	global := domain.GlobalScore{
		Score:                 raw,
		QualityLevel:          a.cfg.BandFor(raw / a.cfg.ScaleMax),
		Clusters:              byCluster,
		CrossCuttingCoherence: a.crossCuttingCoherence(ids, byCluster),
		SystemicGaps:          a.systemicGaps(byCluster),
		Alignment:             a.strategicAlignment(ids, byCluster),
	}

	shares := normalizeShares(weights)
	node := a.dag.AddNode(provenance.LevelGlobal, opWeightedMean, StageGlobal, shares)
	for _, id := range ids {
		from, ok := clusters.Nodes[id]
		if !ok {
			return nil, fmt.Errorf("no provenance node for cluster %s", id)
		}
		if err := a.dag.AddEdge(from, node); err != nil {
			return nil, err
		}
	}

	return &GlobalResult{Score: global, Node: node}, nil
}

// crossCuttingCoherence combines three components with the configured
// weights: variance-based strategic coherence across clusters, pairwise
// similarity as operational coherence, and the minimum per-cluster coherence
// as the institutional floor.
func (a *Global) crossCuttingCoherence(ids []domain.ClusterID, byCluster map[domain.ClusterID]domain.ClusterScore) float64 {
	normalized := make([]float64, len(ids))
	for i, id := range ids {
		normalized[i] = byCluster[id].Score / a.cfg.ScaleMax
	}

	// Population variance of values in [0,1] tops out at 0.25.
	mean := 0.0
	for _, v := range normalized {
		mean += v
	}
	mean /= float64(len(normalized))
	popVar := 0.0
	for _, v := range normalized {
		popVar += (v - mean) * (v - mean)
	}
	popVar /= float64(len(normalized))
	strategic := 1.0 - math.Min(popVar/0.25, 1.0)

	operational := 1.0 - meanPairwiseDistance(normalized)

	institutional := 1.0
	for _, id := range ids {
		institutional = math.Min(institutional, byCluster[id].Coherence)
	}

	w := a.cfg.Coherence
	combined := w.Strategic*strategic + w.Operational*operational + w.Institutional*institutional
	return clamp01(combined)
}

// systemicGaps flags every area whose raw score falls below the gap
// threshold. The threshold is configured in normalized [0,1] terms and MUST
// be converted to the raw scale here: comparing it against raw scores
// directly would silently disable gap detection without any error.
func (a *Global) systemicGaps(byCluster map[domain.ClusterID]domain.ClusterScore) []domain.AreaID {
	rawThreshold := a.cfg.GapThreshold * a.cfg.ScaleMax

	var gaps []domain.AreaID
	for _, cs := range byCluster {
		for areaID, as := range cs.Areas {
			if as.Score < rawThreshold {
				gaps = append(gaps, areaID)
			}
		}
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	if len(gaps) == 0 {
		return []domain.AreaID{}
	}
	return gaps
}

// strategicAlignment derives the three alignment axes: vertical and temporal
// from the configured dimension pairs across all areas, horizontal from
// cross-cluster agreement.
func (a *Global) strategicAlignment(ids []domain.ClusterID, byCluster map[domain.ClusterID]domain.ClusterScore) domain.StrategicAlignment {
	normalized := make([]float64, len(ids))
	for i, id := range ids {
		normalized[i] = byCluster[id].Score / a.cfg.ScaleMax
	}

	vertical := a.pairAgreement(byCluster, a.cfg.AlignmentPairs.Vertical)
	horizontal := clamp01(1.0 - meanPairwiseDistance(normalized))
	temporal := a.pairAgreement(byCluster, a.cfg.AlignmentPairs.Temporal)

	w := a.cfg.Alignment
	return domain.StrategicAlignment{
		Vertical:   vertical,
		Horizontal: horizontal,
		Temporal:   temporal,
		Combined:   clamp01(w.Vertical*vertical + w.Horizontal*horizontal + w.Temporal*temporal),
	}
}

// pairAgreement measures how closely two dimensions track each other across
// all areas: 1 minus the mean absolute normalized difference. Areas missing
// either dimension (lenient-mode gaps) are skipped; with no usable area the
// axis reports zero alignment.
func (a *Global) pairAgreement(byCluster map[domain.ClusterID]domain.ClusterScore, pair config.DimensionPair) float64 {
	var sum float64
	var n int
	for _, cs := range byCluster {
		for _, as := range cs.Areas {
			da, okA := as.Dimensions[pair.A]
			db, okB := as.Dimensions[pair.B]
			if !okA || !okB {
				continue
			}
			sum += math.Abs(da.Score-db.Score) / a.cfg.ScaleMax
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp01(1.0 - sum/float64(n))
}

// meanPairwiseDistance returns the mean absolute difference over all pairs
// of normalized values, or 0 for fewer than two values.
func meanPairwiseDistance(normalized []float64) float64 {
	if len(normalized) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			sum += math.Abs(normalized[i] - normalized[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
