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

// ClusterResult is the output of the area-to-cluster stage.
type ClusterResult struct {
	// Scores is ordered by cluster ID.
	Scores []domain.ClusterScore
	// Nodes maps each cluster to its provenance node.
	Nodes map[domain.ClusterID]provenance.NodeID
}

// Cluster aggregates area scores into per-cluster scores with the
// dispersion-driven adaptive penalty.
type Cluster struct {
	cfg      *config.Config
	weights  ports.WeightResolver
	dag      *provenance.DAG
	analyzer *dispersion.Analyzer
}

// NewCluster creates the area-to-cluster aggregator.
func NewCluster(cfg *config.Config, weights ports.WeightResolver, dag *provenance.DAG) *Cluster {
	return &Cluster{
		cfg:      cfg,
		weights:  weights,
		dag:      dag,
		analyzer: dispersion.NewAnalyzer(cfg.Dispersion, cfg.ScaleMax),
	}
}

// Aggregate partitions area scores into their configured clusters, analyzes
// each cluster's dispersion, applies the adaptive penalty, and emits one
// ClusterScore per cluster with full scenario metadata.
func (a *Cluster) Aggregate(ctx context.Context, areas *AreaResult) (*ClusterResult, error) {
	expected := len(a.cfg.Taxonomy.Areas)
	if n := len(areas.Scores); n != expected {
		if a.cfg.Hermeticity == hermetic.ModeStrict || n == 0 || n > expected {
			return nil, domain.NewCardinalityError(StageCluster, expected, n)
		}
	}

	groups := make(map[domain.ClusterID][]domain.AreaScore, len(a.cfg.Taxonomy.Clusters))
	for _, as := range areas.Scores {
		cid, ok := a.cfg.Taxonomy.ClusterOf(as.Area)
		if !ok {
			return nil, &domain.HermeticityViolation{
				Group:      StageCluster + " input",
				Unexpected: []string{string(as.Area)},
			}
		}
		groups[cid] = append(groups[cid], as)
	}

	clusters := a.cfg.Taxonomy.SortedClusters()
	outputs := make([]domain.ClusterScore, len(clusters))
	err := forEachParallel(ctx, len(clusters), func(_ context.Context, i int) error {
		out, err := a.fuseCluster(clusters[i], groups[clusters[i].ID])
		if err != nil {
			return err
		}
		outputs[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ClusterResult{
		Scores: outputs,
		Nodes:  make(map[domain.ClusterID]provenance.NodeID, len(clusters)),
	}
	for i, cl := range clusters {
		score := outputs[i]

		observed := sortedAreaIDs(score.Areas)
		shares := normalizeShares(a.weights.AreaWeightVector(observed))
		node := a.dag.AddNode(provenance.LevelCluster, opWeightedMean, string(cl.ID), shares)
		for _, areaID := range observed {
			from, ok := areas.Nodes[areaID]
			if !ok {
				return nil, fmt.Errorf("no provenance node for area %s", areaID)
			}
			if err := a.dag.AddEdge(from, node); err != nil {
				return nil, err
			}
		}
		result.Nodes[cl.ID] = node
	}
	return result, nil
}

func (a *Cluster) fuseCluster(cl domain.Cluster, group []domain.AreaScore) (domain.ClusterScore, error) {
	byArea := make(map[domain.AreaID]domain.AreaScore, len(group))
	observed := make([]string, 0, len(group))
	for _, as := range group {
		byArea[as.Area] = as
		observed = append(observed, string(as.Area))
	}
	expectedMembers := make([]string, 0, len(cl.Members))
	for _, m := range cl.Members {
		expectedMembers = append(expectedMembers, string(m))
	}

	report, err := hermetic.Check(string(cl.ID), expectedMembers, observed, a.cfg.Hermeticity)
	if err != nil {
		return domain.ClusterScore{}, err
	}
	if len(byArea) == 0 {
		return domain.ClusterScore{}, fmt.Errorf("cluster %s: %w: no area scores", cl.ID, domain.ErrEmptyInput)
	}

	members := sortedAreaIDs(byArea)
	scores := make([]float64, len(members))
	for i, m := range members {
		scores[i] = byArea[m].Score
	}

	disp, scenario, err := a.analyzer.Analyze(string(cl.ID), scores)
	if err != nil {
		return domain.ClusterScore{}, err
	}

	weights := a.weights.AreaWeightVector(members)
	mode := fusion.NormalizationStrict
	if !report.Hermetic {
		mode = fusion.NormalizationAuto
	}
	base, err := fusion.WeightedMean(scores, weights, mode)
	if err != nil {
		return domain.ClusterScore{}, fmt.Errorf("cluster %s: %w", cl.ID, err)
	}

	// The cap keeps a pathological dispersion from zeroing the cluster.
	penalty := 1.0 - math.Min(disp.Index*a.cfg.Penalty.Weight, a.cfg.Penalty.Cap)

	weakest := members[0]
	for _, m := range members[1:] {
		if byArea[m].Score < byArea[weakest].Score {
			weakest = m
		}
	}

	missing := make([]domain.AreaID, 0, len(report.Missing))
	for _, m := range report.Missing {
		missing = append(missing, domain.AreaID(m))
	}
	if len(missing) == 0 {
		missing = nil
	}

	return domain.ClusterScore{
		Cluster:       cl.ID,
		Score:         clampScore(base*penalty, a.cfg.ScaleMax),
		Areas:         byArea,
		Dispersion:    disp,
		Scenario:      scenario,
		PenaltyFactor: penalty,
		Coherence:     1.0 - pairwiseNormalizedVariance(scores, a.cfg.ScaleMax),
		WeakestArea:   weakest,
		Hermetic:      report.Hermetic,
		MissingAreas:  missing,
	}, nil
}

// sortedAreaIDs returns the map's keys in lexicographic order.
func sortedAreaIDs(m map[domain.AreaID]domain.AreaScore) []domain.AreaID {
	out := make([]domain.AreaID, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
