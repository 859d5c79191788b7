// Package config defines the engine configuration surface: the taxonomy,
// weight tables, thresholds, and policy switches every aggregator consumes.
//
// A Config is built once at startup, validated for internal consistency, and
// passed read-only into the pipeline; no component performs ambient lookups.
package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-cascade/internal/dispersion"
	"github.com/ahrav/go-cascade/internal/domain"
	"github.com/ahrav/go-cascade/internal/fusion"
	"github.com/ahrav/go-cascade/internal/hermetic"
)

// weightTolerance is the accepted deviation of any configured weight table
// from 1.0.
const weightTolerance = 1e-6

// FusionMethod selects the primitive applied when fusing a dimension cell.
type FusionMethod string

const (
	// FusionWeightedMean applies a plain weighted average over the cell's
	// item scores.
	FusionWeightedMean FusionMethod = "weighted_mean"

	// FusionChoquet applies the Choquet-integral variant with pairwise
	// interaction terms.
	FusionChoquet FusionMethod = "choquet"
)

// DimensionFusion configures the item-to-dimension fusion stage.
type DimensionFusion struct {
	// Method selects the fusion primitive.
	Method FusionMethod `json:"method" yaml:"method" koanf:"method" validate:"required,oneof=weighted_mean choquet"`
	// ItemWeights holds per-item weights for weighted_mean, one per item in
	// a cell. Empty means equal weighting.
	ItemWeights []float64 `json:"item_weights,omitempty" yaml:"item_weights,omitempty" koanf:"item_weights"`
	// Calibration configures the choquet method. Linear length must equal
	// the taxonomy's items-per-cell.
	Calibration fusion.Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty" koanf:"calibration"`
}

// PenaltyConfig drives the dispersion-adaptive cluster penalty:
// penalty_factor = 1 - min(dispersion_index * Weight, Cap).
type PenaltyConfig struct {
	// Weight scales the normalized dispersion before capping.
	Weight float64 `json:"weight" yaml:"weight" koanf:"weight" validate:"gte=0"`
	// Cap bounds the total penalty so pathological dispersion cannot zero a
	// cluster score outright.
	Cap float64 `json:"cap" yaml:"cap" koanf:"cap" validate:"gte=0,lte=1"`
}

// QualityBand maps a normalized score floor onto a named quality level.
type QualityBand struct {
	Name domain.QualityLevel `json:"name" yaml:"name" koanf:"name" validate:"required"`
	// Min is the inclusive normalized [0,1] floor of the band.
	Min float64 `json:"min" yaml:"min" koanf:"min" validate:"gte=0,lte=1"`
}

// CoherenceWeights combines the three cross-cutting coherence components.
// The weights must sum to 1.0.
type CoherenceWeights struct {
	// Strategic weighs variance-based coherence across clusters.
	Strategic float64 `json:"strategic" yaml:"strategic" koanf:"strategic" validate:"gte=0"`
	// Operational weighs pairwise cluster-similarity coherence.
	Operational float64 `json:"operational" yaml:"operational" koanf:"operational" validate:"gte=0"`
	// Institutional weighs the minimum per-cluster coherence floor.
	Institutional float64 `json:"institutional" yaml:"institutional" koanf:"institutional" validate:"gte=0"`
}

// AlignmentWeights combines the three strategic-alignment axes.
// The weights must sum to 1.0.
type AlignmentWeights struct {
	Vertical   float64 `json:"vertical" yaml:"vertical" koanf:"vertical" validate:"gte=0"`
	Horizontal float64 `json:"horizontal" yaml:"horizontal" koanf:"horizontal" validate:"gte=0"`
	Temporal   float64 `json:"temporal" yaml:"temporal" koanf:"temporal" validate:"gte=0"`
}

// DimensionPair names two dimensions whose agreement across areas defines an
// alignment axis.
type DimensionPair struct {
	A domain.DimensionID `json:"a" yaml:"a" koanf:"a" validate:"required"`
	B domain.DimensionID `json:"b" yaml:"b" koanf:"b" validate:"required"`
}

// AlignmentPairs configures which dimension pairs feed the vertical and
// temporal alignment axes; horizontal alignment is computed across clusters
// and needs no pair.
type AlignmentPairs struct {
	// Vertical compares policy definition against execution.
	Vertical DimensionPair `json:"vertical" yaml:"vertical" koanf:"vertical" validate:"required"`
	// Temporal compares monitoring against planning.
	Temporal DimensionPair `json:"temporal" yaml:"temporal" koanf:"temporal" validate:"required"`
}

// Config is the complete, immutable configuration of one engine instance.
type Config struct {
	// ScaleMax is the upper bound of the raw score scale. The engine is
	// scale-agnostic; the source domain uses 3.0.
	ScaleMax float64 `json:"scale_max" yaml:"scale_max" koanf:"scale_max" validate:"gt=0"`

	// Taxonomy enumerates areas, dimensions, and the cluster partition.
	Taxonomy domain.Taxonomy `json:"taxonomy" yaml:"taxonomy" koanf:"taxonomy" validate:"required"`

	// Hermeticity selects strict-abort or degrade-with-warning behavior for
	// missing group members.
	Hermeticity hermetic.Mode `json:"hermeticity" yaml:"hermeticity" koanf:"hermeticity" validate:"required,oneof=strict lenient"`

	// DimensionFusion configures the item-to-dimension stage.
	DimensionFusion DimensionFusion `json:"dimension_fusion" yaml:"dimension_fusion" koanf:"dimension_fusion" validate:"required"`

	// DimensionWeights weighs dimensions within an area. Empty means equal
	// weighting; when present it must cover every dimension and sum to 1.0.
	DimensionWeights map[domain.DimensionID]float64 `json:"dimension_weights,omitempty" yaml:"dimension_weights,omitempty" koanf:"dimension_weights"`

	// AreaWeights weighs areas within their cluster. Empty means equal
	// weighting; when present each cluster's member weights must sum to 1.0.
	AreaWeights map[domain.AreaID]float64 `json:"area_weights,omitempty" yaml:"area_weights,omitempty" koanf:"area_weights"`

	// ClusterWeights weighs clusters in the global combination. Empty means
	// equal weighting; when present it must cover every cluster and sum to 1.0.
	ClusterWeights map[domain.ClusterID]float64 `json:"cluster_weights,omitempty" yaml:"cluster_weights,omitempty" koanf:"cluster_weights"`

	// Dispersion holds the scenario classification thresholds.
	Dispersion dispersion.Thresholds `json:"dispersion" yaml:"dispersion" koanf:"dispersion" validate:"required"`

	// Penalty drives the adaptive cluster penalty.
	Penalty PenaltyConfig `json:"penalty" yaml:"penalty" koanf:"penalty" validate:"required"`

	// GapThreshold is the systemic-gap cut point expressed in normalized
	// [0,1] terms. It is converted to the raw scale at the comparison site.
	GapThreshold float64 `json:"gap_threshold" yaml:"gap_threshold" koanf:"gap_threshold" validate:"gte=0,lte=1"`

	// QualityBands are the ordered bands for the global quality level,
	// highest floor first.
	QualityBands []QualityBand `json:"quality_bands" yaml:"quality_bands" koanf:"quality_bands" validate:"required,min=1,dive"`

	// Coherence combines the cross-cutting coherence components.
	Coherence CoherenceWeights `json:"coherence" yaml:"coherence" koanf:"coherence" validate:"required"`

	// Alignment combines the strategic-alignment axes.
	Alignment AlignmentWeights `json:"alignment" yaml:"alignment" koanf:"alignment" validate:"required"`

	// AlignmentPairs selects the dimension pairs behind the vertical and
	// temporal axes.
	AlignmentPairs AlignmentPairs `json:"alignment_pairs" yaml:"alignment_pairs" koanf:"alignment_pairs" validate:"required"`
}

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Validate checks struct-level constraints and every cross-field semantic
// invariant: partition coverage, weight-table sums, band ordering, and
// fusion calibration arity. It returns a ValidationError aggregating every
// failure so operators can fix a configuration in one pass.
// Validation runs once at startup, not per pipeline run.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	vErr := domain.NewValidationError("engine config")
	c.validateTaxonomy(vErr)
	c.validateWeights(vErr)
	c.validateFusion(vErr)
	c.validateBands(vErr)

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func (c *Config) validateTaxonomy(vErr *domain.ValidationError) {
	t := c.Taxonomy
	if len(t.Areas) == 0 {
		vErr.AddError("taxonomy has no areas")
	}
	if len(t.Dimensions) == 0 {
		vErr.AddError("taxonomy has no dimensions")
	}
	if len(t.Clusters) == 0 {
		vErr.AddError("taxonomy has no clusters")
	}
	if t.ItemsPerCell <= 0 {
		vErr.AddError("items_per_cell must be positive")
	}

	seenAreas := make(map[domain.AreaID]int)
	for _, a := range t.Areas {
		seenAreas[a]++
	}
	for a, n := range seenAreas {
		if n > 1 {
			vErr.AddError(fmt.Sprintf("area %s declared %d times", a, n))
		}
	}
	seenDims := make(map[domain.DimensionID]int)
	for _, d := range t.Dimensions {
		seenDims[d]++
	}
	for d, n := range seenDims {
		if n > 1 {
			vErr.AddError(fmt.Sprintf("dimension %s declared %d times", d, n))
		}
	}

	// The cluster partition must cover every area exactly once.
	covered := make(map[domain.AreaID]int)
	clusterIDs := make(map[domain.ClusterID]int)
	for _, cl := range t.Clusters {
		clusterIDs[cl.ID]++
		if len(cl.Members) == 0 {
			vErr.AddError(fmt.Sprintf("cluster %s has no members", cl.ID))
		}
		for _, m := range cl.Members {
			covered[m]++
			if _, ok := seenAreas[m]; !ok {
				vErr.AddError(fmt.Sprintf("cluster %s references unknown area %s", cl.ID, m))
			}
		}
	}
	for id, n := range clusterIDs {
		if n > 1 {
			vErr.AddError(fmt.Sprintf("cluster %s declared %d times", id, n))
		}
	}
	for _, a := range t.Areas {
		switch covered[a] {
		case 0:
			vErr.AddError(fmt.Sprintf("area %s is not covered by any cluster", a))
		case 1:
		default:
			vErr.AddError(fmt.Sprintf("area %s appears in %d clusters", a, covered[a]))
		}
	}
}

func (c *Config) validateWeights(vErr *domain.ValidationError) {
	if len(c.DimensionWeights) > 0 {
		var sum float64
		for _, d := range c.Taxonomy.Dimensions {
			w, ok := c.DimensionWeights[d]
			if !ok {
				vErr.AddError(fmt.Sprintf("dimension_weights missing dimension %s", d))
				continue
			}
			if w < 0 {
				vErr.AddError(fmt.Sprintf("dimension_weights[%s] is negative", d))
			}
			sum += w
		}
		if len(c.DimensionWeights) != len(c.Taxonomy.Dimensions) {
			vErr.AddError("dimension_weights covers keys outside the taxonomy")
		} else if math.Abs(sum-1.0) > weightTolerance {
			vErr.AddError(fmt.Sprintf("dimension_weights sum to %.6f, want 1.0", sum))
		}
	}

	if len(c.AreaWeights) > 0 {
		known := make(map[domain.AreaID]struct{}, len(c.Taxonomy.Areas))
		for _, a := range c.Taxonomy.Areas {
			known[a] = struct{}{}
		}
		for a := range c.AreaWeights {
			if _, ok := known[a]; !ok {
				vErr.AddError(fmt.Sprintf("area_weights references unknown area %s", a))
			}
		}
		for _, cl := range c.Taxonomy.SortedClusters() {
			var sum float64
			complete := true
			for _, m := range cl.Members {
				w, ok := c.AreaWeights[m]
				if !ok {
					vErr.AddError(fmt.Sprintf("area_weights missing area %s of cluster %s", m, cl.ID))
					complete = false
					continue
				}
				if w < 0 {
					vErr.AddError(fmt.Sprintf("area_weights[%s] is negative", m))
				}
				sum += w
			}
			if complete && math.Abs(sum-1.0) > weightTolerance {
				vErr.AddError(fmt.Sprintf("area_weights for cluster %s sum to %.6f, want 1.0", cl.ID, sum))
			}
		}
	}

	if len(c.ClusterWeights) > 0 {
		var sum float64
		for _, cl := range c.Taxonomy.Clusters {
			w, ok := c.ClusterWeights[cl.ID]
			if !ok {
				vErr.AddError(fmt.Sprintf("cluster_weights missing cluster %s", cl.ID))
				continue
			}
			if w < 0 {
				vErr.AddError(fmt.Sprintf("cluster_weights[%s] is negative", cl.ID))
			}
			sum += w
		}
		if len(c.ClusterWeights) != len(c.Taxonomy.Clusters) {
			vErr.AddError("cluster_weights covers keys outside the taxonomy")
		} else if math.Abs(sum-1.0) > weightTolerance {
			vErr.AddError(fmt.Sprintf("cluster_weights sum to %.6f, want 1.0", sum))
		}
	}

	coherenceSum := c.Coherence.Strategic + c.Coherence.Operational + c.Coherence.Institutional
	if math.Abs(coherenceSum-1.0) > weightTolerance {
		vErr.AddError(fmt.Sprintf("coherence weights sum to %.6f, want 1.0", coherenceSum))
	}
	alignmentSum := c.Alignment.Vertical + c.Alignment.Horizontal + c.Alignment.Temporal
	if math.Abs(alignmentSum-1.0) > weightTolerance {
		vErr.AddError(fmt.Sprintf("alignment weights sum to %.6f, want 1.0", alignmentSum))
	}

	for _, d := range []domain.DimensionID{
		c.AlignmentPairs.Vertical.A, c.AlignmentPairs.Vertical.B,
		c.AlignmentPairs.Temporal.A, c.AlignmentPairs.Temporal.B,
	} {
		if !c.Taxonomy.HasDimension(d) {
			vErr.AddError(fmt.Sprintf("alignment pair references unknown dimension %s", d))
		}
	}
}

func (c *Config) validateFusion(vErr *domain.ValidationError) {
	switch c.DimensionFusion.Method {
	case FusionWeightedMean:
		if n := len(c.DimensionFusion.ItemWeights); n > 0 {
			if n != c.Taxonomy.ItemsPerCell {
				vErr.AddError(fmt.Sprintf("item_weights has %d entries, want %d", n, c.Taxonomy.ItemsPerCell))
				return
			}
			var sum float64
			for i, w := range c.DimensionFusion.ItemWeights {
				if w < 0 {
					vErr.AddError(fmt.Sprintf("item_weights[%d] is negative", i))
				}
				sum += w
			}
			if math.Abs(sum-1.0) > weightTolerance {
				vErr.AddError(fmt.Sprintf("item_weights sum to %.6f, want 1.0", sum))
			}
		}
	case FusionChoquet:
		if n := len(c.DimensionFusion.Calibration.Linear); n != c.Taxonomy.ItemsPerCell {
			vErr.AddError(fmt.Sprintf("choquet calibration has %d linear weights, want %d", n, c.Taxonomy.ItemsPerCell))
			return
		}
		if err := c.DimensionFusion.Calibration.Validate(); err != nil {
			vErr.AddError(err.Error())
		}
	}
}

func (c *Config) validateBands(vErr *domain.ValidationError) {
	for i := 1; i < len(c.QualityBands); i++ {
		if c.QualityBands[i].Min >= c.QualityBands[i-1].Min {
			vErr.AddError(fmt.Sprintf("quality bands must be ordered by descending floor: %s (%.2f) >= %s (%.2f)",
				c.QualityBands[i].Name, c.QualityBands[i].Min,
				c.QualityBands[i-1].Name, c.QualityBands[i-1].Min))
		}
	}
	if len(c.QualityBands) > 0 && c.QualityBands[len(c.QualityBands)-1].Min != 0 {
		vErr.AddError("lowest quality band must have floor 0")
	}
}

// BandFor returns the quality level for a normalized [0,1] score.
func (c *Config) BandFor(normalized float64) domain.QualityLevel {
	for _, b := range c.QualityBands {
		if normalized >= b.Min {
			return b.Name
		}
	}
	// Unreachable for validated configs: the lowest band floors at 0.
	return c.QualityBands[len(c.QualityBands)-1].Name
}

// DimensionWeightVector returns the area-stage weight for each of the given
// dimensions, preserving order. Missing tables yield equal weights.
func (c *Config) DimensionWeightVector(dims []domain.DimensionID) []float64 {
	if len(c.DimensionWeights) == 0 {
		return fusion.EqualWeights(len(dims))
	}
	w := make([]float64, len(dims))
	for i, d := range dims {
		w[i] = c.DimensionWeights[d]
	}
	return w
}

// AreaWeightVector returns the cluster-stage weight for each of the given
// areas, preserving order. Missing tables yield equal weights.
func (c *Config) AreaWeightVector(areas []domain.AreaID) []float64 {
	if len(c.AreaWeights) == 0 {
		return fusion.EqualWeights(len(areas))
	}
	w := make([]float64, len(areas))
	for i, a := range areas {
		w[i] = c.AreaWeights[a]
	}
	return w
}

// ClusterWeightVector returns the global-stage weight for each of the given
// clusters, preserving order. Missing tables yield equal weights.
func (c *Config) ClusterWeightVector(clusters []domain.ClusterID) []float64 {
	if len(c.ClusterWeights) == 0 {
		return fusion.EqualWeights(len(clusters))
	}
	w := make([]float64, len(clusters))
	for i, id := range clusters {
		w[i] = c.ClusterWeights[id]
	}
	return w
}

// ItemWeightVector returns the dimension-stage weight for each item in a
// cell. Missing tables yield equal weights.
func (c *Config) ItemWeightVector(n int) []float64 {
	if len(c.DimensionFusion.ItemWeights) != n {
		return fusion.EqualWeights(n)
	}
	w := make([]float64, n)
	copy(w, c.DimensionFusion.ItemWeights)
	return w
}

// SortedBandNames returns the configured band names from best to worst.
func (c *Config) SortedBandNames() []domain.QualityLevel {
	names := make([]domain.QualityLevel, len(c.QualityBands))
	for i, b := range c.QualityBands {
		names[i] = b.Name
	}
	return names
}

// Default returns the source-domain configuration: 10 policy areas across 6
// dimensions and 4 clusters, scored on a [0,3] scale.
func Default() *Config {
	return &Config{
		ScaleMax: 3.0,
		Taxonomy: domain.Taxonomy{
			Areas: []domain.AreaID{
				"institutional_framework", "strategic_planning", "financing",
				"human_resources", "service_delivery", "information_systems",
				"participation", "equity",
				"monitoring_evaluation", "innovation",
			},
			Dimensions: []domain.DimensionID{
				"definition", "institutionalization", "implementation",
				"resources", "monitoring", "outcomes",
			},
			Clusters: []domain.Cluster{
				{ID: "foundations", Members: []domain.AreaID{"institutional_framework", "strategic_planning", "financing"}},
				{ID: "delivery", Members: []domain.AreaID{"human_resources", "service_delivery", "information_systems"}},
				{ID: "inclusion", Members: []domain.AreaID{"participation", "equity"}},
				{ID: "learning", Members: []domain.AreaID{"monitoring_evaluation", "innovation"}},
			},
			ItemsPerCell: 5,
		},
		Hermeticity: hermetic.ModeStrict,
		DimensionFusion: DimensionFusion{
			Method: FusionWeightedMean,
		},
		Dispersion:   dispersion.DefaultThresholds(),
		Penalty:      PenaltyConfig{Weight: 0.5, Cap: 0.3},
		GapThreshold: 0.55,
		QualityBands: []QualityBand{
			{Name: "excellent", Min: 0.85},
			{Name: "good", Min: 0.70},
			{Name: "acceptable", Min: 0.55},
			{Name: "insufficient", Min: 0.0},
		},
		Coherence: CoherenceWeights{Strategic: 0.4, Operational: 0.4, Institutional: 0.2},
		Alignment: AlignmentWeights{Vertical: 0.4, Horizontal: 0.3, Temporal: 0.3},
		AlignmentPairs: AlignmentPairs{
			Vertical: DimensionPair{A: "definition", B: "implementation"},
			Temporal: DimensionPair{A: "monitoring", B: "definition"},
		},
	}
}
