package domain

// ScoredItem is one per-question evaluation score produced by the upstream
// scoring collaborator. Scores arrive normalized to [0,1]; the engine converts
// to the configured raw scale during dimension aggregation.
// Items are immutable once created.
type ScoredItem struct {
	// ItemID uniquely identifies the underlying question.
	ItemID string `json:"item_id"`
	// Key assigns the item to its (area, dimension) aggregation cell.
	Key GroupKey `json:"key"`
	// Score is the normalized evaluation result in [0,1].
	// Its value is meaningless when IsError is set.
	Score float64 `json:"score"`
	// QualityLabel carries the upstream scorer's categorical judgment.
	QualityLabel string `json:"quality_label,omitempty"`
	// IsError marks items whose scoring failed upstream.
	IsError bool `json:"is_error,omitempty"`
}

// Uncertainty captures the spread of the normalized scores that fed an
// aggregate: the sample standard deviation and a two-sided confidence
// interval around the mean.
type Uncertainty struct {
	Std    float64 `json:"std"`
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
}

// DimensionScore is the aggregate of one (area, dimension) cell of scored
// items, on the raw [0, ScaleMax] scale.
type DimensionScore struct {
	Area      AreaID      `json:"area"`
	Dimension DimensionID `json:"dimension"`
	Score     float64     `json:"score"`
	// ContributingItems lists the item IDs fused into this score, in the
	// deterministic order they were combined. Never empty.
	ContributingItems []string    `json:"contributing_items"`
	Uncertainty       Uncertainty `json:"uncertainty"`
}

// AreaScore is the aggregate of one policy area's dimension scores.
type AreaScore struct {
	Area  AreaID  `json:"area"`
	Score float64 `json:"score"`
	// Dimensions holds the per-dimension scores that fed this aggregate,
	// keyed by dimension. When hermetic, the key set equals the configured
	// dimension set exactly.
	Dimensions map[DimensionID]DimensionScore `json:"dimensions"`
	// Hermetic reports whether every configured dimension contributed.
	Hermetic bool `json:"hermetic"`
	// MissingDimensions lists absent dimensions when not hermetic.
	MissingDimensions []DimensionID `json:"missing_dimensions,omitempty"`
	// WeakestDimension is the lowest-scoring dimension; ties break toward
	// the lexicographically smallest dimension ID.
	WeakestDimension DimensionID `json:"weakest_dimension"`
}

// Quartiles holds the three quartile cut points of a score set.
type Quartiles struct {
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
}

// Dispersion summarizes the statistical spread of a score set.
type Dispersion struct {
	// CV is the coefficient of variation, std/mean. Defined as 0 when all
	// inputs are 0.
	CV float64 `json:"cv"`
	// Index is the range normalized by the scale maximum, in [0,1].
	Index     float64   `json:"index"`
	Quartiles Quartiles `json:"quartiles"`
}

// Scenario is the categorical classification of a cluster's score dispersion,
// used to drive the adaptive penalty.
type Scenario string

// Dispersion scenarios, ordered from tightest to widest spread.
const (
	ScenarioConvergence Scenario = "convergence"
	ScenarioModerate    Scenario = "moderate"
	ScenarioHigh        Scenario = "high"
	ScenarioExtreme     Scenario = "extreme"
)

// ClusterScore is the aggregate of one cluster's area scores, adjusted by the
// dispersion-driven adaptive penalty.
type ClusterScore struct {
	Cluster ClusterID `json:"cluster"`
	// Score is the penalty-adjusted weighted average of member area scores.
	Score float64 `json:"score"`
	// Areas holds the member area scores, keyed by area.
	Areas      map[AreaID]AreaScore `json:"areas"`
	Dispersion Dispersion           `json:"dispersion"`
	Scenario   Scenario             `json:"scenario"`
	// PenaltyFactor in [0,1] is the multiplier applied to the raw weighted
	// average; 1.0 means no penalty.
	PenaltyFactor float64 `json:"penalty_factor"`
	// Coherence in [0,1] is one minus the normalized pairwise score variance.
	Coherence float64 `json:"coherence"`
	// WeakestArea is the lowest-scoring member area; ties break toward the
	// lexicographically smallest area ID.
	WeakestArea AreaID `json:"weakest_area"`
	Hermetic    bool   `json:"hermetic"`
	// MissingAreas lists absent member areas when not hermetic.
	MissingAreas []AreaID `json:"missing_areas,omitempty"`
}

// QualityLevel is the categorical band assigned to the global score.
type QualityLevel string

// StrategicAlignment decomposes global alignment into its three axes,
// each in [0,1].
type StrategicAlignment struct {
	// Vertical measures definition-to-execution consistency.
	Vertical float64 `json:"vertical"`
	// Horizontal measures cross-cluster consistency.
	Horizontal float64 `json:"horizontal"`
	// Temporal measures monitoring-to-planning consistency.
	Temporal float64 `json:"temporal"`
	// Combined is the weighted sum of the three axes.
	Combined float64 `json:"combined"`
}

// GlobalScore is the terminal output of a pipeline run: one holistic score
// plus its cross-cutting sub-assessments.
type GlobalScore struct {
	Score        float64                    `json:"score"`
	QualityLevel QualityLevel               `json:"quality_level"`
	Clusters     map[ClusterID]ClusterScore `json:"clusters"`
	// CrossCuttingCoherence in [0,1] combines strategic, operational, and
	// institutional coherence.
	CrossCuttingCoherence float64 `json:"cross_cutting_coherence"`
	// SystemicGaps lists the areas whose raw score fell below the configured
	// gap threshold, in lexicographic order.
	SystemicGaps []AreaID           `json:"systemic_gaps"`
	Alignment    StrategicAlignment `json:"strategic_alignment"`
}
