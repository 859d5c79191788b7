// Package dispersion computes statistical spread measures over score sets and
// classifies them into the ordered dispersion scenarios that drive the
// adaptive penalty.
package dispersion

import (
	"math"
	"sort"

	"github.com/ahrav/go-cascade/internal/domain"
)

// Thresholds holds the ordered coefficient-of-variation cut points that
// separate the four dispersion scenarios. Values are configuration, not
// constants: callers load them from the engine config so threshold changes
// never require a rebuild.
type Thresholds struct {
	// Convergence is the upper CV bound (exclusive) of the convergence
	// scenario.
	Convergence float64 `json:"convergence" yaml:"convergence" koanf:"convergence" validate:"gt=0"`
	// Moderate is the upper CV bound (exclusive) of the moderate scenario.
	Moderate float64 `json:"moderate" yaml:"moderate" koanf:"moderate" validate:"gtfield=Convergence"`
	// High is the upper CV bound (exclusive) of the high scenario; anything
	// at or above it is extreme.
	High float64 `json:"high" yaml:"high" koanf:"high" validate:"gtfield=Moderate"`
}

// DefaultThresholds returns the source-domain scenario cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Convergence: 0.15, Moderate: 0.30, High: 0.60}
}

// Classify maps a coefficient of variation onto its scenario. The mapping is
// total and ordered: every finite CV lands in exactly one scenario.
func (t Thresholds) Classify(cv float64) domain.Scenario {
	switch {
	case cv < t.Convergence:
		return domain.ScenarioConvergence
	case cv < t.Moderate:
		return domain.ScenarioModerate
	case cv < t.High:
		return domain.ScenarioHigh
	default:
		return domain.ScenarioExtreme
	}
}

// Analyzer computes dispersion statistics for score sets on a fixed raw
// scale. It is stateless and safe for concurrent use.
type Analyzer struct {
	thresholds Thresholds
	// scaleMax normalizes the range-based dispersion index into [0,1].
	scaleMax float64
}

// NewAnalyzer creates an Analyzer for scores on the [0, scaleMax] scale.
func NewAnalyzer(thresholds Thresholds, scaleMax float64) *Analyzer {
	return &Analyzer{thresholds: thresholds, scaleMax: scaleMax}
}

// Analyze computes the coefficient of variation, the normalized-range
// dispersion index, and the quartiles of the given scores, then classifies
// the scenario. It requires at least two values; fewer make variance
// undefined and return a DispersionComputationError attributed to group.
func (a *Analyzer) Analyze(group string, scores []float64) (domain.Dispersion, domain.Scenario, error) {
	if len(scores) < 2 {
		return domain.Dispersion{}, "", &domain.DispersionComputationError{
			Group:  group,
			Reason: "at least 2 values required for variance",
		}
	}
	for _, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Dispersion{}, "", &domain.DispersionComputationError{
				Group:  group,
				Reason: "non-finite value in score set",
			}
		}
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	mean := Mean(sorted)
	std := SampleStd(sorted, mean)

	// CV is defined as 0 for an all-zero score set rather than dividing
	// by a zero mean.
	var cv float64
	if mean != 0 {
		cv = std / mean
	}

	index := 0.0
	if a.scaleMax > 0 {
		index = (sorted[len(sorted)-1] - sorted[0]) / a.scaleMax
	}

	d := domain.Dispersion{
		CV:    cv,
		Index: index,
		Quartiles: domain.Quartiles{
			Q1:     Quantile(sorted, 0.25),
			Median: Quantile(sorted, 0.50),
			Q3:     Quantile(sorted, 0.75),
		},
	}
	return d, a.thresholds.Classify(cv), nil
}

// Mean returns the arithmetic mean, summing in slice order.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStd returns the sample standard deviation (n-1 denominator) around
// the given mean, or 0 for fewer than two values.
func SampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// Quantile returns the q-th quantile of sorted values using the R-7 linear
// interpolation method (the numpy and spreadsheet default): the quantile
// position is h = (n-1)q and the result interpolates linearly between the
// neighboring order statistics.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * q
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
