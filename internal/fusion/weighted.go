// Package fusion provides the pure, stateless aggregation primitives used by
// every pipeline stage: weighted averaging and a Choquet-integral variant with
// pairwise interaction terms.
package fusion

import (
	"fmt"
	"math"

	"github.com/ahrav/go-cascade/internal/domain"
)

// WeightTolerance is the accepted deviation of a weight sum from 1.0.
const WeightTolerance = 1e-6

// NormalizationMode selects how a weighted average treats weight vectors
// whose sum deviates from 1.0. The two behaviors are distinct, explicit
// modes and are never mixed silently.
type NormalizationMode string

const (
	// NormalizationStrict rejects weight sums outside 1.0 +/- WeightTolerance
	// with a WeightNormalizationError.
	NormalizationStrict NormalizationMode = "strict"

	// NormalizationAuto divides every weight by the observed sum before
	// averaging. The sum must still be positive.
	NormalizationAuto NormalizationMode = "auto"
)

// WeightedMean computes the weighted average of values under the given mode.
// Values and weights must have equal, non-zero length and contain no NaN or
// infinite entries. Summation runs in slice order; callers that need
// bit-identical results across runs must present inputs in a canonical order.
func WeightedMean(values, weights []float64, mode NormalizationMode) (float64, error) {
	if len(values) == 0 {
		return 0, domain.ErrEmptyInput
	}
	if len(values) != len(weights) {
		return 0, fmt.Errorf("values (%d) and weights (%d) length mismatch",
			len(values), len(weights))
	}

	var sum float64
	for i, w := range weights {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return 0, fmt.Errorf("invalid value at index %d: %f", i, values[i])
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return 0, fmt.Errorf("invalid weight at index %d: %f", i, w)
		}
		sum += w
	}

	switch mode {
	case NormalizationStrict:
		if math.Abs(sum-1.0) > WeightTolerance {
			return 0, &domain.WeightNormalizationError{Context: "weighted mean", Sum: sum}
		}
	case NormalizationAuto:
		if sum <= 0 {
			return 0, &domain.WeightNormalizationError{Context: "weighted mean", Sum: sum}
		}
	default:
		return 0, fmt.Errorf("unknown normalization mode %q", mode)
	}

	var fused float64
	for i, v := range values {
		fused += weights[i] / sum * v
	}
	// Strict mode still divides by the observed sum: it is within tolerance
	// of 1.0 and dividing keeps idempotence exact for constant inputs.
	return fused, nil
}

// EqualWeights returns a weight vector of length n with every entry 1/n.
func EqualWeights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
