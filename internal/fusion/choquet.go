package fusion

import (
	"fmt"
	"math"

	"github.com/ahrav/go-cascade/internal/domain"
)

// postconditionTolerance bounds the floating-point slack allowed when the
// runtime boundedness and idempotence checks run.
const postconditionTolerance = 1e-9

// Interaction is one pairwise interaction term of a Choquet calibration.
// I and J index into the linear weight vector and must satisfy I < J.
type Interaction struct {
	I      int     `json:"i" yaml:"i"`
	J      int     `json:"j" yaml:"j"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Calibration defines a Choquet-integral fusion over n inputs: linear weights
// plus pairwise interaction weights applied to min(x_i, x_j). The fused value
// is renormalized by the total mass (linear sum plus interaction sum) so that
// constant inputs map to themselves.
//
// A Calibration is immutable after Validate succeeds and safe for concurrent
// use.
type Calibration struct {
	// Linear holds the first-order weights, one per input. Must sum to 1.0
	// within WeightTolerance.
	Linear []float64 `json:"linear" yaml:"linear"`
	// Interactions holds the pairwise terms. Total absolute interaction mass
	// must not exceed half the linear mass.
	Interactions []Interaction `json:"interactions,omitempty" yaml:"interactions,omitempty"`
}

// Validate checks the calibration preconditions and returns a
// CalibrationConfigError on the first violation. It verifies:
//   - at least one input,
//   - linear weights sum to 1.0 within tolerance and are non-negative,
//   - interaction indices are in range, ordered i<j, and not duplicated,
//   - total |interaction| mass is at most half the linear mass,
//   - the structural monotonicity condition: for every input i, the linear
//     weight plus the sum of its negative interaction weights stays
//     non-negative, which bounds the integral's partial derivatives below
//     by zero.
func (c Calibration) Validate() error {
	n := len(c.Linear)
	if n == 0 {
		return &domain.CalibrationConfigError{Reason: "no linear weights"}
	}

	var linearSum float64
	for i, w := range c.Linear {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("linear weight %d is not finite", i),
			}
		}
		if w < 0 {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("linear weight %d is negative: %f", i, w),
			}
		}
		linearSum += w
	}
	if math.Abs(linearSum-1.0) > WeightTolerance {
		return &domain.CalibrationConfigError{
			Reason: fmt.Sprintf("linear weights sum to %.6f, want 1.0", linearSum),
		}
	}

	seen := make(map[[2]int]struct{}, len(c.Interactions))
	negByInput := make([]float64, n)
	var interactionMass float64
	for _, it := range c.Interactions {
		if it.I < 0 || it.J >= n || it.I >= it.J {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("interaction indices (%d,%d) out of order or range for %d inputs",
					it.I, it.J, n),
			}
		}
		key := [2]int{it.I, it.J}
		if _, dup := seen[key]; dup {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("duplicate interaction (%d,%d)", it.I, it.J),
			}
		}
		seen[key] = struct{}{}
		if math.IsNaN(it.Weight) || math.IsInf(it.Weight, 0) {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("interaction (%d,%d) weight is not finite", it.I, it.J),
			}
		}
		interactionMass += math.Abs(it.Weight)
		if it.Weight < 0 {
			negByInput[it.I] += it.Weight
			negByInput[it.J] += it.Weight
		}
	}
	if interactionMass > 0.5*linearSum+WeightTolerance {
		return &domain.CalibrationConfigError{
			Reason: fmt.Sprintf("interaction mass %.6f exceeds half the linear mass %.6f",
				interactionMass, linearSum),
		}
	}
	for i := range c.Linear {
		if c.Linear[i]+negByInput[i] < -WeightTolerance {
			return &domain.CalibrationConfigError{
				Reason: fmt.Sprintf("input %d loses monotonicity: linear %.6f cannot absorb negative interactions %.6f",
					i, c.Linear[i], negByInput[i]),
			}
		}
	}
	return nil
}

// Fuse evaluates the Choquet integral over normalized inputs in [0,1].
// The result satisfies boundedness (min(x) <= out <= max(x)), monotonicity
// in every input, and idempotence for constant inputs; boundedness and
// idempotence are re-checked at runtime as a defensive invariant and a
// violation surfaces as ErrPostconditionViolated, indicating a calibration
// that passed validation incorrectly.
func (c Calibration) Fuse(values []float64) (float64, error) {
	if len(values) != len(c.Linear) {
		return 0, fmt.Errorf("calibration expects %d inputs, got %d",
			len(c.Linear), len(values))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid value at index %d: %f", i, v)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var num, mass float64
	for i, w := range c.Linear {
		num += w * values[i]
		mass += w
	}
	for _, it := range c.Interactions {
		num += it.Weight * math.Min(values[it.I], values[it.J])
		mass += it.Weight
	}
	if mass <= 0 {
		return 0, &domain.CalibrationConfigError{
			Reason: fmt.Sprintf("total mass %.6f is not positive", mass),
		}
	}
	fused := num / mass

	if fused < lo-postconditionTolerance || fused > hi+postconditionTolerance {
		return 0, fmt.Errorf("%w: fused %.12f outside [%.12f, %.12f]",
			domain.ErrPostconditionViolated, fused, lo, hi)
	}
	if hi-lo <= postconditionTolerance && math.Abs(fused-lo) > postconditionTolerance {
		return 0, fmt.Errorf("%w: constant input %.12f fused to %.12f",
			domain.ErrPostconditionViolated, lo, fused)
	}
	// Clamp residual floating-point overshoot so downstream bounds checks
	// see values strictly inside [min, max].
	return math.Min(math.Max(fused, lo), hi), nil
}

// UniformCalibration returns a Calibration with equal linear weights over n
// inputs and no interaction terms.
func UniformCalibration(n int) Calibration {
	return Calibration{Linear: EqualWeights(n)}
}
