package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cascade/internal/domain"
)

// TestCalibration_Validate exercises every Choquet precondition: linear
// weight normalization, interaction index hygiene, the interaction-mass
// bound, and the structural monotonicity condition.
func TestCalibration_Validate(t *testing.T) {
	tests := []struct {
		name          string
		calibration   Calibration
		expectedError string
	}{
		{
			name:        "valid calibration without interactions",
			calibration: Calibration{Linear: []float64{0.5, 0.3, 0.2}},
		},
		{
			name: "valid calibration with interactions",
			calibration: Calibration{
				Linear: []float64{0.5, 0.3, 0.2},
				Interactions: []Interaction{
					{I: 0, J: 1, Weight: 0.2},
					{I: 1, J: 2, Weight: -0.1},
				},
			},
		},
		{
			name:          "empty linear weights",
			calibration:   Calibration{},
			expectedError: "no linear weights",
		},
		{
			name:          "linear weights summing to 0.97",
			calibration:   Calibration{Linear: []float64{0.5, 0.47}},
			expectedError: "sum to 0.970000",
		},
		{
			name:          "negative linear weight",
			calibration:   Calibration{Linear: []float64{1.2, -0.2}},
			expectedError: "negative",
		},
		{
			name: "interaction indices out of range",
			calibration: Calibration{
				Linear:       []float64{0.5, 0.5},
				Interactions: []Interaction{{I: 0, J: 5, Weight: 0.1}},
			},
			expectedError: "out of order or range",
		},
		{
			name: "interaction indices not ordered",
			calibration: Calibration{
				Linear:       []float64{0.5, 0.5},
				Interactions: []Interaction{{I: 1, J: 0, Weight: 0.1}},
			},
			expectedError: "out of order or range",
		},
		{
			name: "duplicate interaction",
			calibration: Calibration{
				Linear: []float64{0.5, 0.5},
				Interactions: []Interaction{
					{I: 0, J: 1, Weight: 0.1},
					{I: 0, J: 1, Weight: 0.2},
				},
			},
			expectedError: "duplicate interaction",
		},
		{
			name: "interaction mass above half the linear mass",
			calibration: Calibration{
				Linear: []float64{0.5, 0.3, 0.2},
				Interactions: []Interaction{
					{I: 0, J: 1, Weight: 0.4},
					{I: 1, J: 2, Weight: -0.2},
				},
			},
			expectedError: "exceeds half the linear mass",
		},
		{
			name: "negative interactions overwhelm a linear weight",
			calibration: Calibration{
				Linear:       []float64{0.9, 0.05, 0.05},
				Interactions: []Interaction{{I: 1, J: 2, Weight: -0.1}},
			},
			expectedError: "loses monotonicity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.calibration.Validate()
			if tt.expectedError == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var calErr *domain.CalibrationConfigError
			assert.ErrorAs(t, err, &calErr)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

// TestCalibration_Fuse_Boundedness checks that fused values never escape the
// [min(x), max(x)] envelope across positive and negative interactions.
func TestCalibration_Fuse_Boundedness(t *testing.T) {
	calibrations := []Calibration{
		{Linear: []float64{0.4, 0.3, 0.3}},
		{
			Linear:       []float64{0.4, 0.3, 0.3},
			Interactions: []Interaction{{I: 0, J: 1, Weight: 0.2}},
		},
		{
			Linear:       []float64{0.4, 0.3, 0.3},
			Interactions: []Interaction{{I: 0, J: 2, Weight: -0.15}},
		},
	}
	inputs := [][]float64{
		{0.0, 0.5, 1.0},
		{0.9, 0.1, 0.5},
		{0.2, 0.2, 0.2},
		{1.0, 1.0, 0.0},
	}

	for _, cal := range calibrations {
		require.NoError(t, cal.Validate())
		for _, x := range inputs {
			fused, err := cal.Fuse(x)
			require.NoError(t, err)

			lo, hi := x[0], x[0]
			for _, v := range x {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			assert.GreaterOrEqual(t, fused, lo)
			assert.LessOrEqual(t, fused, hi)
		}
	}
}

// TestCalibration_Fuse_Monotonicity verifies that raising any single input
// never decreases the fused value.
func TestCalibration_Fuse_Monotonicity(t *testing.T) {
	cal := Calibration{
		Linear: []float64{0.4, 0.35, 0.25},
		Interactions: []Interaction{
			{I: 0, J: 1, Weight: 0.2},
			{I: 1, J: 2, Weight: -0.1},
		},
	}
	require.NoError(t, cal.Validate())

	base := []float64{0.3, 0.6, 0.45}
	baseline, err := cal.Fuse(base)
	require.NoError(t, err)

	const eps = 0.05
	for i := range base {
		bumped := make([]float64, len(base))
		copy(bumped, base)
		bumped[i] += eps

		raised, err := cal.Fuse(bumped)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, raised, baseline,
			"raising input %d decreased the fused value", i)
	}
}

// TestCalibration_Fuse_Idempotence verifies constant inputs map to that
// constant even when interaction terms carry mass.
func TestCalibration_Fuse_Idempotence(t *testing.T) {
	cal := Calibration{
		Linear:       []float64{0.5, 0.3, 0.2},
		Interactions: []Interaction{{I: 0, J: 2, Weight: 0.3}},
	}
	require.NoError(t, cal.Validate())

	for _, c := range []float64{0.0, 0.25, 0.667, 1.0} {
		fused, err := cal.Fuse([]float64{c, c, c})
		require.NoError(t, err)
		assert.InDelta(t, c, fused, 1e-12)
	}
}

func TestCalibration_Fuse_InputValidation(t *testing.T) {
	cal := UniformCalibration(3)

	_, err := cal.Fuse([]float64{0.1, 0.2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 3 inputs")

	_, err = cal.Fuse([]float64{0.1, 0.2, math.NaN()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value")
}

func TestUniformCalibration(t *testing.T) {
	cal := UniformCalibration(5)
	require.NoError(t, cal.Validate())

	fused, err := cal.Fuse([]float64{0.2, 0.4, 0.6, 0.8, 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, fused, 1e-12)
}
