package dispersion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cascade/internal/domain"
)

// TestThresholds_Classify verifies the scenario mapping is total and ordered
// over the configured CV cut points, including the exact boundary values.
func TestThresholds_Classify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name     string
		cv       float64
		expected domain.Scenario
	}{
		{"zero cv is convergence", 0.0, domain.ScenarioConvergence},
		{"just below convergence bound", 0.1499, domain.ScenarioConvergence},
		{"convergence bound belongs to moderate", 0.15, domain.ScenarioModerate},
		{"mid moderate", 0.22, domain.ScenarioModerate},
		{"moderate bound belongs to high", 0.30, domain.ScenarioHigh},
		{"mid high", 0.45, domain.ScenarioHigh},
		{"high bound belongs to extreme", 0.60, domain.ScenarioExtreme},
		{"far beyond high", 2.5, domain.ScenarioExtreme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, th.Classify(tt.cv))
		})
	}
}

// TestAnalyzer_Analyze covers the dispersion statistics on known inputs.
func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds(), 3.0)

	t.Run("identical scores converge with zero cv", func(t *testing.T) {
		d, scenario, err := a.Analyze("cluster_a", []float64{2.0, 2.0, 2.0})
		require.NoError(t, err)

		assert.Equal(t, 0.0, d.CV)
		assert.Equal(t, 0.0, d.Index)
		assert.Equal(t, domain.ScenarioConvergence, scenario)
		assert.Equal(t, 2.0, d.Quartiles.Median)
	})

	t.Run("all-zero scores define cv as zero", func(t *testing.T) {
		d, scenario, err := a.Analyze("cluster_a", []float64{0.0, 0.0})
		require.NoError(t, err)
		assert.Equal(t, 0.0, d.CV)
		assert.Equal(t, domain.ScenarioConvergence, scenario)
	})

	t.Run("spread scores produce range-normalized index", func(t *testing.T) {
		d, _, err := a.Analyze("cluster_b", []float64{0.5, 1.0, 2.0, 3.0})
		require.NoError(t, err)
		// Range 2.5 over scale 3.0.
		assert.InDelta(t, 2.5/3.0, d.Index, 1e-12)
	})

	t.Run("fewer than two values fails", func(t *testing.T) {
		_, _, err := a.Analyze("cluster_c", []float64{1.0})
		require.Error(t, err)
		var dErr *domain.DispersionComputationError
		assert.ErrorAs(t, err, &dErr)
		assert.Equal(t, "cluster_c", dErr.Group)
	})

	t.Run("non-finite value fails", func(t *testing.T) {
		_, _, err := a.Analyze("cluster_d", []float64{1.0, math.NaN()})
		require.Error(t, err)
		var dErr *domain.DispersionComputationError
		assert.ErrorAs(t, err, &dErr)
	})
}

// TestQuantile pins the R-7 interpolation on a known vector: for
// [1,2,3,4], Q1 sits at position 0.75 between 1 and 2.
func TestQuantile(t *testing.T) {
	sorted := []float64{1.0, 2.0, 3.0, 4.0}

	assert.InDelta(t, 1.75, Quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 2.5, Quantile(sorted, 0.50), 1e-12)
	assert.InDelta(t, 3.25, Quantile(sorted, 0.75), 1e-12)

	assert.Equal(t, 7.0, Quantile([]float64{7.0}, 0.5))
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}

func TestSampleStd(t *testing.T) {
	values := []float64{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}
	mean := Mean(values)
	assert.InDelta(t, 5.0, mean, 1e-12)
	// Sample std of the classic example set is sqrt(32/7).
	assert.InDelta(t, 2.138089935299395, SampleStd(values, mean), 1e-9)

	assert.Equal(t, 0.0, SampleStd([]float64{3.0}, 3.0))
}
