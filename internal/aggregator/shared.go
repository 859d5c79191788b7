// Package aggregator implements the four aggregation stages of the engine:
// scored items to dimension scores, dimensions to areas, areas to clusters,
// and clusters to the global score.
//
// Stages are strictly sequential, but the independent group computations
// within a stage fan out to a bounded worker pool writing into indexed
// result slots. Provenance is recorded by a single writer after the stage
// barrier, in canonical key order, so node IDs and edge sets are identical
// across runs on identical input.
package aggregator

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-cascade/internal/fusion"
)

// Stage names used in cardinality errors, metrics labels, and provenance
// operations.
const (
	StageDimension = "dimension"
	StageArea      = "area"
	StageCluster   = "cluster"
	StageGlobal    = "global"
)

// Provenance operation names.
const (
	opSource       = "source"
	opWeightedMean = "weighted_mean"
	opChoquet      = "choquet"
)

// ciZ is the two-sided critical value for the 95% confidence interval under
// the normal approximation.
const ciZ = 1.96

// forEachParallel runs fn for every index in [0, n) on a worker pool bounded
// by the CPU count. Each fn invocation owns its own output slot, so the
// only cross-goroutine coordination is the final join.
func forEachParallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}

// clampScore bounds v to the closed raw scale [0, scaleMax], absorbing
// floating-point overshoot before scores cross a stage boundary.
func clampScore(v, scaleMax float64) float64 {
	return math.Min(math.Max(v, 0), scaleMax)
}

// effectiveChoquetWeights flattens a Choquet calibration into one weight per
// input for provenance attribution: each input receives its linear weight
// plus half the absolute weight of every interaction it participates in.
// Exact for calibrations without interactions.
func effectiveChoquetWeights(cal fusion.Calibration) []float64 {
	w := make([]float64, len(cal.Linear))
	copy(w, cal.Linear)
	for _, it := range cal.Interactions {
		half := math.Abs(it.Weight) / 2
		w[it.I] += half
		w[it.J] += half
	}
	return w
}

// normalizeShares divides weights by their sum so provenance edges carry
// proportional shares. A non-positive sum falls back to equal shares.
func normalizeShares(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return fusion.EqualWeights(len(weights))
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

// pairwiseNormalizedVariance returns the mean squared pairwise difference of
// scores, normalized by scaleMax^2 so the result lives in [0,1]. Used for
// the cluster coherence metric (coherence = 1 - this value).
func pairwiseNormalizedVariance(scores []float64, scaleMax float64) float64 {
	if len(scores) < 2 || scaleMax <= 0 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(scores); i++ {
		for j := i + 1; j < len(scores); j++ {
			d := (scores[i] - scores[j]) / scaleMax
			sum += d * d
			pairs++
		}
	}
	return math.Min(sum/float64(pairs), 1.0)
}
