package ports

import "github.com/ahrav/go-cascade/internal/domain"

// WeightResolver supplies the fusion weight vectors each aggregation stage
// applies. The engine configuration is the canonical implementation; tests
// inject alternatives to exercise specific weight shapes.
//
// Every returned vector is aligned element-for-element with the identifier
// slice it was resolved for, and an empty backing table yields equal weights.
// Implementations must be safe for concurrent use.
type WeightResolver interface {
	// ItemWeightVector returns the weight of each of the n items in a
	// dimension cell.
	ItemWeightVector(n int) []float64

	// DimensionWeightVector returns the area-stage weight for each dimension.
	DimensionWeightVector(dims []domain.DimensionID) []float64

	// AreaWeightVector returns the cluster-stage weight for each area.
	AreaWeightVector(areas []domain.AreaID) []float64

	// ClusterWeightVector returns the global-stage weight for each cluster.
	ClusterWeightVector(clusters []domain.ClusterID) []float64
}
