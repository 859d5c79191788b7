// Package domain contains pure, dependency-free domain models and types
// for the score-aggregation engine.
package domain

import (
	"fmt"
	"sort"
)

// AreaID identifies a policy area within the assessment taxonomy.
type AreaID string

// DimensionID identifies an evaluation dimension within a policy area.
type DimensionID string

// ClusterID identifies a cluster of policy areas.
type ClusterID string

// GroupKey is the composite key that assigns a scored item to exactly one
// (policy area, dimension) aggregation cell.
type GroupKey struct {
	Area      AreaID      `json:"area"`
	Dimension DimensionID `json:"dimension"`
}

// String returns the canonical "area/dimension" form used in provenance
// operations and error messages.
func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s", k.Area, k.Dimension)
}

// Cluster defines one member of the cluster partition: a named, non-overlapping
// subset of policy areas.
type Cluster struct {
	ID      ClusterID `json:"id" yaml:"id" koanf:"id"`
	Members []AreaID  `json:"members" yaml:"members" koanf:"members"`
}

// Taxonomy is the closed enumeration of policy areas, dimensions, and clusters
// an engine instance aggregates over. It is constructed once from configuration,
// validated for full partition coverage, and injected read-only into every
// aggregator; the engine itself is agnostic to the concrete cardinalities.
type Taxonomy struct {
	// Areas lists every policy area, in canonical order.
	Areas []AreaID `json:"areas" yaml:"areas" koanf:"areas"`
	// Dimensions lists the dimension set expected in every area, in canonical
	// order. Each area must produce exactly one score per dimension to be
	// hermetic.
	Dimensions []DimensionID `json:"dimensions" yaml:"dimensions" koanf:"dimensions"`
	// Clusters is a partition of Areas: every area appears in exactly one
	// cluster.
	Clusters []Cluster `json:"clusters" yaml:"clusters" koanf:"clusters"`
	// ItemsPerCell is the number of scored items expected in every
	// (area, dimension) cell.
	ItemsPerCell int `json:"items_per_cell" yaml:"items_per_cell" koanf:"items_per_cell"`
}

// ExpectedItemCount returns the total number of scored items a complete input
// batch must contain: areas x dimensions x items per cell.
func (t Taxonomy) ExpectedItemCount() int {
	return len(t.Areas) * len(t.Dimensions) * t.ItemsPerCell
}

// CellCount returns the number of (area, dimension) aggregation cells.
func (t Taxonomy) CellCount() int { return len(t.Areas) * len(t.Dimensions) }

// SortedAreas returns the area identifiers in lexicographic order.
// Aggregators iterate in this order so that floating-point reductions are
// performed in a canonical sequence and runs stay bit-identical.
func (t Taxonomy) SortedAreas() []AreaID {
	out := make([]AreaID, len(t.Areas))
	copy(out, t.Areas)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedDimensions returns the dimension identifiers in lexicographic order.
func (t Taxonomy) SortedDimensions() []DimensionID {
	out := make([]DimensionID, len(t.Dimensions))
	copy(out, t.Dimensions)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedClusters returns the clusters sorted by identifier, each with its
// member list sorted as well.
func (t Taxonomy) SortedClusters() []Cluster {
	out := make([]Cluster, len(t.Clusters))
	for i, c := range t.Clusters {
		members := make([]AreaID, len(c.Members))
		copy(members, c.Members)
		sort.Slice(members, func(a, b int) bool { return members[a] < members[b] })
		out[i] = Cluster{ID: c.ID, Members: members}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClusterOf returns the cluster containing the given area.
// The boolean is false when the area is not part of the partition.
func (t Taxonomy) ClusterOf(area AreaID) (ClusterID, bool) {
	for _, c := range t.Clusters {
		for _, m := range c.Members {
			if m == area {
				return c.ID, true
			}
		}
	}
	return "", false
}

// HasArea reports whether the area belongs to the taxonomy.
func (t Taxonomy) HasArea(area AreaID) bool {
	for _, a := range t.Areas {
		if a == area {
			return true
		}
	}
	return false
}

// HasDimension reports whether the dimension belongs to the taxonomy.
func (t Taxonomy) HasDimension(dim DimensionID) bool {
	for _, d := range t.Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}
