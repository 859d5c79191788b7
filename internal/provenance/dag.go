// Package provenance records every aggregation operation as a node in an
// append-only DAG and answers attribution queries over it.
//
// Nodes live in an arena addressed by integer index; edges store indices
// rather than pointers, so the structure has no ownership cycles and can be
// serialized as-is. Insertion is synchronized: parallel group computations
// within one pipeline stage append concurrently.
package provenance

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ahrav/go-cascade/internal/domain"
)

// NodeID addresses a node within the DAG's arena.
type NodeID int

// Level identifies the aggregation level a node belongs to.
type Level string

// Aggregation levels, leaf to root.
const (
	LevelItem      Level = "item"
	LevelDimension Level = "dimension"
	LevelArea      Level = "area"
	LevelCluster   Level = "cluster"
	LevelGlobal    Level = "global"
)

// Node is one recorded aggregation operation. Nodes are read-only after
// creation.
type Node struct {
	ID    NodeID `json:"id"`
	Level Level  `json:"level"`
	// Operation names the fusion applied, e.g. "weighted_mean" or "choquet".
	// Leaf nodes carry "source".
	Operation string `json:"operation"`
	// Ref is the domain key of the produced entity: an item ID, an
	// "area/dimension" cell, an area, a cluster, or "global".
	Ref string `json:"ref"`
	// Inbound lists the input nodes, in the deterministic order they were
	// combined.
	Inbound []NodeID `json:"inbound,omitempty"`
	// Weights holds the effective fusion weight per inbound edge, aligned
	// with Inbound. Empty means equal weighting.
	Weights []float64 `json:"weights,omitempty"`
}

// DAG is the provenance graph for one pipeline run. The zero value is not
// usable; construct with New.
type DAG struct {
	mu    sync.RWMutex
	nodes []Node
	// outbound mirrors the inbound edge lists for reachability walks.
	outbound map[NodeID][]NodeID
}

// New creates an empty provenance DAG.
func New() *DAG {
	return &DAG{outbound: make(map[NodeID][]NodeID)}
}

// AddNode appends a node and returns its arena index. The weights slice, when
// non-empty, must later be matched by exactly len(weights) AddEdge calls.
func (d *DAG) AddNode(level Level, operation, ref string, weights []float64) NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := NodeID(len(d.nodes))
	w := make([]float64, len(weights))
	copy(w, weights)
	d.nodes = append(d.nodes, Node{
		ID:        id,
		Level:     level,
		Operation: operation,
		Ref:       ref,
		Weights:   w,
	})
	return id
}

// AddEdge records that from's output fed to's aggregation. The edge is
// rejected with a CycleDetectedError when to can already reach from, which
// can only happen on a programming error in a calling aggregator.
func (d *DAG) AddEdge(from, to NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int(from) < 0 || int(from) >= len(d.nodes) {
		return fmt.Errorf("edge source %d out of range", from)
	}
	if int(to) < 0 || int(to) >= len(d.nodes) {
		return fmt.Errorf("edge target %d out of range", to)
	}
	if from == to {
		return &domain.CycleDetectedError{From: int(from), To: int(to)}
	}
	if d.reachableLocked(to, from) {
		return &domain.CycleDetectedError{From: int(from), To: int(to)}
	}

	node := &d.nodes[to]
	node.Inbound = append(node.Inbound, from)
	d.outbound[from] = append(d.outbound[from], to)
	return nil
}

// reachableLocked reports whether target is reachable from start following
// edge direction. Callers must hold the mutex.
func (d *DAG) reachableLocked(start, target NodeID) bool {
	stack := []NodeID{start}
	seen := make(map[NodeID]struct{})
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		stack = append(stack, d.outbound[cur]...)
	}
	return false
}

// Node returns a copy of the node at id.
func (d *DAG) Node(id NodeID) (Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if int(id) < 0 || int(id) >= len(d.nodes) {
		return Node{}, fmt.Errorf("node %d out of range", id)
	}
	n := d.nodes[id]
	n.Inbound = append([]NodeID(nil), n.Inbound...)
	n.Weights = append([]float64(nil), n.Weights...)
	return n, nil
}

// Len returns the number of nodes.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// Nodes returns a copy of the full arena in insertion order.
func (d *DAG) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Node, len(d.nodes))
	for i, n := range d.nodes {
		n.Inbound = append([]NodeID(nil), n.Inbound...)
		n.Weights = append([]float64(nil), n.Weights...)
		out[i] = n
	}
	return out
}

// EdgeSet returns every edge as (from, to) pairs sorted by target then
// source, a canonical form suitable for run-to-run comparison.
func (d *DAG) EdgeSet() [][2]NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var edges [][2]NodeID
	for _, n := range d.nodes {
		for _, from := range n.Inbound {
			edges = append(edges, [2]NodeID{from, n.ID})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][1] != edges[j][1] {
			return edges[i][1] < edges[j][1]
		}
		return edges[i][0] < edges[j][0]
	})
	return edges
}

// Attribution returns the proportional contribution of every leaf ancestor
// of target, keyed by leaf node ID. Contributions sum to 1.0 within
// floating-point tolerance.
//
// The decomposition is the Shapley value of the recorded weighted-sum
// structure, which is exact for linear fusions. Choquet interaction terms are
// folded in upstream: aggregators record each edge weight as the input's
// linear weight plus half of every interaction it participates in, so the
// interaction mass is split equally between the pair (a deterministic
// approximation, exact when interactions are zero).
func (d *DAG) Attribution(target NodeID) (map[NodeID]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if int(target) < 0 || int(target) >= len(d.nodes) {
		return nil, fmt.Errorf("node %d out of range", target)
	}

	memo := make(map[NodeID]map[NodeID]float64)
	return d.attributionLocked(target, memo)
}

func (d *DAG) attributionLocked(id NodeID, memo map[NodeID]map[NodeID]float64) (map[NodeID]float64, error) {
	if cached, ok := memo[id]; ok {
		return cached, nil
	}

	node := d.nodes[id]
	if len(node.Inbound) == 0 {
		result := map[NodeID]float64{id: 1.0}
		memo[id] = result
		return result, nil
	}

	weights := node.Weights
	if len(weights) == 0 {
		weights = equalShares(len(node.Inbound))
	} else if len(weights) != len(node.Inbound) {
		return nil, fmt.Errorf("node %d has %d weights for %d inbound edges",
			id, len(weights), len(node.Inbound))
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("node %d has non-positive weight mass %.6f", id, sum)
	}

	result := make(map[NodeID]float64)
	for i, from := range node.Inbound {
		share := weights[i] / sum
		sub, err := d.attributionLocked(from, memo)
		if err != nil {
			return nil, err
		}
		for leaf, frac := range sub {
			result[leaf] += share * frac
		}
	}
	memo[id] = result
	return result, nil
}

// CriticalPath returns the topK leaf ancestors of target ordered by
// descending attribution; ties break toward the smaller node ID so the
// ordering is deterministic.
func (d *DAG) CriticalPath(target NodeID, topK int) ([]NodeID, error) {
	attr, err := d.Attribution(target)
	if err != nil {
		return nil, err
	}

	leaves := make([]NodeID, 0, len(attr))
	for id := range attr {
		leaves = append(leaves, id)
	}
	sort.Slice(leaves, func(i, j int) bool {
		ai, aj := attr[leaves[i]], attr[leaves[j]]
		if ai != aj {
			return ai > aj
		}
		return leaves[i] < leaves[j]
	})

	if topK > 0 && topK < len(leaves) {
		leaves = leaves[:topK]
	}
	return leaves, nil
}

func equalShares(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
