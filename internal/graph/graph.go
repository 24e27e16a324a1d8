// Package graph builds shared-nearest-neighbour graphs over cells in
// embedding space.
//
// NeighborGraph satisfies gonum's graph.WeightedUndirected with node IDs equal
// to cell indices. Adjacency is kept sorted by ID, so every traversal, and
// every algorithm run on the graph, sees the same order.
package graph

import (
	"math"
	"sort"

	"scqc/internal/errors"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// Scheme selects how shared-neighbour edges are weighted
type Scheme string

const (
	SchemeRank    Scheme = "rank"
	SchemeJaccard Scheme = "jaccard"
)

// Neighbor is one weighted adjacency entry
type Neighbor struct {
	Node   int
	Weight float64
}

// WeightedPair is an undirected edge with A < B
type WeightedPair struct {
	A, B   int
	Weight float64
}

// NeighborGraph is an undirected weighted graph over cells
type NeighborGraph struct {
	cells  []string
	k      int
	scheme Scheme
	adj    [][]Neighbor
}

var _ gonum.WeightedUndirected = (*NeighborGraph)(nil)

// FromEdges builds a graph over cells from an explicit edge list. Edges must
// join distinct cells, carry positive finite weights and appear once.
func FromEdges(cells []string, edges []WeightedPair) (*NeighborGraph, error) {
	if len(cells) == 0 {
		return nil, errors.EmptyMatrix("graph has no cells")
	}
	n := len(cells)
	adj := make([][]Neighbor, n)
	seen := make(map[[2]int]struct{}, len(edges))
	for _, e := range edges {
		a, b := min(e.A, e.B), max(e.A, e.B)
		if a < 0 || b >= n || a == b {
			return nil, errors.InvalidConfiguration("edge %d-%d is out of range or a self loop", e.A, e.B)
		}
		if !(e.Weight > 0) || math.IsInf(e.Weight, 0) {
			return nil, errors.InvalidConfiguration("edge %d-%d has weight %v", e.A, e.B, e.Weight)
		}
		if _, dup := seen[[2]int{a, b}]; dup {
			return nil, errors.InvalidConfiguration("duplicate edge %d-%d", a, b)
		}
		seen[[2]int{a, b}] = struct{}{}
		adj[a] = append(adj[a], Neighbor{Node: b, Weight: e.Weight})
		adj[b] = append(adj[b], Neighbor{Node: a, Weight: e.Weight})
	}
	for _, row := range adj {
		sort.Slice(row, func(i, j int) bool { return row[i].Node < row[j].Node })
	}
	return &NeighborGraph{cells: append([]string(nil), cells...), adj: adj}, nil
}

// NumNodes returns the number of cells
func (g *NeighborGraph) NumNodes() int { return len(g.adj) }

// Cells returns a copy of the cell ids
func (g *NeighborGraph) Cells() []string { return append([]string(nil), g.cells...) }

// K returns the neighbour count the graph was built with, after clamping
func (g *NeighborGraph) K() int { return g.k }

// Scheme returns the edge weighting scheme
func (g *NeighborGraph) Scheme() Scheme { return g.scheme }

// Neighbors returns a copy of node i's adjacency, sorted by node
func (g *NeighborGraph) Neighbors(i int) []Neighbor {
	return append([]Neighbor(nil), g.adj[i]...)
}

// EdgeWeight returns the weight between a and b, or 0 when not adjacent
func (g *NeighborGraph) EdgeWeight(a, b int) float64 {
	w, _ := g.lookup(a, b)
	return w
}

// Degree returns the sum of node i's edge weights
func (g *NeighborGraph) Degree(i int) float64 {
	var d float64
	for _, nb := range g.adj[i] {
		d += nb.Weight
	}
	return d
}

// TotalWeight returns the sum of all edge weights, each edge counted once
func (g *NeighborGraph) TotalWeight() float64 {
	var w float64
	for i := range g.adj {
		for _, nb := range g.adj[i] {
			if nb.Node > i {
				w += nb.Weight
			}
		}
	}
	return w
}

// NumEdges returns the number of undirected edges
func (g *NeighborGraph) NumEdges() int {
	n := 0
	for i := range g.adj {
		for _, nb := range g.adj[i] {
			if nb.Node > i {
				n++
			}
		}
	}
	return n
}

// Edges lists every edge once, ordered by (A, B)
func (g *NeighborGraph) Edges() []WeightedPair {
	var out []WeightedPair
	for i := range g.adj {
		for _, nb := range g.adj[i] {
			if nb.Node > i {
				out = append(out, WeightedPair{A: i, B: nb.Node, Weight: nb.Weight})
			}
		}
	}
	return out
}

func (g *NeighborGraph) lookup(a, b int) (float64, bool) {
	if a < 0 || a >= len(g.adj) {
		return 0, false
	}
	row := g.adj[a]
	i := sort.Search(len(row), func(i int) bool { return row[i].Node >= b })
	if i < len(row) && row[i].Node == b {
		return row[i].Weight, true
	}
	return 0, false
}

func (g *NeighborGraph) valid(id int64) bool {
	return id >= 0 && id < int64(len(g.adj))
}

// Node implements gonum graph.Graph
func (g *NeighborGraph) Node(id int64) gonum.Node {
	if !g.valid(id) {
		return nil
	}
	return simple.Node(id)
}

// Nodes implements gonum graph.Graph
func (g *NeighborGraph) Nodes() gonum.Nodes {
	if len(g.adj) == 0 {
		return gonum.Empty
	}
	nodes := make([]gonum.Node, len(g.adj))
	for i := range nodes {
		nodes[i] = simple.Node(i)
	}
	return iterator.NewOrderedNodes(nodes)
}

// From implements gonum graph.Graph
func (g *NeighborGraph) From(id int64) gonum.Nodes {
	if !g.valid(id) || len(g.adj[id]) == 0 {
		return gonum.Empty
	}
	row := g.adj[id]
	nodes := make([]gonum.Node, len(row))
	for i, nb := range row {
		nodes[i] = simple.Node(nb.Node)
	}
	return iterator.NewOrderedNodes(nodes)
}

// HasEdgeBetween implements gonum graph.Graph
func (g *NeighborGraph) HasEdgeBetween(xid, yid int64) bool {
	_, ok := g.lookup(int(xid), int(yid))
	return ok
}

// Edge implements gonum graph.Graph
func (g *NeighborGraph) Edge(uid, vid int64) gonum.Edge {
	return g.WeightedEdge(uid, vid)
}

// EdgeBetween implements gonum graph.Undirected
func (g *NeighborGraph) EdgeBetween(xid, yid int64) gonum.Edge {
	return g.WeightedEdge(xid, yid)
}

// WeightedEdgeBetween implements gonum graph.WeightedUndirected
func (g *NeighborGraph) WeightedEdgeBetween(xid, yid int64) gonum.WeightedEdge {
	return g.WeightedEdge(xid, yid)
}

// WeightedEdge implements gonum graph.Weighted
func (g *NeighborGraph) WeightedEdge(uid, vid int64) gonum.WeightedEdge {
	w, ok := g.lookup(int(uid), int(vid))
	if !ok {
		return nil
	}
	return simple.WeightedEdge{F: simple.Node(uid), T: simple.Node(vid), W: w}
}

// Weight implements gonum graph.Weighted. A node has weight 0 to itself.
func (g *NeighborGraph) Weight(xid, yid int64) (float64, bool) {
	if xid == yid && g.valid(xid) {
		return 0, true
	}
	return g.lookup(int(xid), int(yid))
}
