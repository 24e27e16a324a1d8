// Package community partitions neighbour graphs into communities and measures
// how strongly the resulting clusters connect to each other.
package community

import (
	"sort"
	"time"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"

	"scqc/domain/cluster"
	"scqc/internal"
	"scqc/internal/errors"
	"scqc/internal/graph"
	"scqc/internal/rng"
)

// LouvainOptions configure Louvain
type LouvainOptions struct {
	// Seed drives the node visiting order and is required
	Seed *int64
	// Resolution defaults to 1
	Resolution float64
	Logger     *internal.Logger
}

// Louvain runs gonum's multi-level modularity optimisation on g. Equal seeds
// give equal labelings. Communities are numbered from 1 in the order of their
// lowest cell index.
func Louvain(g *graph.NeighborGraph, opts LouvainOptions) (*cluster.Labeling, error) {
	if g == nil || g.NumNodes() == 0 {
		return nil, errors.EmptyMatrix("louvain: empty graph")
	}
	if opts.Seed == nil {
		return nil, errors.InvalidConfiguration("louvain requires a seed")
	}
	if opts.Resolution < 0 {
		return nil, errors.InvalidConfiguration("louvain resolution must be positive, got %v", opts.Resolution)
	}
	if opts.Resolution == 0 {
		opts.Resolution = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	start := time.Now()

	src := rng.New(*opts.Seed).PCG("louvain", 0)
	reduced := community.Modularize(g, opts.Resolution, src)
	groups := reduced.Communities()

	labels, err := labelsFromCommunities(g.NumNodes(), groups)
	if err != nil {
		return nil, err
	}
	q := community.Q(g, groups, opts.Resolution)
	logger.Debug("louvain: %d communities, Q=%.4f, %s", len(groups), q, time.Since(start))
	return cluster.NewLabeling(cluster.MethodLouvain, g.Cells(), labels)
}

// labelsFromCommunities checks that groups partition 0..n-1 and numbers the
// non-empty groups by their smallest member
func labelsFromCommunities(n int, groups [][]gonum.Node) ([]int, error) {
	type group struct {
		first   int
		members []int
	}
	var found []group
	for _, c := range groups {
		if len(c) == 0 {
			continue
		}
		members := make([]int, len(c))
		for i, node := range c {
			members[i] = int(node.ID())
		}
		sort.Ints(members)
		found = append(found, group{first: members[0], members: members})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].first < found[b].first })

	labels := make([]int, n)
	for i, gr := range found {
		for _, id := range gr.members {
			if id < 0 || id >= n || labels[id] != 0 {
				return nil, errors.NonConvergence("community structure does not partition the graph")
			}
			labels[id] = i + 1
		}
	}
	for id, l := range labels {
		if l == 0 {
			return nil, errors.NonConvergence("node %d was left without a community", id)
		}
	}
	return labels, nil
}
