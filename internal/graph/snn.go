package graph

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"scqc/domain/matrix"
	"scqc/internal"
	"scqc/internal/errors"
)

// DefaultK is the neighbour count used when none is configured
const DefaultK = 10

// minRankWeight keeps rank-weighted edges strictly positive
const minRankWeight = 1e-6

// Options configure BuildSNN
type Options struct {
	K      int
	Scheme Scheme
	// Workers bounds the parallel neighbour search; defaults to GOMAXPROCS
	Workers int
	Logger  *internal.Logger
}

// ParseScheme validates a weight scheme name
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeRank, SchemeJaccard:
		return Scheme(s), nil
	default:
		return "", errors.InvalidConfiguration("unknown weight scheme %q", s)
	}
}

// NearestNeighbors returns, for every cell, the indices of its k closest
// cells by Euclidean distance, nearest first. Equal distances are broken by
// the lower index. k is clamped to N-1.
func NearestNeighbors(emb *matrix.Embedding, k, workers int) ([][]int, error) {
	if emb == nil || emb.NumCells() == 0 {
		return nil, errors.EmptyMatrix("embedding has no cells")
	}
	if k < 1 {
		return nil, errors.InvalidConfiguration("k must be at least 1, got %d", k)
	}
	n := emb.NumCells()
	k = min(k, n-1)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := emb.Rows()
	knn := make([][]int, n)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			knn[i] = nearest(rows, i, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return knn, nil
}

type candidate struct {
	idx  int
	dist float64
}

func nearest(rows [][]float64, i, k int) []int {
	cands := make([]candidate, 0, len(rows)-1)
	for j := range rows {
		if j != i {
			cands = append(cands, candidate{idx: j, dist: floats.Distance(rows[i], rows[j], 2)})
		}
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		return cands[a].idx < cands[b].idx
	})
	out := make([]int, k)
	for r := 0; r < k; r++ {
		out[r] = cands[r].idx
	}
	return out
}

// ranked is a neighbour with its rank; the cell itself has rank 0
type ranked struct {
	node int
	rank int
}

// BuildSNN connects two cells when either is among the other's k nearest
// neighbours and weights the edge by their shared neighbourhood.
//
// rank: k - r/2, where r is the smallest rank sum over shared neighbours,
// each cell counting as its own neighbour of rank 0.
// jaccard: |A ∩ B| / |A ∪ B| over the neighbour sets including the cells
// themselves.
func BuildSNN(emb *matrix.Embedding, opts Options) (*NeighborGraph, error) {
	switch opts.Scheme {
	case SchemeRank, SchemeJaccard:
	default:
		return nil, errors.InvalidConfiguration("unknown weight scheme %q", opts.Scheme)
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	start := time.Now()

	knn, err := NearestNeighbors(emb, opts.K, opts.Workers)
	if err != nil {
		return nil, err
	}
	n := len(knn)
	k := min(opts.K, n-1)

	// neighbourhoods sorted by node for merge intersection
	hoods := make([][]ranked, n)
	for i, list := range knn {
		h := make([]ranked, 0, len(list)+1)
		h = append(h, ranked{node: i, rank: 0})
		for r, j := range list {
			h = append(h, ranked{node: j, rank: r + 1})
		}
		sort.Slice(h, func(a, b int) bool { return h[a].node < h[b].node })
		hoods[i] = h
	}

	// undirected adjacency: union of both directions
	partners := make([][]int, n)
	for i, list := range knn {
		for _, j := range list {
			partners[i] = append(partners[i], j)
			partners[j] = append(partners[j], i)
		}
	}

	adj := make([][]Neighbor, n)
	for a := 0; a < n; a++ {
		p := uniqueSorted(partners[a])
		row := make([]Neighbor, 0, len(p))
		for _, b := range p {
			row = append(row, Neighbor{Node: b, Weight: weight(hoods[a], hoods[b], k, opts.Scheme)})
		}
		adj[a] = row
	}

	g := &NeighborGraph{cells: emb.Cells(), k: k, scheme: opts.Scheme, adj: adj}
	logger.Debug("snn graph: %d cells, k=%d, %s weights, %d edges, %s", n, k, opts.Scheme, g.NumEdges(), time.Since(start))
	return g, nil
}

// weight is symmetric in its neighbourhood arguments
func weight(a, b []ranked, k int, scheme Scheme) float64 {
	shared := 0
	best := math.MaxInt
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].node < b[j].node:
			i++
		case a[i].node > b[j].node:
			j++
		default:
			shared++
			best = min(best, a[i].rank+b[j].rank)
			i++
			j++
		}
	}
	if scheme == SchemeJaccard {
		union := len(a) + len(b) - shared
		return float64(shared) / float64(union)
	}
	if shared == 0 {
		return minRankWeight
	}
	return math.Max(float64(k)-float64(best)/2, minRankWeight)
}

func uniqueSorted(xs []int) []int {
	sort.Ints(xs)
	out := xs[:0]
	for _, x := range xs {
		if len(out) == 0 || out[len(out)-1] != x {
			out = append(out, x)
		}
	}
	return out
}
