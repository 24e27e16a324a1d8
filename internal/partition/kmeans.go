// Package partition clusters embeddings with k-means and chooses the number
// of clusters by the gap statistic.
package partition

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"scqc/domain/matrix"
	"scqc/internal/errors"
	"scqc/internal/rng"
)

const (
	DefaultNStart  = 10
	DefaultMaxIter = 100
)

// KMeansResult is the best of several Lloyd runs
type KMeansResult struct {
	// Assign holds each point's center index in [0, K)
	Assign     []int
	Centers    [][]float64
	WithinSS   float64
	Iterations int
	Converged  bool
}

// Labels numbers clusters from 1 in order of first appearance
func (r *KMeansResult) Labels() []int {
	return relabel(r.Assign)
}

// KMeans runs k-means on the embedding rows with seeded k-means++ starts
func KMeans(emb *matrix.Embedding, k int, opts Options) (*KMeansResult, error) {
	if emb == nil || emb.NumCells() == 0 {
		return nil, errors.EmptyMatrix("kmeans: empty embedding")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if k < 1 || k > emb.NumCells() {
		return nil, errors.InvalidConfiguration("kmeans: k=%d outside [1, %d]", k, emb.NumCells())
	}
	r := rng.New(*opts.Seed).Stream("kmeans", k)
	return lloyd(emb.Rows(), k, r, opts.NStart, opts.MaxIter), nil
}

// lloyd keeps the lowest within-cluster sum of squares over nstart runs
func lloyd(x [][]float64, k int, r *rand.Rand, nstart, maxIter int) *KMeansResult {
	var best *KMeansResult
	for s := 0; s < nstart; s++ {
		res := lloydOnce(x, seedCenters(x, k, r), maxIter)
		if best == nil || res.WithinSS < best.WithinSS {
			best = res
		}
	}
	return best
}

// seedCenters is k-means++: the first center uniformly, the rest with
// probability proportional to squared distance from the nearest chosen center
func seedCenters(x [][]float64, k int, r *rand.Rand) [][]float64 {
	n := len(x)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), x[r.IntN(n)]...))
	d2 := make([]float64, n)
	for i := range x {
		d2[i] = sqDist(x[i], centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(d2)
		pick := r.IntN(n)
		if total > 0 {
			u := r.Float64() * total
			var acc float64
			for i, v := range d2 {
				acc += v
				if acc >= u && v > 0 {
					pick = i
					break
				}
			}
		}
		c := append([]float64(nil), x[pick]...)
		centers = append(centers, c)
		for i := range x {
			d2[i] = math.Min(d2[i], sqDist(x[i], c))
		}
	}
	return centers
}

func lloydOnce(x [][]float64, centers [][]float64, maxIter int) *KMeansResult {
	n, k := len(x), len(centers)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	sizes := make([]int, k)

	res := &KMeansResult{Centers: centers}
	reseeded := false
	for it := 1; it <= maxIter; it++ {
		res.Iterations = it
		changed := reseeded
		reseeded = false
		for i, p := range x {
			c := nearest(p, centers)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			res.Converged = true
			break
		}

		for c := range centers {
			for d := range centers[c] {
				centers[c][d] = 0
			}
			sizes[c] = 0
		}
		for i, p := range x {
			floats.Add(centers[assign[i]], p)
			sizes[assign[i]]++
		}
		for c := range centers {
			if sizes[c] > 0 {
				floats.Scale(1/float64(sizes[c]), centers[c])
			}
		}
		// an emptied center moves onto the point worst served by its own
		for c := range centers {
			if sizes[c] > 0 {
				continue
			}
			far, farD := -1, -1.0
			for i, p := range x {
				if sizes[assign[i]] <= 1 {
					continue
				}
				if d := sqDist(p, centers[assign[i]]); d > farD {
					far, farD = i, d
				}
			}
			if far < 0 {
				continue
			}
			sizes[assign[far]]--
			copy(centers[c], x[far])
			assign[far] = c
			sizes[c] = 1
			reseeded = true
		}
	}

	res.Assign = assign
	for i, p := range x {
		res.WithinSS += sqDist(p, centers[assign[i]])
	}
	return res
}

// nearest returns the closest center, lowest index on ties
func nearest(p []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDist(p, center); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func relabel(assign []int) []int {
	seen := make(map[int]int)
	out := make([]int, len(assign))
	for i, a := range assign {
		l, ok := seen[a]
		if !ok {
			l = len(seen) + 1
			seen[a] = l
		}
		out[i] = l
	}
	return out
}
