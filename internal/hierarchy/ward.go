package hierarchy

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"scqc/domain/matrix"
	"scqc/internal/errors"
)

// Merge joins clusters A < B at Height. Leaves are 0..N-1 and merge i creates
// cluster N+i.
type Merge struct {
	A, B   int
	Height float64
	Size   int
}

// Linkage is a dendrogram with merges in non-decreasing height order
type Linkage struct {
	N      int
	Merges []Merge
}

// Heights returns the merge heights in order
func (l *Linkage) Heights() []float64 {
	out := make([]float64, len(l.Merges))
	for i, m := range l.Merges {
		out[i] = m.Height
	}
	return out
}

// Distances returns the full Euclidean distance matrix of the embedding rows,
// computing rows in parallel
func Distances(emb *matrix.Embedding, workers int) ([][]float64, error) {
	if emb == nil || emb.NumCells() == 0 {
		return nil, errors.EmptyMatrix("distances: empty embedding")
	}
	if workers <= 0 {
		workers = 1
	}
	x := emb.Rows()
	n := len(x)
	d := make([][]float64, n)
	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			row := make([]float64, n)
			for j := range x {
				if j != i {
					row[j] = floats.Distance(x[i], x[j], 2)
				}
			}
			d[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// WardLinkage builds the ward.D2 dendrogram of a Euclidean distance matrix
// with the nearest-neighbour chain algorithm. Ties go to the previous chain
// element, then to the lowest index.
func WardLinkage(dist [][]float64) (*Linkage, error) {
	n := len(dist)
	if n == 0 {
		return nil, errors.EmptyMatrix("ward linkage: no observations")
	}
	d2 := make([][]float64, n)
	for i, row := range dist {
		if len(row) != n {
			return nil, errors.InvalidConfiguration("distance row %d has %d entries, want %d", i, len(row), n)
		}
		d2[i] = make([]float64, n)
		for j, v := range row {
			d2[i][j] = v * v
		}
	}

	active := make([]bool, n)
	size := make([]int, n)
	id := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
		id[i] = i
	}

	raw := make([]Merge, 0, n-1)
	chain := make([]int, 0, n)
	for remaining := n; remaining > 1; remaining-- {
		if len(chain) == 0 {
			for i, ok := range active {
				if ok {
					chain = append(chain, i)
					break
				}
			}
		}
		var x, y int
		for {
			x = chain[len(chain)-1]
			prev, best, bestD := -1, -1, math.Inf(1)
			if len(chain) > 1 {
				prev = chain[len(chain)-2]
				best, bestD = prev, d2[x][prev]
			}
			for j, ok := range active {
				if ok && j != x && d2[x][j] < bestD {
					best, bestD = j, d2[x][j]
				}
			}
			if best == prev {
				y = prev
				break
			}
			chain = append(chain, best)
		}
		chain = chain[:len(chain)-2]

		s, t := min(x, y), max(x, y)
		a, b := min(id[s], id[t]), max(id[s], id[t])
		raw = append(raw, Merge{A: a, B: b, Height: math.Sqrt(d2[s][t]), Size: size[s] + size[t]})

		ns, nt := float64(size[s]), float64(size[t])
		for k, ok := range active {
			if !ok || k == s || k == t {
				continue
			}
			nk := float64(size[k])
			v := ((ns+nk)*d2[s][k] + (nt+nk)*d2[t][k] - nk*d2[s][t]) / (ns + nt + nk)
			d2[s][k], d2[k][s] = v, v
		}
		active[t] = false
		size[s] += size[t]
		id[s] = n + len(raw) - 1
	}

	return sortMerges(n, raw), nil
}

// sortMerges orders merges by height and renumbers the clusters they create
func sortMerges(n int, raw []Merge) *Linkage {
	order := make([]int, len(raw))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]].Height < raw[order[b]].Height })

	rename := make([]int, len(raw))
	for pos, r := range order {
		rename[r] = n + pos
	}
	renamed := func(c int) int {
		if c < n {
			return c
		}
		return rename[c-n]
	}
	merges := make([]Merge, len(raw))
	for pos, r := range order {
		m := raw[r]
		a, b := renamed(m.A), renamed(m.B)
		merges[pos] = Merge{A: min(a, b), B: max(a, b), Height: m.Height, Size: m.Size}
	}
	return &Linkage{N: n, Merges: merges}
}
