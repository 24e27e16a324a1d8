package community

import (
	"container/heap"
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"scqc/domain/cluster"
	"scqc/internal"
	"scqc/internal/errors"
	"scqc/internal/graph"
)

// DefaultSteps is the random walk length used by Walktrap
const DefaultSteps = 4

// WalktrapOptions configure Walktrap
type WalktrapOptions struct {
	// Steps is the random walk length, DefaultSteps when zero
	Steps int
	// Workers bounds the goroutines computing the initial walk vectors
	Workers int
	Logger  *internal.Logger
}

// Merge is one agglomeration step of the walktrap dendrogram. Communities
// 0..n-1 are the nodes; merge i creates community n+i.
type Merge struct {
	A, B     int
	Distance float64
	// Modularity of the partition after this merge
	Modularity float64
}

// Dendrogram records the full walktrap agglomeration
type Dendrogram struct {
	NumNodes int
	Merges   []Merge
	// InitialModularity is the modularity of the all-singleton partition
	InitialModularity float64
}

// Best returns the number of merges that maximises modularity; ties keep the
// earlier cut
func (d *Dendrogram) Best() int {
	best, q := 0, d.InitialModularity
	for i, m := range d.Merges {
		if m.Modularity > q {
			best, q = i+1, m.Modularity
		}
	}
	return best
}

// Cut replays the first steps merges and numbers communities from 1 in order
// of first appearance
func (d *Dendrogram) Cut(steps int) []int {
	parent := make([]int, d.NumNodes+len(d.Merges))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < steps && i < len(d.Merges); i++ {
		m := d.Merges[i]
		id := d.NumNodes + i
		parent[find(m.A)] = id
		parent[find(m.B)] = id
	}

	labels := make([]int, d.NumNodes)
	seen := make(map[int]int)
	for v := range labels {
		root := find(v)
		l, ok := seen[root]
		if !ok {
			l = len(seen) + 1
			seen[root] = l
		}
		labels[v] = l
	}
	return labels
}

// Walktrap clusters g by agglomerating communities whose short random walks
// look alike (Pons & Latapy), cutting the dendrogram at maximum modularity.
// The result is deterministic.
func Walktrap(g *graph.NeighborGraph, opts WalktrapOptions) (*cluster.Labeling, error) {
	start := time.Now()
	d, err := BuildDendrogram(g, opts)
	if err != nil {
		return nil, err
	}
	steps := d.Best()
	labels := d.Cut(steps)

	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	q := d.InitialModularity
	if steps > 0 {
		q = d.Merges[steps-1].Modularity
	}
	logger.Debug("walktrap: cut after %d of %d merges, Q=%.4f, %s", steps, len(d.Merges), q, time.Since(start))
	return cluster.NewLabeling(cluster.MethodWalktrap, g.Cells(), labels)
}

// sparse is a probability vector sorted by node index
type sparse []entry

type entry struct {
	node int
	p    float64
}

type wtCommunity struct {
	alive bool
	size  int
	probs sparse
	// internal and total are modularity bookkeeping on the original graph
	internal float64
	total    float64
	// links holds the edge weight to each adjacent community
	links map[int]float64
}

type walker struct {
	n       int
	adj     [][]graph.Neighbor // with self loops
	degree  []float64          // including loops
	comms   []*wtCommunity
	twoM    float64
	q       float64
	pending pairHeap
}

// BuildDendrogram performs every walktrap merge on g
func BuildDendrogram(g *graph.NeighborGraph, opts WalktrapOptions) (*Dendrogram, error) {
	if g == nil || g.NumNodes() == 0 {
		return nil, errors.EmptyMatrix("walktrap: empty graph")
	}
	if opts.Steps < 0 {
		return nil, errors.InvalidConfiguration("walktrap steps must be positive, got %d", opts.Steps)
	}
	if opts.Steps == 0 {
		opts.Steps = DefaultSteps
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	w, err := newWalker(g, opts)
	if err != nil {
		return nil, err
	}
	d := &Dendrogram{NumNodes: w.n, InitialModularity: w.q}
	for w.pending.Len() > 0 {
		c := heap.Pop(&w.pending).(pair)
		if !w.comms[c.a].alive || !w.comms[c.b].alive {
			continue
		}
		w.merge(c.a, c.b)
		d.Merges = append(d.Merges, Merge{A: c.a, B: c.b, Distance: c.delta, Modularity: w.q})
	}
	return d, nil
}

func newWalker(g *graph.NeighborGraph, opts WalktrapOptions) (*walker, error) {
	n := g.NumNodes()
	w := &walker{
		n:      n,
		adj:    make([][]graph.Neighbor, n),
		degree: make([]float64, n),
		comms:  make([]*wtCommunity, n, 2*n),
		twoM:   2 * g.TotalWeight(),
	}

	for i := 0; i < n; i++ {
		nbrs := g.Neighbors(i)
		var sum float64
		for _, nb := range nbrs {
			sum += nb.Weight
		}
		loop := 1.0
		if len(nbrs) > 0 {
			loop = sum / float64(len(nbrs))
		}
		adj := make([]graph.Neighbor, 0, len(nbrs)+1)
		adj = append(adj, graph.Neighbor{Node: i, Weight: loop})
		adj = append(adj, nbrs...)
		sort.Slice(adj, func(a, b int) bool { return adj[a].Node < adj[b].Node })
		w.adj[i] = adj
		w.degree[i] = sum + loop
	}

	probs := make([]sparse, n)
	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(opts.Workers)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			scratch := make([]float64, n)
			v := sparse{{node: i, p: 1}}
			for s := 0; s < opts.Steps; s++ {
				v = w.step(v, scratch)
			}
			probs[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		c := &wtCommunity{alive: true, size: 1, probs: probs[i], links: make(map[int]float64)}
		for _, nb := range g.Neighbors(i) {
			c.links[nb.Node] = nb.Weight
			c.total += nb.Weight
		}
		w.comms[i] = c
		if w.twoM > 0 {
			frac := c.total / w.twoM
			w.q -= frac * frac
		}
	}
	for i := 0; i < n; i++ {
		for _, nb := range g.Neighbors(i) {
			if nb.Node > i {
				w.pending = append(w.pending, pair{a: i, b: nb.Node, delta: w.delta(i, nb.Node)})
			}
		}
	}
	heap.Init(&w.pending)
	return w, nil
}

// step advances a walk one transition; scratch must be zero and is left zero
func (w *walker) step(v sparse, scratch []float64) sparse {
	touched := make([]int, 0, len(v)*4)
	for _, e := range v {
		d := w.degree[e.node]
		for _, nb := range w.adj[e.node] {
			if scratch[nb.Node] == 0 {
				touched = append(touched, nb.Node)
			}
			scratch[nb.Node] += e.p * nb.Weight / d
		}
	}
	sort.Ints(touched)
	out := make(sparse, 0, len(touched))
	for _, j := range touched {
		out = append(out, entry{node: j, p: scratch[j]})
		scratch[j] = 0
	}
	return out
}

// delta is the increase in mean squared walk distance caused by merging a and b
func (w *walker) delta(a, b int) float64 {
	ca, cb := w.comms[a], w.comms[b]
	var dist float64
	i, j := 0, 0
	for i < len(ca.probs) || j < len(cb.probs) {
		switch {
		case j >= len(cb.probs) || (i < len(ca.probs) && ca.probs[i].node < cb.probs[j].node):
			e := ca.probs[i]
			dist += e.p * e.p / w.degree[e.node]
			i++
		case i >= len(ca.probs) || cb.probs[j].node < ca.probs[i].node:
			e := cb.probs[j]
			dist += e.p * e.p / w.degree[e.node]
			j++
		default:
			diff := ca.probs[i].p - cb.probs[j].p
			dist += diff * diff / w.degree[ca.probs[i].node]
			i++
			j++
		}
	}
	sa, sb := float64(ca.size), float64(cb.size)
	return sa * sb / (sa + sb) * dist / float64(w.n)
}

func (w *walker) merge(a, b int) {
	ca, cb := w.comms[a], w.comms[b]
	id := len(w.comms)
	between := ca.links[b]
	c := &wtCommunity{
		alive:    true,
		size:     ca.size + cb.size,
		probs:    combine(ca.probs, float64(ca.size), cb.probs, float64(cb.size)),
		internal: ca.internal + cb.internal + 2*between,
		total:    ca.total + cb.total,
		links:    make(map[int]float64, len(ca.links)+len(cb.links)),
	}
	if w.twoM > 0 {
		fa, fb, f := ca.total/w.twoM, cb.total/w.twoM, c.total/w.twoM
		w.q += 2*between/w.twoM - f*f + fa*fa + fb*fb
	}
	ca.alive, cb.alive = false, false
	ca.probs, cb.probs = nil, nil
	w.comms = append(w.comms, c)

	for _, old := range []*wtCommunity{ca, cb} {
		for other, wt := range old.links {
			if other == a || other == b {
				continue
			}
			c.links[other] += wt
		}
	}
	others := make([]int, 0, len(c.links))
	for other := range c.links {
		others = append(others, other)
	}
	sort.Ints(others)
	for _, other := range others {
		oc := w.comms[other]
		delete(oc.links, a)
		delete(oc.links, b)
		oc.links[id] = c.links[other]
		heap.Push(&w.pending, pair{a: other, b: id, delta: w.delta(other, id)})
	}
}

// combine returns the size-weighted mean of two walk vectors
func combine(a sparse, wa float64, b sparse, wb float64) sparse {
	total := wa + wb
	out := make(sparse, 0, max(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].node < b[j].node):
			out = append(out, entry{node: a[i].node, p: a[i].p * wa / total})
			i++
		case i >= len(a) || b[j].node < a[i].node:
			out = append(out, entry{node: b[j].node, p: b[j].p * wb / total})
			j++
		default:
			out = append(out, entry{node: a[i].node, p: (a[i].p*wa + b[j].p*wb) / total})
			i++
			j++
		}
	}
	return out
}

type pair struct {
	a, b  int
	delta float64
}

type pairHeap []pair

func (h pairHeap) Len() int { return len(h) }
func (h pairHeap) Less(i, j int) bool {
	if h[i].delta != h[j].delta {
		return h[i].delta < h[j].delta
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h pairHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x any)   { *h = append(*h, x.(pair)) }
func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
