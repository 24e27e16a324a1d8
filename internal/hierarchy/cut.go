package hierarchy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"scqc/internal/errors"
)

const (
	DefaultMinClusterSize = 20
	DefaultDeepSplit      = 2
)

// core scatter limits for deepSplit 0..4, as fractions of the height range
var maxCoreScatter = [...]float64{0.64, 0.73, 0.82, 0.91, 0.95}

// CutOptions configure the dynamic hybrid cut
type CutOptions struct {
	MinClusterSize int `json:"min_cluster_size" yaml:"min_cluster_size"`
	// DeepSplit in [0, 4]; higher values split more readily. 0 is a valid
	// setting, so there is no implicit default.
	DeepSplit int `json:"deep_split" yaml:"deep_split"`
}

// Cut is the outcome of CutDynamic
type Cut struct {
	// Labels are 1..k by decreasing cluster size; 0 marks cells left unassigned
	Labels    []int
	CutHeight float64
	// Reassigned counts cells placed by the distance stage
	Reassigned int
}

type branch struct {
	members []int
	heights []float64
	// sealed branches already contain clusters and stop growing
	sealed bool
}

type thresholds struct {
	minSize    int
	maxScatter float64
	minGap     float64
	cutHeight  float64
}

// qualifies reports whether b is a cluster when it joins its sibling at h
func (t thresholds) qualifies(b *branch, h float64) bool {
	if b.sealed || len(b.members) < t.minSize {
		return false
	}
	scatter := coreScatter(b, t.minSize)
	return scatter <= t.maxScatter && h-scatter >= t.minGap
}

// coreScatter is the mean of the lowest merge heights joining the branch core
func coreScatter(b *branch, minSize int) float64 {
	size := len(b.members)
	base := minSize/2 + 1
	core := size
	if size > base {
		core = min(size, base+int(math.Floor(math.Sqrt(float64(size-base)))))
	}
	if core < 2 {
		return 0
	}
	var sum float64
	for _, h := range b.heights[:core-1] {
		sum += h
	}
	return sum / float64(core-1)
}

// CutDynamic cuts a dendrogram into branches that are large, tight and well
// separated from their siblings, then attaches leftover cells to the closest
// cluster, by mean distance, within the same branch below the cut height.
func CutDynamic(link *Linkage, dist [][]float64, opts CutOptions) (*Cut, error) {
	if link == nil || link.N == 0 {
		return nil, errors.EmptyMatrix("dynamic cut: empty dendrogram")
	}
	if len(dist) != link.N {
		return nil, errors.InvalidConfiguration("distance matrix has %d rows for %d leaves", len(dist), link.N)
	}
	if opts.MinClusterSize < 1 {
		return nil, errors.InvalidConfiguration("min_cluster_size must be positive, got %d", opts.MinClusterSize)
	}
	if opts.DeepSplit < 0 || opts.DeepSplit >= len(maxCoreScatter) {
		return nil, errors.InvalidConfiguration("deep_split must be in [0, 4], got %d", opts.DeepSplit)
	}

	t := newThresholds(link.Heights(), opts)
	n := link.N
	branches := make([]*branch, n+len(link.Merges))
	for i := 0; i < n; i++ {
		branches[i] = &branch{members: []int{i}}
	}

	var clusters [][]int
	settle := func(b *branch, h float64) {
		if !b.sealed && t.qualifies(b, h) {
			clusters = append(clusters, b.members)
		}
	}
	for i, m := range link.Merges {
		a, b := branches[m.A], branches[m.B]
		members := append(append(make([]int, 0, len(a.members)+len(b.members)), a.members...), b.members...)
		h := m.Height
		if h > t.cutHeight || a.sealed || b.sealed || (t.qualifies(a, h) && t.qualifies(b, h)) {
			settle(a, h)
			settle(b, h)
			branches[n+i] = &branch{members: members, sealed: true}
		} else {
			heights := append(append(make([]float64, 0, len(members)), a.heights...), b.heights...)
			heights = append(heights, h)
			sort.Float64s(heights)
			branches[n+i] = &branch{members: members, heights: heights}
		}
		branches[m.A], branches[m.B] = nil, nil
	}
	root := branches[len(branches)-1]
	if !root.sealed && len(root.members) >= t.minSize {
		clusters = append(clusters, root.members)
	}

	labels := make([]int, n)
	for c, members := range clusters {
		for _, i := range members {
			labels[i] = c + 1
		}
	}
	reassigned := reassign(labels, len(clusters), dist, groupsBelow(link, t.cutHeight), t.cutHeight)

	return &Cut{Labels: orderBySize(labels), CutHeight: t.cutHeight, Reassigned: reassigned}, nil
}

func newThresholds(heights []float64, opts CutOptions) thresholds {
	t := thresholds{minSize: opts.MinClusterSize}
	if len(heights) == 0 {
		return t
	}
	sorted := append([]float64(nil), heights...)
	sort.Float64s(sorted)
	ref := stat.Quantile(0.05, stat.LinInterp, sorted, nil)
	top := sorted[len(sorted)-1]
	t.cutHeight = 0.99*(top-ref) + ref
	frac := maxCoreScatter[opts.DeepSplit]
	t.maxScatter = ref + frac*(t.cutHeight-ref)
	t.minGap = (1 - frac) * 0.75 * (t.cutHeight - ref)
	return t
}

// groupsBelow returns, per leaf, the id of its subtree when the dendrogram is
// cut at height h
func groupsBelow(link *Linkage, h float64) []int {
	parent := make([]int, link.N+len(link.Merges))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i, m := range link.Merges {
		if m.Height > h {
			break
		}
		id := link.N + i
		parent[find(m.A)] = id
		parent[find(m.B)] = id
	}
	out := make([]int, link.N)
	for i := range out {
		out[i] = find(i)
	}
	return out
}

// reassign gives each unlabelled cell the cluster of least mean distance among
// clusters sharing its group, when that distance is within limit. Distances
// are taken to the clusters as they were before any reassignment.
func reassign(labels []int, k int, dist [][]float64, group []int, limit float64) int {
	if k == 0 {
		return 0
	}
	members := make([][]int, k+1)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	next := append([]int(nil), labels...)
	moved := 0
	for _, i := range members[0] {
		best, bestD := 0, math.Inf(1)
		for c := 1; c <= k; c++ {
			if len(members[c]) == 0 || group[members[c][0]] != group[i] {
				continue
			}
			var sum float64
			for _, j := range members[c] {
				sum += dist[i][j]
			}
			if d := sum / float64(len(members[c])); d < bestD {
				best, bestD = c, d
			}
		}
		if best > 0 && bestD <= limit {
			next[i] = best
			moved++
		}
	}
	copy(labels, next)
	return moved
}

// orderBySize renumbers clusters 1..k by decreasing size, ties by first
// member; 0 stays 0
func orderBySize(labels []int) []int {
	size := make(map[int]int)
	first := make(map[int]int)
	for i, l := range labels {
		if l == 0 {
			continue
		}
		if _, ok := size[l]; !ok {
			first[l] = i
		}
		size[l]++
	}
	ids := make([]int, 0, len(size))
	for l := range size {
		ids = append(ids, l)
	}
	sort.Slice(ids, func(a, b int) bool {
		if size[ids[a]] != size[ids[b]] {
			return size[ids[a]] > size[ids[b]]
		}
		return first[ids[a]] < first[ids[b]]
	})
	rename := make(map[int]int, len(ids))
	for i, l := range ids {
		rename[l] = i + 1
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = rename[l]
	}
	return out
}
