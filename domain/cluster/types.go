// Package cluster holds clustering results: per-method labelings, the
// cluster-pair modularity matrix and the canonical selection.
package cluster

import (
	"sort"

	"scqc/domain/core"
	"scqc/internal/errors"
)

// Method names a clustering strategy
type Method string

const (
	MethodWalktrap Method = "walktrap"
	MethodLouvain  Method = "louvain"
	MethodKMeans   Method = "kmeans"
	MethodHClust   Method = "hclust"
)

// Methods lists every supported method in reporting order
var Methods = []Method{MethodWalktrap, MethodLouvain, MethodKMeans, MethodHClust}

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.InvalidConfiguration("unknown clustering method %q", s)
}

// Unassigned is the label given to cells that a method left out of every cluster
const Unassigned = 0

// Labeling maps each cell to an integer cluster id.
// Clusters are numbered from 1; hclust may use Unassigned.
type Labeling struct {
	method Method
	cells  []string
	labels []int
}

// NewLabeling copies cells and labels into a labeling.
func NewLabeling(method Method, cells []string, labels []int) (*Labeling, error) {
	if len(cells) != len(labels) {
		return nil, errors.InvalidConfiguration("%s labeling has %d labels for %d cells", method, len(labels), len(cells))
	}
	for i, l := range labels {
		if l < 0 {
			return nil, errors.InvalidConfiguration("%s labeling: cell %d has negative label %d", method, i, l)
		}
	}
	return &Labeling{
		method: method,
		cells:  append([]string(nil), cells...),
		labels: append([]int(nil), labels...),
	}, nil
}

// Method returns the producing method
func (l *Labeling) Method() Method { return l.method }

// Len returns the number of cells
func (l *Labeling) Len() int { return len(l.labels) }

// Cells returns a copy of the cell ids
func (l *Labeling) Cells() []string { return append([]string(nil), l.cells...) }

// Labels returns a copy of the labels
func (l *Labeling) Labels() []int { return append([]int(nil), l.labels...) }

// At returns the label of cell i
func (l *Labeling) At(i int) int { return l.labels[i] }

// Clusters returns the distinct assigned cluster ids in ascending order
func (l *Labeling) Clusters() []int {
	seen := make(map[int]struct{})
	for _, v := range l.labels {
		if v != Unassigned {
			seen[v] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for v := range seen {
		ids = append(ids, v)
	}
	sort.Ints(ids)
	return ids
}

// NumClusters returns the number of distinct assigned clusters
func (l *Labeling) NumClusters() int { return len(l.Clusters()) }

// Sizes returns the number of cells per cluster id, Unassigned included when present
func (l *Labeling) Sizes() map[int]int {
	sizes := make(map[int]int)
	for _, v := range l.labels {
		sizes[v]++
	}
	return sizes
}

// Fingerprint hashes the method and labels
func (l *Labeling) Fingerprint() core.Hash {
	return core.HashInts(string(l.method), l.labels)
}

// ModularityMatrix is a symmetric clusters × clusters matrix of observed over
// expected edge weight. Clusters lists the id of each row/column.
type ModularityMatrix struct {
	Method   Method      `json:"method"`
	Clusters []int       `json:"clusters"`
	Values   [][]float64 `json:"values"`
}

// At returns the ratio for the cluster ids a and b, or 0 when either is absent
func (m *ModularityMatrix) At(a, b int) float64 {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return 0
	}
	return m.Values[i][j]
}

func (m *ModularityMatrix) index(id int) int {
	for i, c := range m.Clusters {
		if c == id {
			return i
		}
	}
	return -1
}

// Selection marks one labeling as canonical for downstream use.
// Unassigned counts the cells the labeling left out of every cluster; only
// hclust produces them.
type Selection struct {
	Method     Method
	Labeling   *Labeling
	Unassigned int
}
