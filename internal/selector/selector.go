// Package selector marks one clustering result as the canonical labeling.
package selector

import (
	"scqc/domain/cluster"
	"scqc/internal/errors"
)

// DefaultMethod is used when no method is configured
const DefaultMethod = cluster.MethodLouvain

// Select returns the labeling produced by method. The method must be known,
// present in labelings and cover exactly nCells cells. A labeling with no
// assigned cell is rejected; otherwise cells left Unassigned are counted on
// the selection.
func Select(labelings map[cluster.Method]*cluster.Labeling, method cluster.Method, nCells int) (*cluster.Selection, error) {
	if method == "" {
		method = DefaultMethod
	}
	m, err := cluster.ParseMethod(string(method))
	if err != nil {
		return nil, err
	}
	l, ok := labelings[m]
	if !ok || l == nil {
		return nil, errors.InvalidConfiguration("no %s labeling to select", m)
	}
	if l.Len() != nCells {
		return nil, errors.InvalidConfiguration("%s labeling covers %d cells, want %d", m, l.Len(), nCells)
	}
	if l.NumClusters() == 0 {
		return nil, errors.EmptyResult("%s labeling assigns none of its %d cells", m, l.Len())
	}
	return &cluster.Selection{Method: m, Labeling: l, Unassigned: l.Sizes()[cluster.Unassigned]}, nil
}
