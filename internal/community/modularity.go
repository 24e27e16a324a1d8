package community

import (
	"scqc/domain/cluster"
	"scqc/internal/errors"
	"scqc/internal/graph"
)

// Modularity returns the cluster × cluster ratio of observed to expected edge
// weight. Observed weight between two clusters is split evenly across the
// symmetric pair of entries; expected weight assumes edges fall at random in
// proportion to the clusters' degree sums. Entries with no expected weight are
// 0. Cells labelled cluster.Unassigned are ignored.
func Modularity(g *graph.NeighborGraph, labels *cluster.Labeling) (*cluster.ModularityMatrix, error) {
	if g == nil || labels == nil {
		return nil, errors.EmptyMatrix("modularity: missing graph or labeling")
	}
	if labels.Len() != g.NumNodes() {
		return nil, errors.InvalidConfiguration("labeling has %d cells, graph has %d nodes", labels.Len(), g.NumNodes())
	}

	ids := labels.Clusters()
	index := make(map[int]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	k := len(ids)
	observed := make([][]float64, k)
	for i := range observed {
		observed[i] = make([]float64, k)
	}
	degree := make([]float64, k)

	var total float64
	for _, e := range g.Edges() {
		la, lb := labels.At(e.A), labels.At(e.B)
		if la == cluster.Unassigned || lb == cluster.Unassigned {
			continue
		}
		a, b := index[la], index[lb]
		observed[a][b] += e.Weight
		degree[a] += e.Weight
		degree[b] += e.Weight
		total += e.Weight
	}

	values := make([][]float64, k)
	for i := range values {
		values[i] = make([]float64, k)
	}
	if total == 0 {
		return &cluster.ModularityMatrix{Method: labels.Method(), Clusters: ids, Values: values}, nil
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			obs := observed[i][j]
			if i != j {
				obs = (observed[i][j] + observed[j][i]) / 2
			}
			exp := degree[i] * degree[j] / (4 * total * total) * total
			var ratio float64
			if exp > 0 {
				ratio = obs / exp
			}
			values[i][j] = ratio
			values[j][i] = ratio
		}
	}
	return &cluster.ModularityMatrix{Method: labels.Method(), Clusters: ids, Values: values}, nil
}
