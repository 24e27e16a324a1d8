package hierarchy

import (
	"github.com/montanaflynn/stats"

	"scqc/internal/errors"
)

// Silhouette returns per-cell silhouette widths from a distance matrix and
// their mean. Cells labelled 0 or alone in their cluster score 0 and are left
// out of the mean. With fewer than two clusters every width is 0.
func Silhouette(dist [][]float64, labels []int) ([]float64, float64, error) {
	if len(dist) != len(labels) {
		return nil, 0, errors.InvalidConfiguration("silhouette: %d distance rows for %d labels", len(dist), len(labels))
	}
	members := make(map[int][]int)
	var ids []int
	for i, l := range labels {
		if l == 0 {
			continue
		}
		if _, ok := members[l]; !ok {
			ids = append(ids, l)
		}
		members[l] = append(members[l], i)
	}

	widths := make([]float64, len(labels))
	if len(ids) < 2 {
		return widths, 0, nil
	}
	var scored []float64
	for i, l := range labels {
		if l == 0 || len(members[l]) < 2 {
			continue
		}
		var a float64
		b := -1.0
		for _, c := range ids {
			var sum float64
			for _, j := range members[c] {
				sum += dist[i][j]
			}
			if c == l {
				a = sum / float64(len(members[c])-1)
				continue
			}
			if mean := sum / float64(len(members[c])); b < 0 || mean < b {
				b = mean
			}
		}
		if denom := max(a, b); denom > 0 {
			widths[i] = (b - a) / denom
		}
		scored = append(scored, widths[i])
	}
	if len(scored) == 0 {
		return widths, 0, nil
	}
	mean, err := stats.Mean(scored)
	if err != nil {
		return nil, 0, errors.Wrap(err, "mean silhouette")
	}
	return widths, mean, nil
}
