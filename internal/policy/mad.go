package policy

import (
	"math"

	"github.com/montanaflynn/stats"

	"scqc/internal/errors"
	"scqc/internal/metrics"
)

// Direction selects which side of the median counts as outlying
type Direction string

const (
	Lower  Direction = "lower"
	Higher Direction = "higher"
	Both   Direction = "both"
)

// Threshold is the pair of cutoffs derived from the median and MAD of a metric.
// A value is outlying when it is strictly beyond a cutoff on an active side.
type Threshold struct {
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"`
	Lower  float64 `json:"lower"`
	Higher float64 `json:"higher"`
}

// ComputeThreshold derives cutoffs from the finite entries of values.
// MAD is scaled by metrics.MADScale. Without finite values both cutoffs are
// infinite, so only non-finite entries can be flagged.
func ComputeThreshold(values []float64, nmads float64) (Threshold, error) {
	if nmads < 0 || math.IsNaN(nmads) {
		return Threshold{}, errors.InvalidConfiguration("mad multiplier must be non-negative, got %v", nmads)
	}
	finite := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return Threshold{Median: math.NaN(), MAD: math.NaN(), Lower: math.Inf(-1), Higher: math.Inf(1)}, nil
	}
	med, err := stats.Median(finite)
	if err != nil {
		return Threshold{}, errors.Wrap(err, "median")
	}
	mad, err := stats.MedianAbsoluteDeviation(finite)
	if err != nil {
		return Threshold{}, errors.Wrap(err, "mad")
	}
	mad *= metrics.MADScale
	return Threshold{
		Median: med,
		MAD:    mad,
		Lower:  med - nmads*mad,
		Higher: med + nmads*mad,
	}, nil
}

// Flags reports whether v is outlying in direction dir
func (t Threshold) Flags(v float64, dir Direction) bool {
	if math.IsNaN(v) {
		return false
	}
	lo := dir == Lower || dir == Both
	hi := dir == Higher || dir == Both
	return (lo && v < t.Lower) || (hi && v > t.Higher)
}

// IsOutlier flags the values lying more than nmads scaled MADs from the median
// on the requested side. When batches is non-nil, median and MAD are computed
// within each batch separately. Infinite values count as outlying on their
// own side; NaN is never flagged.
func IsOutlier(values []float64, nmads float64, dir Direction, batches []string) ([]bool, error) {
	switch dir {
	case Lower, Higher, Both:
	default:
		return nil, errors.InvalidConfiguration("unknown outlier direction %q", dir)
	}
	if batches != nil && len(batches) != len(values) {
		return nil, errors.InvalidConfiguration("got %d batch labels for %d values", len(batches), len(values))
	}

	flags := make([]bool, len(values))
	for _, group := range groupByBatch(len(values), batches) {
		sub := make([]float64, len(group))
		for i, idx := range group {
			sub[i] = values[idx]
		}
		t, err := ComputeThreshold(sub, nmads)
		if err != nil {
			return nil, err
		}
		for i, idx := range group {
			flags[idx] = t.Flags(sub[i], dir)
		}
	}
	return flags, nil
}

// groupByBatch returns the index groups in first-appearance order
func groupByBatch(n int, batches []string) [][]int {
	if batches == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}
	pos := make(map[string]int)
	var groups [][]int
	for i, b := range batches {
		g, ok := pos[b]
		if !ok {
			g = len(groups)
			pos[b] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
