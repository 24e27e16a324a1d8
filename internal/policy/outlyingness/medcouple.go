package outlyingness

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// Medcouple is the robust skewness measure of Brys, Hubert and Struyf: the
// median of the kernel h(xi, xj) over pairs xi <= median <= xj. It lies in
// [-1, 1] and is 0 for symmetric samples. The computation is quadratic, so
// callers pass a bounded sample.
func Medcouple(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	med := median(x)

	var lower, upper []float64
	ties := 0
	for _, v := range x {
		switch {
		case v < med:
			lower = append(lower, v)
		case v > med:
			upper = append(upper, v)
		default:
			ties++
		}
	}

	kernel := make([]float64, 0, (len(lower)+ties)*(len(upper)+ties))
	for _, xj := range upper {
		for _, xi := range lower {
			kernel = append(kernel, ((xj-med)-(med-xi))/(xj-xi))
		}
		for t := 0; t < ties; t++ {
			kernel = append(kernel, 1)
		}
	}
	for t := 0; t < ties; t++ {
		for range lower {
			kernel = append(kernel, -1)
		}
		// pairs of values equal to the median
		for u := 0; u < ties; u++ {
			switch {
			case t+u < ties-1:
				kernel = append(kernel, 1)
			case t+u > ties-1:
				kernel = append(kernel, -1)
			default:
				kernel = append(kernel, 0)
			}
		}
	}
	if len(kernel) == 0 {
		return 0
	}
	mc, err := stats.Median(kernel)
	if err != nil {
		return 0
	}
	return mc
}
