// Package outlyingness computes the skew-adjusted outlyingness of points in a
// small feature space by projection pursuit over random directions.
//
// Each direction is the normal of the hyperplane through p randomly chosen
// points. Points are projected on it and their distance from the projected
// median is scaled by the medcouple-adjusted boxplot whisker on their side.
// A point's score is its largest scaled distance over all directions.
package outlyingness

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"scqc/internal/errors"
	"scqc/internal/rng"
)

const (
	// DirectionsPerDim is the default number of directions per feature
	DirectionsPerDim = 250
	// DefaultMedcoupleSample caps the points used to estimate the medcouple
	DefaultMedcoupleSample = 256
	// directions processed by one task
	blockSize = 32
	stage     = "outlyingness"
)

// Options control the direction search
type Options struct {
	Seed int64
	// Directions defaults to DirectionsPerDim × dims
	Directions int
	// MedcoupleSample defaults to DefaultMedcoupleSample
	MedcoupleSample int
	// Workers defaults to GOMAXPROCS; it never changes the result
	Workers int
}

// Score returns one non-negative outlyingness per row of x.
// Rows must be finite. Columns with no spread are ignored; if every column is
// constant all scores are 0.
func Score(x *mat.Dense, opts Options) ([]float64, error) {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return nil, errors.EmptyMatrix("outlyingness needs at least one point and one feature")
	}
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.InvalidConfiguration("row %d has non-finite feature %d", i, j)
			}
		}
	}

	data := dropConstantColumns(x)
	if data == nil {
		return make([]float64, n), nil
	}
	_, p = data.Dims()
	if n <= p {
		return make([]float64, n), nil
	}

	if opts.Directions <= 0 {
		opts.Directions = DirectionsPerDim * p
	}
	if opts.MedcoupleSample <= 0 {
		opts.MedcoupleSample = DefaultMedcoupleSample
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	src := rng.New(opts.Seed)
	nBlocks := (opts.Directions + blockSize - 1) / blockSize
	blockMax := make([][]float64, nBlocks)

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(opts.Workers)
	for b := 0; b < nBlocks; b++ {
		b := b
		g.Go(func() error {
			best := make([]float64, n)
			proj := make([]float64, n)
			end := min((b+1)*blockSize, opts.Directions)
			for d := b * blockSize; d < end; d++ {
				r := src.Stream(stage, d)
				dir := direction(data, r.Perm(n)[:p])
				if dir == nil {
					continue
				}
				mat.NewVecDense(n, proj).MulVec(data, mat.NewVecDense(p, dir))
				sample := r.Perm(n)
				if len(sample) > opts.MedcoupleSample {
					sample = sample[:opts.MedcoupleSample]
				}
				scoreDirection(proj, sample, best)
			}
			blockMax[b] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make([]float64, n)
	for _, best := range blockMax {
		for i, v := range best {
			if v > scores[i] {
				scores[i] = v
			}
		}
	}
	return scores, nil
}

// direction returns the unit normal of the hyperplane through the given rows,
// or nil when the rows are degenerate
func direction(x *mat.Dense, rows []int) []float64 {
	_, p := x.Dims()
	if p == 1 {
		return []float64{1}
	}
	diff := mat.NewDense(p-1, p, nil)
	for k := 1; k < p; k++ {
		for j := 0; j < p; j++ {
			diff.Set(k-1, j, x.At(rows[k], j)-x.At(rows[0], j))
		}
	}
	var svd mat.SVD
	if !svd.Factorize(diff, mat.SVDFullV) {
		return nil
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	return mat.Col(nil, p-1, &v)
}

// scoreDirection updates best with the adjusted outlyingness of every point
// along one projection
func scoreDirection(proj []float64, sample []int, best []float64) {
	sorted := append([]float64(nil), proj...)
	sort.Float64s(sorted)
	med := median(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	if iqr <= 0 {
		return
	}

	sub := make([]float64, len(sample))
	for i, idx := range sample {
		sub[i] = proj[idx]
	}
	mc := Medcouple(sub)

	var lowFence, highFence float64
	if mc >= 0 {
		lowFence = q1 - 1.5*math.Exp(-4*mc)*iqr
		highFence = q3 + 1.5*math.Exp(3*mc)*iqr
	} else {
		lowFence = q1 - 1.5*math.Exp(-3*mc)*iqr
		highFence = q3 + 1.5*math.Exp(4*mc)*iqr
	}

	// whiskers are the most extreme observations inside the fences
	lowWhisker, highWhisker := med, med
	for _, v := range sorted {
		if v >= lowFence {
			lowWhisker = v
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= highFence {
			highWhisker = sorted[i]
			break
		}
	}
	lowScale := positive(med-lowWhisker, med-q1, iqr)
	highScale := positive(highWhisker-med, q3-med, iqr)

	for i, v := range proj {
		var ao float64
		if v > med {
			ao = (v - med) / highScale
		} else {
			ao = (med - v) / lowScale
		}
		if ao > best[i] {
			best[i] = ao
		}
	}
}

func positive(candidates ...float64) float64 {
	for _, c := range candidates {
		if c > 0 {
			return c
		}
	}
	return 1
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// dropConstantColumns returns x without zero-variance columns, or nil when
// none remain
func dropConstantColumns(x *mat.Dense) *mat.Dense {
	n, p := x.Dims()
	var keep []int
	for j := 0; j < p; j++ {
		first := x.At(0, j)
		for i := 1; i < n; i++ {
			if x.At(i, j) != first {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == 0 {
		return nil
	}
	if len(keep) == p {
		return x
	}
	out := mat.NewDense(n, len(keep), nil)
	for k, j := range keep {
		out.SetCol(k, mat.Col(nil, j, x))
	}
	return out
}
