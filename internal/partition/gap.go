package partition

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"scqc/domain/cluster"
	"scqc/domain/matrix"
	"scqc/internal"
	"scqc/internal/errors"
	"scqc/internal/rng"
)

const (
	DefaultKMax       = 50
	DefaultReferences = 20
)

// Options configure k-means and the gap statistic search
type Options struct {
	KMax       int              `json:"k_max" yaml:"k_max"`
	References int              `json:"references" yaml:"references"`
	NStart     int              `json:"n_start" yaml:"n_start"`
	MaxIter    int              `json:"max_iter" yaml:"max_iter"`
	Seed       *int64           `json:"seed" yaml:"seed"`
	Workers    int              `json:"-" yaml:"-"`
	Logger     *internal.Logger `json:"-" yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.KMax == 0 {
		o.KMax = DefaultKMax
	}
	if o.References == 0 {
		o.References = DefaultReferences
	}
	if o.NStart == 0 {
		o.NStart = DefaultNStart
	}
	if o.MaxIter == 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = internal.DefaultLogger
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.KMax < 1:
		return errors.InvalidConfiguration("k_max must be at least 1, got %d", o.KMax)
	case o.References < 2:
		return errors.InvalidConfiguration("gap statistic needs at least 2 reference sets, got %d", o.References)
	case o.NStart < 1 || o.MaxIter < 1:
		return errors.InvalidConfiguration("n_start and max_iter must be positive")
	case o.Seed == nil:
		return errors.InvalidConfiguration("kmeans requires a seed")
	}
	return nil
}

// GapResult holds the gap curve for k = 1..KMax; index i is k = i+1
type GapResult struct {
	K       int       `json:"k"`
	LogW    []float64 `json:"log_w"`
	ExpLogW []float64 `json:"exp_log_w"`
	Gap     []float64 `json:"gap"`
	SE      []float64 `json:"se"`
}

// GapStatistic compares log within-cluster dispersion of the embedding with
// that of uniform reference sets drawn over its bounding box, and picks the
// smallest k with gap(k) >= gap(k+1) - SE(k+1). KMax is clamped to the number
// of cells.
func GapStatistic(emb *matrix.Embedding, opts Options) (*GapResult, error) {
	if emb == nil || emb.NumCells() == 0 {
		return nil, errors.EmptyMatrix("gap statistic: empty embedding")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	x := emb.Rows()
	kmax := min(opts.KMax, len(x))
	src := rng.New(*opts.Seed)
	refs := references(x, opts.References, src)

	// logW[b][k-1] with b = 0 the data and b > 0 the references
	logW := make([][]float64, len(refs)+1)
	for b := range logW {
		logW[b] = make([]float64, kmax)
	}
	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(opts.Workers)
	for b := 0; b <= len(refs); b++ {
		data := x
		if b > 0 {
			data = refs[b-1]
		}
		for k := 1; k <= kmax; k++ {
			b, k, data := b, k, data
			eg.Go(func() error {
				r := src.Stream(fmt.Sprintf("gap/%d", b), k)
				res := lloyd(data, k, r, opts.NStart, opts.MaxIter)
				logW[b][k-1] = logDispersion(res.WithinSS)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &GapResult{
		LogW:    logW[0],
		ExpLogW: make([]float64, kmax),
		Gap:     make([]float64, kmax),
		SE:      make([]float64, kmax),
	}
	sim := make([]float64, len(refs))
	for k := 0; k < kmax; k++ {
		for b := range refs {
			sim[b] = logW[b+1][k]
		}
		mean, _ := stats.Mean(sim)
		sd, err := stats.StandardDeviationSample(sim)
		if err != nil {
			return nil, errors.Wrap(err, "gap statistic standard error")
		}
		out.ExpLogW[k] = mean
		out.Gap[k] = mean - out.LogW[k]
		out.SE[k] = sd * math.Sqrt(1+1/float64(len(refs)))
	}
	out.K = chooseK(out.Gap, out.SE)

	opts.Logger.Debug("gap statistic: k=%d of %d candidates, %d references, %s", out.K, kmax, len(refs), time.Since(start))
	return out, nil
}

// logDispersion keeps perfect fits (k = n) finite
func logDispersion(w float64) float64 {
	return math.Log(math.Max(w, math.SmallestNonzeroFloat64))
}

// chooseK applies the one standard error rule; gap and se are indexed by k-1
func chooseK(gap, se []float64) int {
	for k := 1; k < len(gap); k++ {
		if gap[k-1] >= gap[k]-se[k] {
			return k
		}
	}
	return len(gap)
}

// references draws sets uniformly over the per-dimension range of x
func references(x [][]float64, b int, src *rng.Source) [][][]float64 {
	dims := len(x[0])
	lo := append([]float64(nil), x[0]...)
	hi := append([]float64(nil), x[0]...)
	for _, row := range x[1:] {
		for d, v := range row {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}
	out := make([][][]float64, b)
	for i := range out {
		r := src.Stream("gap/reference", i)
		set := make([][]float64, len(x))
		for j := range set {
			row := make([]float64, dims)
			for d := range row {
				row[d] = lo[d] + r.Float64()*(hi[d]-lo[d])
			}
			set[j] = row
		}
		out[i] = set
	}
	return out
}

// Cluster selects k by the gap statistic and re-runs k-means at that k.
// The final run must converge.
func Cluster(emb *matrix.Embedding, opts Options) (*cluster.Labeling, *GapResult, error) {
	opts = opts.withDefaults()
	gap, err := GapStatistic(emb, opts)
	if err != nil {
		return nil, nil, err
	}
	res, err := KMeans(emb, gap.K, opts)
	if err != nil {
		return nil, nil, err
	}
	if !res.Converged {
		return nil, nil, errors.NonConvergence("kmeans did not converge at k=%d within %d iterations", gap.K, opts.MaxIter)
	}
	labels, err := cluster.NewLabeling(cluster.MethodKMeans, emb.Cells(), res.Labels())
	if err != nil {
		return nil, nil, err
	}
	opts.Logger.Info("kmeans: k=%d, within SS %.3f after %d iterations", gap.K, res.WithinSS, res.Iterations)
	return labels, gap, nil
}
