// Package pca derives an embedding from a count matrix: library-size
// normalisation, log transform and projection on the leading principal
// components.
package pca

import (
	"math"

	"scqc/domain/matrix"
	"scqc/internal"
	"scqc/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultComponents is the embedding width used by the pipeline
const DefaultComponents = 10

// Options controls the projection
type Options struct {
	Components int              `yaml:"components"`
	Logger     *internal.Logger `yaml:"-"`
}

// Result is the embedding plus the variance each component captures
type Result struct {
	Embedding *matrix.Embedding
	// Variance of each component's scores, descending
	Variance []float64
	// Fraction of the total variance per component
	Explained []float64
}

// LogNormalize returns a cells × genes matrix of log2(count/sizeFactor + 1),
// where size factors are library sizes scaled to unit mean.
func LogNormalize(m *matrix.CountMatrix) (*mat.Dense, error) {
	nGenes, nCells := m.NumGenes(), m.NumCells()
	sums := make([]float64, nCells)
	for c := range sums {
		sums[c] = floats.Sum(m.Cell(c))
		if sums[c] == 0 {
			return nil, errors.InvalidConfiguration("cell %q has zero library size", m.Cells()[c])
		}
	}
	mean := stat.Mean(sums, nil)

	out := mat.NewDense(nCells, nGenes, nil)
	for c := 0; c < nCells; c++ {
		sf := sums[c] / mean
		for g := 0; g < nGenes; g++ {
			out.Set(c, g, math.Log2(m.At(g, c)/sf+1))
		}
	}
	return out, nil
}

// Project normalises m and projects every cell on the leading components.
// Component signs are fixed so that the largest absolute loading is positive.
func Project(m *matrix.CountMatrix, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.EmptyMatrix("no count matrix")
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	k := opts.Components
	if k == 0 {
		k = DefaultComponents
	}
	if k < 0 {
		return nil, errors.InvalidConfiguration("pca components must be positive, got %d", k)
	}
	if m.NumCells() < 2 {
		return nil, errors.EmptyMatrix("pca needs at least 2 cells, got %d", m.NumCells())
	}

	x, err := LogNormalize(m)
	if err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if maxK := min(n, d); k > maxK {
		logger.Debug("pca: clamping %d components to %d", k, maxK)
		k = maxK
	}

	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return nil, errors.NonConvergence("pca: singular value decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	loadings := mat.DenseCopyOf(vecs.Slice(0, d, 0, k))
	orientSigns(loadings)

	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, x)
		mu := stat.Mean(col, nil)
		floats.AddConst(-mu, col)
		x.SetCol(j, col)
	}
	var scores mat.Dense
	scores.Mul(x, loadings)

	emb, err := matrix.NewEmbeddingFromDense(m.Cells(), &scores)
	if err != nil {
		return nil, err
	}

	total := floats.Sum(vars)
	explained := make([]float64, k)
	if total > 0 {
		for i := range explained {
			explained[i] = vars[i] / total
		}
	}
	logger.Info("pca: %d cells x %d genes -> %d components (%.1f%% variance)", n, d, k, 100*floats.Sum(explained))
	return &Result{Embedding: emb, Variance: append([]float64(nil), vars[:k]...), Explained: explained}, nil
}

func orientSigns(loadings *mat.Dense) {
	rows, cols := loadings.Dims()
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, loadings)
		if col[floats.MaxIdx(absAll(col))] < 0 {
			floats.Scale(-1, col)
			for i := 0; i < rows; i++ {
				loadings.Set(i, j, col[i])
			}
		}
	}
}

func absAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = math.Abs(v)
	}
	return out
}
