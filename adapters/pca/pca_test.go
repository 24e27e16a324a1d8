package pca

import (
	stderrors "errors"
	"fmt"
	"math"
	"testing"

	"scqc/domain/matrix"
	"scqc/internal"
	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoPopulations builds 10 cells: the first five express g1 highly, the rest g2.
func twoPopulations(t *testing.T) *matrix.CountMatrix {
	t.Helper()
	genes := []string{"g1", "g2", "g3", "g4"}
	cells := make([]string, 10)
	rows := make([][]float64, len(genes))
	for g := range rows {
		rows[g] = make([]float64, len(cells))
	}
	for c := range cells {
		cells[c] = fmt.Sprintf("c%d", c)
		hi, lo := 0, 1
		if c >= 5 {
			hi, lo = 1, 0
		}
		rows[hi][c] = float64(50 + c)
		rows[lo][c] = 2
		rows[2][c] = 10
		rows[3][c] = float64(5 + c%3)
	}
	m, err := matrix.NewCountMatrix(genes, cells, rows)
	require.NoError(t, err)
	return m
}

func TestLogNormalize(t *testing.T) {
	m, err := matrix.NewCountMatrix([]string{"g1", "g2"}, []string{"a", "b"}, [][]float64{{1, 3}, {1, 3}})
	require.NoError(t, err)
	x, err := LogNormalize(m)
	require.NoError(t, err)
	// Both cells have library sizes 2 and 6, mean 4: size factors 0.5 and 1.5
	assert.InDelta(t, math.Log2(3), x.At(0, 0), 1e-12)
	assert.InDelta(t, math.Log2(3), x.At(1, 1), 1e-12)
}

func TestLogNormalizeZeroLibrary(t *testing.T) {
	m, err := matrix.NewCountMatrix([]string{"g1"}, []string{"a", "b"}, [][]float64{{0, 3}})
	require.NoError(t, err)
	_, err = LogNormalize(m)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestProjectSeparatesPopulations(t *testing.T) {
	m := twoPopulations(t)
	res, err := Project(m, Options{Components: 2, Logger: internal.NewNopLogger()})
	require.NoError(t, err)

	emb := res.Embedding
	assert.Equal(t, 2, emb.Dims())
	assert.NoError(t, emb.AlignTo(m))
	for c := 0; c < 5; c++ {
		for o := 5; o < 10; o++ {
			assert.Less(t, emb.At(c, 0)*emb.At(o, 0), 0.0, "cells %d and %d on the same side of PC1", c, o)
		}
	}

	assert.GreaterOrEqual(t, res.Variance[0], res.Variance[1])
	assert.Greater(t, res.Explained[0], 0.5)
}

func TestProjectIsDeterministic(t *testing.T) {
	m := twoPopulations(t)
	a, err := Project(m, Options{Components: 2, Logger: internal.NewNopLogger()})
	require.NoError(t, err)
	b, err := Project(m, Options{Components: 2, Logger: internal.NewNopLogger()})
	require.NoError(t, err)
	assert.Equal(t, a.Embedding.Rows(), b.Embedding.Rows())
}

func TestProjectClampsComponents(t *testing.T) {
	m := twoPopulations(t)
	res, err := Project(m, Options{Logger: internal.NewNopLogger()})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Embedding.Dims())
	assert.Len(t, res.Explained, 4)
}

func TestProjectErrors(t *testing.T) {
	_, err := Project(nil, Options{})
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))

	m := twoPopulations(t)
	_, err = Project(m, Options{Components: -1})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	one, err := matrix.NewCountMatrix([]string{"g"}, []string{"c"}, [][]float64{{1}})
	require.NoError(t, err)
	_, err = Project(one, Options{})
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))
}
