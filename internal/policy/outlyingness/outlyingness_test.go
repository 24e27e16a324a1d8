package outlyingness

import (
	stderrors "errors"
	"math"
	"math/rand/v2"
	"testing"

	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func cloudWithOutlier(n int) *mat.Dense {
	r := rand.New(rand.NewPCG(7, 11))
	x := mat.NewDense(n+1, 3, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, r.NormFloat64())
		x.Set(i, 1, 2*r.NormFloat64())
		x.Set(i, 2, r.ExpFloat64())
	}
	x.SetRow(n, []float64{15, -20, 30})
	return x
}

func TestScoreFindsPlantedOutlier(t *testing.T) {
	x := cloudWithOutlier(200)
	scores, err := Score(x, Options{Seed: 42})
	require.NoError(t, err)
	require.Len(t, scores, 201)

	top := 0
	for i, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		if s > scores[top] {
			top = i
		}
	}
	assert.Equal(t, 200, top)
}

func TestScoreIndependentOfWorkers(t *testing.T) {
	x := cloudWithOutlier(120)
	one, err := Score(x, Options{Seed: 3, Workers: 1})
	require.NoError(t, err)
	many, err := Score(x, Options{Seed: 3, Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, one, many)

	again, err := Score(x, Options{Seed: 3, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, one, again)
}

func TestScoreConstantColumns(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{1, 5, 1, 5, 1, 5, 1, 5})
	scores, err := Score(x, Options{Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, scores)
}

func TestScoreRejectsNonFinite(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, math.Inf(-1), 2})
	_, err := Score(x, Options{Seed: 1})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestMedcouple(t *testing.T) {
	assert.Equal(t, 0.0, Medcouple([]float64{1, 2, 3, 4, 5}))
	skewed := []float64{1, 1.1, 1.2, 1.5, 2, 3, 5, 9, 20}
	assert.InDelta(t, 5.0/7, Medcouple(skewed), 1e-12)

	mirrored := make([]float64, len(skewed))
	for i, v := range skewed {
		mirrored[i] = -v
	}
	assert.InDelta(t, -5.0/7, Medcouple(mirrored), 1e-12)
	assert.Equal(t, 0.0, Medcouple([]float64{2, 2, 2, 2}))
}
