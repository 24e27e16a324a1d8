package cluster

import (
	stderrors "errors"
	"testing"

	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLabeling(t *testing.T) {
	l, err := NewLabeling(MethodHClust, []string{"a", "b", "c", "d"}, []int{2, 1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, l.Clusters())
	assert.Equal(t, 2, l.NumClusters())
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 2}, l.Sizes())

	labels := l.Labels()
	labels[0] = 9
	assert.Equal(t, 2, l.At(0))

	_, err = NewLabeling(MethodKMeans, []string{"a"}, []int{1, 2})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = NewLabeling(MethodKMeans, []string{"a"}, []int{-1})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("louvain")
	require.NoError(t, err)
	assert.Equal(t, MethodLouvain, m)

	_, err = ParseMethod("dbscan")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestModularityMatrixAt(t *testing.T) {
	m := &ModularityMatrix{Clusters: []int{1, 3}, Values: [][]float64{{2, 0.5}, {0.5, 4}}}
	assert.Equal(t, 0.5, m.At(3, 1))
	assert.Equal(t, 4.0, m.At(3, 3))
	assert.Equal(t, 0.0, m.At(2, 1))
}
