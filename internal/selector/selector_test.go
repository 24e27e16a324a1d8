package selector

import (
	stderrors "errors"
	"testing"

	"scqc/domain/cluster"
	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelings(t *testing.T) map[cluster.Method]*cluster.Labeling {
	t.Helper()
	cells := []string{"a", "b", "c"}
	out := make(map[cluster.Method]*cluster.Labeling)
	for i, m := range cluster.Methods {
		l, err := cluster.NewLabeling(m, cells, []int{1, 1, i + 1})
		require.NoError(t, err)
		out[m] = l
	}
	return out
}

func TestSelect(t *testing.T) {
	all := labelings(t)
	for _, m := range cluster.Methods {
		sel, err := Select(all, m, 3)
		require.NoError(t, err)
		assert.Equal(t, m, sel.Method)
		assert.Same(t, all[m], sel.Labeling)
		assert.Zero(t, sel.Unassigned)
	}
}

func TestSelectDefaultsToLouvain(t *testing.T) {
	sel, err := Select(labelings(t), "", 3)
	require.NoError(t, err)
	assert.Equal(t, cluster.MethodLouvain, sel.Method)
}

func TestSelectErrors(t *testing.T) {
	all := labelings(t)

	_, err := Select(all, "dbscan", 3)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	_, err = Select(all, cluster.MethodKMeans, 4)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	delete(all, cluster.MethodHClust)
	_, err = Select(all, cluster.MethodHClust, 3)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestSelectUnassignedCells(t *testing.T) {
	cells := []string{"a", "b", "c", "d"}
	partial, err := cluster.NewLabeling(cluster.MethodHClust, cells, []int{1, 0, 1, 2})
	require.NoError(t, err)
	sel, err := Select(map[cluster.Method]*cluster.Labeling{cluster.MethodHClust: partial}, cluster.MethodHClust, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Unassigned)

	none, err := cluster.NewLabeling(cluster.MethodHClust, cells, []int{0, 0, 0, 0})
	require.NoError(t, err)
	_, err = Select(map[cluster.Method]*cluster.Labeling{cluster.MethodHClust: none}, cluster.MethodHClust, 4)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyResult))
}
