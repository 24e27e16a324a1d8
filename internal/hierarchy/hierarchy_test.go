package hierarchy

import (
	stderrors "errors"
	"math"
	"testing"

	"scqc/domain/cluster"
	"scqc/domain/matrix"
	"scqc/internal"
	"scqc/internal/errors"
	"scqc/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func line(t *testing.T, xs ...float64) *matrix.Embedding {
	t.Helper()
	rows := make([][]float64, len(xs))
	cells := make([]string, len(xs))
	for i, x := range xs {
		rows[i] = []float64{x}
		cells[i] = string(rune('a' + i))
	}
	e, err := matrix.NewEmbedding(cells, rows)
	require.NoError(t, err)
	return e
}

func TestWardLinkage(t *testing.T) {
	dist, err := Distances(line(t, 0, 1, 5), 2)
	require.NoError(t, err)
	link, err := WardLinkage(dist)
	require.NoError(t, err)

	require.Len(t, link.Merges, 2)
	assert.Equal(t, Merge{A: 0, B: 1, Height: 1, Size: 2}, link.Merges[0])
	assert.Equal(t, 2, link.Merges[1].A)
	assert.Equal(t, 3, link.Merges[1].B)
	assert.Equal(t, 3, link.Merges[1].Size)
	assert.InDelta(t, math.Sqrt(27), link.Merges[1].Height, 1e-12)
}

func TestWardLinkageHeightsAreSorted(t *testing.T) {
	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	dist, err := Distances(emb, 4)
	require.NoError(t, err)
	link, err := WardLinkage(dist)
	require.NoError(t, err)

	require.Len(t, link.Merges, emb.NumCells()-1)
	h := link.Heights()
	for i := 1; i < len(h); i++ {
		assert.LessOrEqual(t, h[i-1], h[i])
	}
	assert.Equal(t, emb.NumCells(), link.Merges[len(link.Merges)-1].Size)
}

func TestDistancesAreWorkerIndependent(t *testing.T) {
	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	a, err := Distances(emb, 1)
	require.NoError(t, err)
	b, err := Distances(emb, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSilhouette(t *testing.T) {
	dist, err := Distances(line(t, 0, 1, 10, 11), 1)
	require.NoError(t, err)

	widths, mean, err := Silhouette(dist, []int{1, 1, 2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 9.5/10.5, widths[0], 1e-12)
	assert.InDelta(t, 8.5/9.5, widths[1], 1e-12)
	assert.InDelta(t, (9.5/10.5+8.5/9.5)/2, mean, 1e-12)

	widths, mean, err = Silhouette(dist, []int{1, 1, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, widths[2])
	assert.Equal(t, 0.0, widths[3])
	assert.InDelta(t, (0.9+8.0/9)/2, mean, 1e-12)

	widths, mean, err = Silhouette(dist, []int{1, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, widths)
	assert.Equal(t, 0.0, mean)

	_, _, err = Silhouette(dist, []int{1})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestOrderBySize(t *testing.T) {
	assert.Equal(t, []int{2, 2, 3, 0, 1, 1, 1}, orderBySize([]int{2, 2, 1, 0, 3, 3, 3}))
}

func TestCutDynamicErrors(t *testing.T) {
	dist, err := Distances(line(t, 0, 1, 5), 1)
	require.NoError(t, err)
	link, err := WardLinkage(dist)
	require.NoError(t, err)

	_, err = CutDynamic(link, dist, CutOptions{MinClusterSize: 0, DeepSplit: 2})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = CutDynamic(link, dist, CutOptions{MinClusterSize: 2, DeepSplit: 5})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = CutDynamic(link, dist[:2], CutOptions{MinClusterSize: 2, DeepSplit: 2})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = CutDynamic(nil, dist, DefaultOptions().CutOptions)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))
}

func TestClusterThreeBlobs(t *testing.T) {
	emb, truth, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Workers = 4
	opts.Logger = internal.NewNopLogger()

	res, err := Cluster(emb, opts)
	require.NoError(t, err)
	assert.Equal(t, cluster.MethodHClust, res.Labeling.Method())
	assert.Equal(t, 3, res.Labeling.NumClusters())
	assert.Greater(t, res.MeanSilhouette, 0.5)
	for blob, p := range testkit.Purity(truth, res.Labeling.Labels()) {
		assert.GreaterOrEqual(t, p, 0.95, "blob %d", blob)
	}
	assert.Len(t, res.Silhouette, emb.NumCells())
}

func TestClusterSmallInputStaysUnassigned(t *testing.T) {
	opts := DefaultOptions()
	opts.Logger = internal.NewNopLogger()
	res, err := Cluster(line(t, 0, 1, 5), opts)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, res.Labeling.Labels())
	assert.Equal(t, 0.0, res.MeanSilhouette)
}
