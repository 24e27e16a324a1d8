package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.SetDiscarded("cells", "adaptive", 5)
	r.SetEntries("cells", "filtered", 95)
	r.SetClusters("louvain", 3)
	r.SetMeanSilhouette(0.7)
	r.ObserveStage("qc", 20*time.Millisecond)
	r.Time("cluster")()

	assert.Equal(t, 5.0, testutil.ToFloat64(r.discarded.WithLabelValues("cells", "adaptive")))
	assert.Equal(t, 95.0, testutil.ToFloat64(r.entries.WithLabelValues("cells", "filtered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.clusters.WithLabelValues("louvain")))
	assert.Equal(t, 0.7, testutil.ToFloat64(r.meanSil))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.SetClusters("kmeans", 4)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.clusters.WithLabelValues("kmeans")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.SetDiscarded("genes", "low_frequency", 12)
	path := filepath.Join(t.TempDir(), "scqc.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scqc_discarded_total{axis="genes",policy="low_frequency"} 12`)
}
