package app

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scqc/domain/cluster"
	"scqc/domain/core"
	"scqc/domain/qc"
	"scqc/domain/run"
	"scqc/internal"
	"scqc/internal/config"
	"scqc/internal/errors"
	"scqc/internal/telemetry"
	"scqc/internal/testkit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockRunRepository struct {
	mock.Mock
}

func (m *mockRunRepository) SaveRun(ctx context.Context, man *run.Manifest) error {
	return m.Called(ctx, man).Error(0)
}

func (m *mockRunRepository) GetRun(ctx context.Context, id core.RunID) (*run.Manifest, error) {
	args := m.Called(ctx, id)
	man, _ := args.Get(0).(*run.Manifest)
	return man, args.Error(1)
}

func (m *mockRunRepository) ListRuns(ctx context.Context, kind run.Kind, limit int) ([]*run.Manifest, error) {
	args := m.Called(ctx, kind, limit)
	out, _ := args.Get(0).([]*run.Manifest)
	return out, args.Error(1)
}

func (m *mockRunRepository) FindByFingerprint(ctx context.Context, fp core.Hash) ([]*run.Manifest, error) {
	args := m.Called(ctx, fp)
	out, _ := args.Get(0).([]*run.Manifest)
	return out, args.Error(1)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Runtime.Workers = 4
	cfg.KMeans.KMax = 10
	return cfg
}

func testRunner() *StageRunner {
	return NewStageRunner(internal.NewNopLogger(), telemetry.NewRecorder())
}

func TestQCServiceFiltersLowLibraryCells(t *testing.T) {
	lowCfg := testkit.DefaultLowLibraryConfig()
	m, err := testkit.LowLibraryCounts(lowCfg)
	require.NoError(t, err)

	repo := testkit.NewInMemoryRunRepository()
	runner := testRunner()
	svc := NewQCService(testConfig(), Deps{Runner: runner, Repository: repo})

	report, err := svc.Run(context.Background(), m, qc.Subsets{}, nil)
	require.NoError(t, err)

	assert.Equal(t, qc.PolicyAdaptive, report.Selected)
	adaptive := report.Masks[qc.PolicyAdaptive]
	assert.Equal(t, lowCfg.LowCells, discarded(adaptive))
	assert.Equal(t, 95, report.Filtered.NumCells())
	assert.Equal(t, 50, report.Filtered.NumGenes())

	assert.Len(t, report.CellMasks(), 3)
	assert.Equal(t, 100, report.CellAgreement.Total)
	assert.Equal(t, m.NumCells(), report.Masks[qc.PolicyManual].Count(), "reference cutoffs discard every small cell")
	assert.Len(t, report.CellJaccard, 3)
	assert.Len(t, report.GeneMasks, 2)
	assert.Equal(t, 0, report.GeneMask.Count())
	assert.Contains(t, report.Summaries, "sum")
	assert.NotEmpty(t, report.Thresholds)

	require.NoError(t, report.Manifest.Validate())
	assert.Equal(t, 1, repo.Len())
	stored, err := repo.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 95.0, stored.Summary["cells_kept"])

	n, err := testutil.GatherAndCount(runner.Recorder().Registry(), "scqc_discarded_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestQCServiceIsReproducible(t *testing.T) {
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	svc := NewQCService(testConfig(), Deps{Runner: testRunner()})

	a, err := svc.Run(context.Background(), m, qc.Subsets{}, nil)
	require.NoError(t, err)
	b, err := svc.Run(context.Background(), m, qc.Subsets{}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Manifest.Fingerprint, b.Manifest.Fingerprint)
}

func TestQCServiceSelectedPolicy(t *testing.T) {
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.QC.SelectedPolicy = "manual"
	svc := NewQCService(cfg, Deps{Runner: testRunner()})

	_, err = svc.Run(context.Background(), m, qc.Subsets{}, nil)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyResult))
}

func TestQCServiceRejectsBadBatches(t *testing.T) {
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	svc := NewQCService(testConfig(), Deps{Runner: testRunner()})

	_, err = svc.Run(context.Background(), m, qc.Subsets{}, []string{"a"})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = svc.Run(context.Background(), nil, qc.Subsets{}, nil)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))
}

func TestQCServiceHonoursCancellation(t *testing.T) {
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewQCService(testConfig(), Deps{Runner: testRunner()}).Run(ctx, m, qc.Subsets{}, nil)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestQCServicePersistFailure(t *testing.T) {
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	repo := new(mockRunRepository)
	repo.On("SaveRun", mock.Anything, mock.AnythingOfType("*run.Manifest")).
		Return(errors.DatabaseError("connection refused")).Once()

	_, err = NewQCService(testConfig(), Deps{Runner: testRunner(), Repository: repo}).Run(context.Background(), m, qc.Subsets{}, nil)
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
	repo.AssertExpectations(t)
}

func TestClusteringServiceOnBlobs(t *testing.T) {
	emb, truth, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)

	repo := new(mockRunRepository)
	repo.On("SaveRun", mock.Anything, mock.MatchedBy(func(m *run.Manifest) bool {
		return m.Kind == run.KindCluster && len(m.Artifacts) == 6
	})).Return(nil).Once()

	svc := NewClusteringService(testConfig(), Deps{Runner: testRunner(), Repository: repo})
	report, err := svc.Run(context.Background(), emb)
	require.NoError(t, err)
	repo.AssertExpectations(t)

	assert.Equal(t, cluster.MethodLouvain, report.Selected.Method)
	require.Len(t, report.OrderedLabelings(), 4)
	for _, l := range report.OrderedLabelings() {
		assert.Equal(t, emb.NumCells(), l.Len(), string(l.Method()))
	}
	for _, method := range []cluster.Method{cluster.MethodWalktrap, cluster.MethodLouvain} {
		assertWithinBlobs(t, truth, report.Labelings[method].Labels(), method)
		require.Contains(t, report.Modularity, method)
	}

	assert.Equal(t, 3, report.Gap.K)
	assert.Equal(t, 3, report.Labelings[cluster.MethodKMeans].NumClusters())
	assert.Equal(t, 3, report.Labelings[cluster.MethodHClust].NumClusters())
	assert.Greater(t, report.Hierarchy.MeanSilhouette, 0.5)
	for _, method := range []cluster.Method{cluster.MethodKMeans, cluster.MethodHClust} {
		for blob, p := range testkit.Purity(truth, report.Labelings[method].Labels()) {
			assert.GreaterOrEqual(t, p, 0.95, "%s blob %d", method, blob)
		}
	}
}

func TestClusteringServiceSelectedMethod(t *testing.T) {
	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Cluster.SelectedMethod = string(cluster.MethodHClust)

	report, err := NewClusteringService(cfg, Deps{Runner: testRunner()}).Run(context.Background(), emb)
	require.NoError(t, err)
	assert.Equal(t, cluster.MethodHClust, report.Selected.Method)
	assert.Equal(t, report.Hierarchy.Labeling, report.Selected.Labeling)
	assert.Equal(t, report.Hierarchy.Labeling.Sizes()[cluster.Unassigned], report.Selected.Unassigned)
}

func TestClusteringServiceStageNames(t *testing.T) {
	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	runner := testRunner()

	_, err = NewClusteringService(testConfig(), Deps{Runner: runner}).Run(context.Background(), emb)
	require.NoError(t, err)

	families, err := runner.Recorder().Registry().Gather()
	require.NoError(t, err)
	var stages []string
	for _, mf := range families {
		if mf.GetName() != "scqc_stage_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "stage" {
					stages = append(stages, lp.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{
		StageGraph,
		string(cluster.MethodWalktrap),
		string(cluster.MethodLouvain),
		string(cluster.MethodKMeans),
		string(cluster.MethodHClust),
		StageSelect,
	}, stages)
}

func TestClusteringServiceErrors(t *testing.T) {
	_, err := NewClusteringService(testConfig(), Deps{}).Run(context.Background(), nil)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))

	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Graph.WeightScheme = "cosine"
	_, err = NewClusteringService(cfg, Deps{}).Run(context.Background(), emb)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestStageRunnerKeepsErrorCode(t *testing.T) {
	r := testRunner()
	err := r.Run(context.Background(), "boom", func() error {
		return errors.NonConvergence("did not settle")
	})
	assert.True(t, stderrors.Is(err, errors.ErrNonConvergence))
	assert.Contains(t, err.Error(), "stage boom")
	n, gerr := testutil.GatherAndCount(r.Recorder().Registry(), "scqc_stage_duration_seconds")
	require.NoError(t, gerr)
	assert.Equal(t, 1, n)
}

func discarded(mask *qc.DiscardMask) []int {
	var out []int
	for i := 0; i < mask.Len(); i++ {
		if mask.At(i) {
			out = append(out, i)
		}
	}
	return out
}

// assertWithinBlobs checks that no cluster mixes cells of different blobs
func assertWithinBlobs(t *testing.T, truth, labels []int, method cluster.Method) {
	t.Helper()
	owner := make(map[int]int)
	for i, l := range labels {
		if b, ok := owner[l]; ok {
			assert.Equal(t, b, truth[i], "%s cluster %d spans blobs", method, l)
			continue
		}
		owner[l] = truth[i]
	}
}
