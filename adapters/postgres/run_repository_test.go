package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"scqc/domain/core"
	"scqc/domain/run"
	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedManifest() *run.Manifest {
	m := run.NewManifest(run.KindCluster, core.Hash("cfg"), "test")
	m.NumGenes, m.NumCells = 10, 20
	m.AddArtifact(core.ArtifactLabeling, "louvain", core.Hash("labels"), 3)
	m.Summary["clusters_louvain"] = 3
	m.Seal()
	return m
}

func TestRowRoundTrip(t *testing.T) {
	m := sealedManifest()
	row, err := toRow(m)
	require.NoError(t, err)
	assert.Equal(t, "cluster", row.Kind)
	assert.JSONEq(t, `{"clusters_louvain":3}`, string(row.Summary))

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, back.RunID)
	assert.Equal(t, m.Fingerprint, back.Fingerprint)
	assert.Equal(t, m.Artifacts, back.Artifacts)
	assert.Equal(t, m.Summary, back.Summary)
}

func TestFromRowRejectsBadJSON(t *testing.T) {
	_, err := fromRow(runRow{ID: "x", Artifacts: []byte("{")})
	assert.Error(t, err)
}

// TestRunRepositoryIntegration needs a disposable database in SCQC_TEST_DATABASE_URL
func TestRunRepositoryIntegration(t *testing.T) {
	url := os.Getenv("SCQC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCQC_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	repo := NewRunRepository(db)

	m := sealedManifest()
	require.NoError(t, repo.SaveRun(ctx, m))
	err = repo.SaveRun(ctx, m)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	got, err := repo.GetRun(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint, got.Fingerprint)

	same, err := repo.FindByFingerprint(ctx, m.Fingerprint)
	require.NoError(t, err)
	assert.NotEmpty(t, same)

	list, err := repo.ListRuns(ctx, run.KindCluster, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, err = repo.GetRun(ctx, core.NewRunID())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}
