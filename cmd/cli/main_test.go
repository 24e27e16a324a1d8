package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"scqc/domain/matrix"
	"scqc/internal/testkit"
)

func writeCSV(t *testing.T, path string, records [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(records))
}

func countsCSV(t *testing.T, dir string, m *matrix.CountMatrix) string {
	t.Helper()
	records := [][]string{append([]string{"gene"}, m.Cells()...)}
	for g, gene := range m.Genes() {
		row := []string{gene}
		for _, v := range m.Gene(g) {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		records = append(records, row)
	}
	path := filepath.Join(dir, "counts.csv")
	writeCSV(t, path, records)
	return path
}

func sheets(t *testing.T, path string) []string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	return f.GetSheetList()
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--env-file", "testdata-missing.env"))
	return cmd.Execute()
}

func TestQCCommandWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)
	out := filepath.Join(dir, "qc.xlsx")
	metricsFile := filepath.Join(dir, "scqc.prom")

	err = execute("qc", "--matrix", countsCSV(t, dir, m), "--out", out, "--workers", "2", "--metrics-file", metricsFile)
	require.NoError(t, err)

	assert.Subset(t, sheets(t, out), []string{"cell_qc", "gene_qc", "metric_summary", "cell_agreement", "gene_agreement"})
	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scqc_discarded_total")
}

func TestQCCommandRejectsUnknownPolicy(t *testing.T) {
	dir := t.TempDir()
	m, err := testkit.LowLibraryCounts(testkit.DefaultLowLibraryConfig())
	require.NoError(t, err)

	err = execute("qc", "--matrix", countsCSV(t, dir, m), "--policy", "strict")
	assert.Error(t, err)
}

func TestClusterCommandFromEmbedding(t *testing.T) {
	dir := t.TempDir()
	emb, _, err := testkit.Blobs(testkit.DefaultBlobsConfig())
	require.NoError(t, err)
	records := [][]string{{"cell"}}
	for d := 0; d < emb.Dims(); d++ {
		records[0] = append(records[0], fmt.Sprintf("pc%d", d+1))
	}
	for i, cell := range emb.Cells() {
		row := []string{cell}
		for _, v := range emb.Row(i) {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		records = append(records, row)
	}
	embPath := filepath.Join(dir, "pcs.csv")
	writeCSV(t, embPath, records)
	out := filepath.Join(dir, "clusters.xlsx")

	err = execute("cluster", "--embedding", embPath, "--k-max", "6", "--method", "kmeans", "--out", out)
	require.NoError(t, err)
	assert.Subset(t, sheets(t, out), []string{"clusters", "modularity_walktrap", "modularity_louvain", "gap"})
}

func TestClusterCommandNeedsOneInput(t *testing.T) {
	assert.Error(t, execute("cluster"))
	assert.Error(t, execute("cluster", "--embedding", "a.csv", "--matrix", "b.csv"))
}

func TestSubsetsByPrefix(t *testing.T) {
	m, err := matrix.NewCountMatrix(
		[]string{"MT-CO1", "ERCC-001", "ACTB", "MT-ND1"},
		[]string{"c1"},
		[][]float64{{1}, {2}, {3}, {4}},
	)
	require.NoError(t, err)
	in := &inputOptions{mitoPrefix: "MT-", spikePrefix: "ERCC-"}
	s := in.subsets(m)
	assert.Equal(t, []string{"MT-CO1", "MT-ND1"}, s.Genes["mito"])
	assert.Equal(t, []string{"ERCC-001"}, s.AltExp)

	assert.Empty(t, (&inputOptions{}).subsets(m).Genes)
}

func TestRunsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	assert.Error(t, execute("runs", "list"))
}
