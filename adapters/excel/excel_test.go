package excel

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"scqc/domain/cluster"
	"scqc/domain/qc"
	"scqc/internal"
	"scqc/internal/agreement"
	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func cfg() Config {
	return Config{Sheet: DefaultSheet, Logger: internal.NewNopLogger()}
}

func writeCountsWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"gene", "c1", "c2", "c3"},
		{"MT-1", 5, 0, 1},
		{"G1", 2, 3},
		{"G2", " 7 ", 0, 4},
	}
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
}

func TestReadCountsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")
	writeCountsWorkbook(t, path)

	m, err := NewDataReader(path, cfg()).ReadCounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"MT-1", "G1", "G2"}, m.Genes())
	assert.Equal(t, []string{"c1", "c2", "c3"}, m.Cells())
	assert.Equal(t, []float64{2, 3, 0}, m.Gene(1))
	assert.Equal(t, []float64{7, 0, 4}, m.Gene(2))
}

func TestReadCountsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv")
	require.NoError(t, os.WriteFile(path, []byte("gene,a,b\ng1,1,2\ng2,0,3\n"), 0o644))

	m, err := NewDataReader(path, cfg()).ReadCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumGenes())
	assert.Equal(t, []float64{2, 3}, m.Cell(1))
}

func TestReadCountsRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv")
	require.NoError(t, os.WriteFile(path, []byte("gene,a,b\ng1,1,x\n"), 0o644))
	_, err := NewDataReader(path, cfg()).ReadCounts()
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	require.NoError(t, os.WriteFile(path, []byte("gene,a,b\n"), 0o644))
	_, err = NewDataReader(path, cfg()).ReadCounts()
	assert.True(t, stderrors.Is(err, errors.ErrEmptyMatrix))

	_, err = NewDataReader(filepath.Join(t.TempDir(), "missing.csv"), cfg()).ReadCounts()
	assert.Error(t, err)
}

func TestReadEmbeddingAndAnnotation(t *testing.T) {
	dir := t.TempDir()
	emb := filepath.Join(dir, "pcs.csv")
	require.NoError(t, os.WriteFile(emb, []byte("cell,PC1,PC2\na,0.5,1\nb,-1,2\n"), 0o644))
	e, err := NewDataReader(emb, cfg()).ReadEmbedding()
	require.NoError(t, err)
	assert.Equal(t, 2, e.Dims())
	assert.Equal(t, []float64{-1, 2}, e.Row(1))

	ann := filepath.Join(dir, "cells.csv")
	require.NoError(t, os.WriteFile(ann, []byte("cell,batch\nb,run2\na,run1\n"), 0o644))
	values, err := NewDataReader(ann, cfg()).ReadAnnotation("batch")
	require.NoError(t, err)
	batches, err := Align([]string{"a", "b"}, values)
	require.NoError(t, err)
	assert.Equal(t, []string{"run1", "run2"}, batches)

	_, err = Align([]string{"a", "c"}, values)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
	_, err = NewDataReader(ann, cfg()).ReadAnnotation("donor")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestWorkbookRoundTrip(t *testing.T) {
	m := &qc.CellMetrics{
		Cells:         []string{"a", "b"},
		Sum:           []float64{10, 0},
		Detected:      []float64{3, 0},
		SubsetPercent: map[string][]float64{"mito": {20, 0}},
	}
	mask := qc.NewDiscardMaskWithReasons(qc.PolicyManual, qc.AxisCells, []bool{false, true}, [][]string{nil, {"low_sum"}})
	table, err := agreement.Analyze(mask)
	require.NoError(t, err)
	labels, err := cluster.NewLabeling(cluster.MethodLouvain, m.Cells, []int{1, 2})
	require.NoError(t, err)

	w := NewWorkbook()
	require.NoError(t, w.AddCellMetrics(m, []*qc.DiscardMask{mask}))
	require.NoError(t, w.AddDiscardReasons(m.Cells, []*qc.DiscardMask{mask}))
	require.NoError(t, w.AddAgreement("cell_agreement", table))
	require.NoError(t, w.AddLabelings([]*cluster.Labeling{labels}, cluster.MethodLouvain))
	assert.Equal(t, []string{"cell_qc", "discard_reasons", "cell_agreement", "clusters"}, w.Sheets())

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, w.Save(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"cell_qc", "discard_reasons", "cell_agreement", "clusters"}, f.GetSheetList())

	rows, err := f.GetRows("cell_qc")
	require.NoError(t, err)
	assert.Equal(t, []string{"cell", "sum", "detected", "subset_percent_mito", "discard_manual"}, rows[0])
	assert.Equal(t, []string{"b", "0", "0", "0", "TRUE"}, rows[2])

	rows, err = f.GetRows("discard_reasons")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "manual", "low_sum"}, rows[1])

	rows, err = f.GetRows("clusters")
	require.NoError(t, err)
	assert.Equal(t, []string{"cell", "louvain (selected)"}, rows[0])
}

func TestSaveEmptyWorkbook(t *testing.T) {
	err := NewWorkbook().Save(filepath.Join(t.TempDir(), "x.xlsx"))
	assert.True(t, stderrors.Is(err, errors.ErrEmptyResult))
}
