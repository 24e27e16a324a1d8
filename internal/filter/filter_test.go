package filter

import (
	stderrors "errors"
	"testing"

	"scqc/domain/matrix"
	"scqc/domain/qc"
	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counts(t *testing.T) *matrix.CountMatrix {
	t.Helper()
	m, err := matrix.NewCountMatrix(
		[]string{"g1", "g2"},
		[]string{"c1", "c2", "c3"},
		[][]float64{{1, 2, 3}, {4, 5, 6}},
	)
	require.NoError(t, err)
	return m
}

func TestCellsKeepsOrder(t *testing.T) {
	m := counts(t)
	out, err := Cells(m, qc.NewDiscardMask(qc.PolicyManual, qc.AxisCells, []bool{false, true, false}))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, out.Cells())
	assert.Equal(t, []float64{3, 6}, out.Cell(1))
	assert.Equal(t, 3, m.NumCells())
}

func TestAllFalseMaskIsIdentity(t *testing.T) {
	m := counts(t)
	keepCells := qc.NewDiscardMask(qc.PolicyAdaptive, qc.AxisCells, make([]bool, 3))
	keepGenes := qc.NewDiscardMask(qc.PolicyLowAbundance, qc.AxisGenes, make([]bool, 2))

	out, err := Apply(m, keepCells, keepGenes)
	require.NoError(t, err)
	assert.True(t, m.Equal(out))

	again, err := Apply(out, keepCells, keepGenes)
	require.NoError(t, err)
	assert.True(t, out.Equal(again))
}

func TestGenes(t *testing.T) {
	out, err := Genes(counts(t), qc.NewDiscardMask(qc.PolicyLowAbundance, qc.AxisGenes, []bool{true, false}))
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, out.Genes())
}

func TestFilterErrors(t *testing.T) {
	m := counts(t)
	_, err := Cells(m, qc.NewDiscardMask(qc.PolicyManual, qc.AxisCells, []bool{true, true, true}))
	assert.True(t, stderrors.Is(err, errors.ErrEmptyResult))

	_, err = Genes(m, qc.NewDiscardMask(qc.PolicyLowAbundance, qc.AxisGenes, []bool{true, true}))
	assert.True(t, stderrors.Is(err, errors.ErrEmptyResult))

	_, err = Cells(m, qc.NewDiscardMask(qc.PolicyManual, qc.AxisCells, []bool{true}))
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	_, err = Cells(m, qc.NewDiscardMask(qc.PolicyManual, qc.AxisGenes, []bool{true, false, false}))
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}
