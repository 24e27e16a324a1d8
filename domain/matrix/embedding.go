package matrix

import (
	"math"

	"scqc/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// Embedding is a read-only cells × k coordinate matrix produced upstream
// (usually the leading principal components of the filtered counts).
type Embedding struct {
	cells []string
	data  *mat.Dense
}

// NewEmbedding copies one coordinate row per cell.
func NewEmbedding(cells []string, rows [][]float64) (*Embedding, error) {
	if len(cells) == 0 || len(rows) == 0 {
		return nil, errors.EmptyMatrix("embedding has %d cells", len(rows))
	}
	if len(cells) != len(rows) {
		return nil, errors.InvalidConfiguration("got %d rows for %d cells", len(rows), len(cells))
	}
	if err := checkUnique("cell", cells); err != nil {
		return nil, err
	}
	dims := len(rows[0])
	if dims == 0 {
		return nil, errors.EmptyMatrix("embedding has zero dimensions")
	}

	data := mat.NewDense(len(rows), dims, nil)
	for i, row := range rows {
		if len(row) != dims {
			return nil, errors.InvalidConfiguration("cell %q has %d dimensions, want %d", cells[i], len(row), dims)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.InvalidConfiguration("cell %q has non-finite coordinate", cells[i])
			}
		}
		data.SetRow(i, row)
	}
	return &Embedding{cells: append([]string(nil), cells...), data: data}, nil
}

// NewEmbeddingFromDense copies a cells × k matrix.
func NewEmbeddingFromDense(cells []string, m mat.Matrix) (*Embedding, error) {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return NewEmbedding(cells, rows)
}

// NumCells returns the number of rows
func (e *Embedding) NumCells() int { return len(e.cells) }

// Dims returns the embedding dimensionality
func (e *Embedding) Dims() int {
	_, c := e.data.Dims()
	return c
}

// Cells returns a copy of the cell ids
func (e *Embedding) Cells() []string { return append([]string(nil), e.cells...) }

// Row returns a copy of cell i's coordinates
func (e *Embedding) Row(i int) []float64 { return mat.Row(nil, i, e.data) }

// Rows returns a copy of all coordinates, one slice per cell
func (e *Embedding) Rows() [][]float64 {
	out := make([][]float64, len(e.cells))
	for i := range out {
		out[i] = e.Row(i)
	}
	return out
}

// At returns coordinate j of cell i
func (e *Embedding) At(i, j int) float64 { return e.data.At(i, j) }

// AlignTo checks that the embedding describes exactly the cells of m, in order.
func (e *Embedding) AlignTo(m *CountMatrix) error {
	if m.NumCells() != len(e.cells) {
		return errors.InvalidConfiguration("embedding has %d cells, matrix has %d", len(e.cells), m.NumCells())
	}
	for i, id := range m.cells {
		if e.cells[i] != id {
			return errors.InvalidConfiguration("embedding row %d is cell %q, matrix column is %q", i, e.cells[i], id)
		}
	}
	return nil
}
