// Package matrix holds the immutable inputs of the engine: the genes × cells
// count matrix and the cells × k embedding derived from it.
package matrix

import (
	"math"

	"scqc/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// CountMatrix is a genes × cells matrix of non-negative integer counts.
// It has no exported mutators; every transformation returns a new matrix.
type CountMatrix struct {
	genes []string
	cells []string
	data  *mat.Dense
}

// NewCountMatrix validates rows (one slice per gene, one value per cell) and
// copies them into a new matrix.
func NewCountMatrix(genes, cells []string, rows [][]float64) (*CountMatrix, error) {
	if len(genes) == 0 || len(cells) == 0 {
		return nil, errors.EmptyMatrix("count matrix has %d genes and %d cells", len(genes), len(cells))
	}
	if len(rows) != len(genes) {
		return nil, errors.InvalidConfiguration("got %d rows for %d genes", len(rows), len(genes))
	}
	if err := checkUnique("gene", genes); err != nil {
		return nil, err
	}
	if err := checkUnique("cell", cells); err != nil {
		return nil, err
	}

	data := mat.NewDense(len(genes), len(cells), nil)
	for g, row := range rows {
		if len(row) != len(cells) {
			return nil, errors.InvalidConfiguration("gene %q has %d values for %d cells", genes[g], len(row), len(cells))
		}
		for c, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) {
				return nil, errors.InvalidConfiguration("gene %q cell %q: count %v is not a non-negative integer", genes[g], cells[c], v)
			}
		}
		data.SetRow(g, row)
	}

	return &CountMatrix{
		genes: append([]string(nil), genes...),
		cells: append([]string(nil), cells...),
		data:  data,
	}, nil
}

// fromDense wraps already validated data without copying
func fromDense(genes, cells []string, data *mat.Dense) *CountMatrix {
	return &CountMatrix{genes: genes, cells: cells, data: data}
}

func checkUnique(kind string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return errors.InvalidConfiguration("empty %s id", kind)
		}
		if _, dup := seen[id]; dup {
			return errors.InvalidConfiguration("duplicate %s id %q", kind, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// NumGenes returns the number of rows
func (m *CountMatrix) NumGenes() int { return len(m.genes) }

// NumCells returns the number of columns
func (m *CountMatrix) NumCells() int { return len(m.cells) }

// Genes returns a copy of the gene ids
func (m *CountMatrix) Genes() []string { return append([]string(nil), m.genes...) }

// Cells returns a copy of the cell ids
func (m *CountMatrix) Cells() []string { return append([]string(nil), m.cells...) }

// At returns the count for gene g in cell c
func (m *CountMatrix) At(g, c int) float64 { return m.data.At(g, c) }

// Gene returns a copy of gene g's counts across cells
func (m *CountMatrix) Gene(g int) []float64 { return mat.Row(nil, g, m.data) }

// Cell returns a copy of cell c's counts across genes
func (m *CountMatrix) Cell(c int) []float64 { return mat.Col(nil, c, m.data) }

// GeneIndex returns the row of a gene id, or -1
func (m *CountMatrix) GeneIndex(id string) int {
	for i, g := range m.genes {
		if g == id {
			return i
		}
	}
	return -1
}

// Dense returns a copy of the underlying data
func (m *CountMatrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(m.data)
}

// Select returns a new matrix restricted to the given gene rows and cell
// columns, in the order given. Indices must be in range.
func (m *CountMatrix) Select(geneIdx, cellIdx []int) (*CountMatrix, error) {
	if len(geneIdx) == 0 || len(cellIdx) == 0 {
		return nil, errors.EmptyResult("selection keeps %d genes and %d cells", len(geneIdx), len(cellIdx))
	}
	genes := make([]string, len(geneIdx))
	cells := make([]string, len(cellIdx))
	for i, g := range geneIdx {
		if g < 0 || g >= len(m.genes) {
			return nil, errors.InvalidConfiguration("gene index %d out of range", g)
		}
		genes[i] = m.genes[g]
	}
	for j, c := range cellIdx {
		if c < 0 || c >= len(m.cells) {
			return nil, errors.InvalidConfiguration("cell index %d out of range", c)
		}
		cells[j] = m.cells[c]
	}

	data := mat.NewDense(len(geneIdx), len(cellIdx), nil)
	for i, g := range geneIdx {
		for j, c := range cellIdx {
			data.Set(i, j, m.data.At(g, c))
		}
	}
	return fromDense(genes, cells, data), nil
}

// Equal reports whether two matrices have identical ids and counts
func (m *CountMatrix) Equal(other *CountMatrix) bool {
	if other == nil || len(m.genes) != len(other.genes) || len(m.cells) != len(other.cells) {
		return false
	}
	for i := range m.genes {
		if m.genes[i] != other.genes[i] {
			return false
		}
	}
	for i := range m.cells {
		if m.cells[i] != other.cells[i] {
			return false
		}
	}
	return mat.Equal(m.data, other.data)
}
