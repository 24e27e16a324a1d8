// Package filter applies discard masks to a count matrix.
package filter

import (
	"scqc/domain/matrix"
	"scqc/domain/qc"
	"scqc/internal/errors"
)

// Cells returns a new matrix without the cells the mask discards, keeping
// the order of the rest.
func Cells(m *matrix.CountMatrix, mask *qc.DiscardMask) (*matrix.CountMatrix, error) {
	if m == nil {
		return nil, errors.EmptyMatrix("nothing to filter")
	}
	if err := check(m, mask, qc.AxisCells, m.NumCells()); err != nil {
		return nil, err
	}
	kept := mask.Kept()
	if len(kept) == 0 {
		return nil, errors.EmptyResult("mask %s discards all %d cells", mask.Policy(), m.NumCells())
	}
	return m.Select(allIndices(m.NumGenes()), kept)
}

// Genes returns a new matrix without the genes the mask discards.
func Genes(m *matrix.CountMatrix, mask *qc.DiscardMask) (*matrix.CountMatrix, error) {
	if m == nil {
		return nil, errors.EmptyMatrix("nothing to filter")
	}
	if err := check(m, mask, qc.AxisGenes, m.NumGenes()); err != nil {
		return nil, err
	}
	kept := mask.Kept()
	if len(kept) == 0 {
		return nil, errors.EmptyResult("mask %s discards all %d genes", mask.Policy(), m.NumGenes())
	}
	return m.Select(kept, allIndices(m.NumCells()))
}

// Apply filters cells and then genes; either mask may be nil.
func Apply(m *matrix.CountMatrix, cells, genes *qc.DiscardMask) (*matrix.CountMatrix, error) {
	out := m
	var err error
	if cells != nil {
		if out, err = Cells(out, cells); err != nil {
			return nil, err
		}
	}
	if genes != nil {
		if out, err = Genes(out, genes); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func check(m *matrix.CountMatrix, mask *qc.DiscardMask, axis qc.Axis, n int) error {
	if mask == nil {
		return errors.InvalidConfiguration("nil mask")
	}
	if mask.Axis() != axis {
		return errors.InvalidConfiguration("mask %s is aligned to %s, want %s", mask.Policy(), mask.Axis(), axis)
	}
	if mask.Len() != n {
		return errors.InvalidConfiguration("mask %s has %d entries for %d %s", mask.Policy(), mask.Len(), n, axis)
	}
	return nil
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
