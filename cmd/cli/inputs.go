package main

import (
	"strings"

	"scqc/adapters/excel"
	"scqc/domain/matrix"
	"scqc/domain/qc"
	"scqc/internal"
)

// inputOptions locate the count matrix and its annotations
type inputOptions struct {
	matrixPath     string
	sheet          string
	mitoPrefix     string
	spikePrefix    string
	annotationPath string
	batchColumn    string
}

func (o *inputOptions) readMatrix(logger *internal.Logger) (*matrix.CountMatrix, error) {
	return excel.NewDataReader(o.matrixPath, excel.Config{Sheet: o.sheet, Logger: logger}).ReadCounts()
}

// subsets groups genes by name prefix
func (o *inputOptions) subsets(m *matrix.CountMatrix) qc.Subsets {
	var s qc.Subsets
	for _, g := range m.Genes() {
		switch {
		case o.spikePrefix != "" && strings.HasPrefix(g, o.spikePrefix):
			s.AltExp = append(s.AltExp, g)
		case o.mitoPrefix != "" && strings.HasPrefix(g, o.mitoPrefix):
			if s.Genes == nil {
				s.Genes = make(map[string][]string)
			}
			s.Genes["mito"] = append(s.Genes["mito"], g)
		}
	}
	return s
}

// batches reads one batch label per cell, or returns nil when no column is set
func (o *inputOptions) batches(m *matrix.CountMatrix, column string, logger *internal.Logger) ([]string, error) {
	if o.batchColumn != "" {
		column = o.batchColumn
	}
	if column == "" || o.annotationPath == "" {
		return nil, nil
	}
	values, err := excel.NewDataReader(o.annotationPath, excel.Config{Logger: logger}).ReadAnnotation(column)
	if err != nil {
		return nil, err
	}
	return excel.Align(m.Cells(), values)
}
