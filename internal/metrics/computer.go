// Package metrics derives the per-cell and per-gene quality-control metrics
// from a count matrix.
package metrics

import (
	"time"

	"scqc/domain/matrix"
	"scqc/domain/qc"
	"scqc/internal"
	"scqc/internal/errors"
)

// Computer derives CellMetrics and GeneMetrics
type Computer struct {
	logger *internal.Logger
}

// NewComputer creates a computer; a nil logger falls back to the default
func NewComputer(logger *internal.Logger) *Computer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Computer{logger: logger}
}

// ComputeCellMetrics computes column sums, nonzero counts and the share of
// each subset. Subset genes must exist in m.
func (c *Computer) ComputeCellMetrics(m *matrix.CountMatrix, subsets qc.Subsets) (*qc.CellMetrics, error) {
	if m == nil || m.NumGenes() == 0 || m.NumCells() == 0 {
		return nil, errors.EmptyMatrix("cannot compute cell metrics of an empty matrix")
	}
	start := time.Now()

	subsetRows := make(map[string][]int, len(subsets.Genes))
	for name, genes := range subsets.Genes {
		rows, err := resolveGenes(m, name, genes)
		if err != nil {
			return nil, err
		}
		subsetRows[name] = rows
	}
	altRows, err := resolveGenes(m, "altexp", subsets.AltExp)
	if err != nil {
		return nil, err
	}

	nCells, nGenes := m.NumCells(), m.NumGenes()
	out := &qc.CellMetrics{
		Cells:         m.Cells(),
		Sum:           make([]float64, nCells),
		Detected:      make([]float64, nCells),
		SubsetPercent: make(map[string][]float64, len(subsetRows)),
		AltExpPercent: make([]float64, nCells),
		HasAltExp:     len(altRows) > 0,
	}
	for name := range subsetRows {
		out.SubsetPercent[name] = make([]float64, nCells)
	}

	for j := 0; j < nCells; j++ {
		var sum, detected float64
		for g := 0; g < nGenes; g++ {
			v := m.At(g, j)
			sum += v
			if v > 0 {
				detected++
			}
		}
		out.Sum[j] = sum
		out.Detected[j] = detected
		if sum == 0 {
			continue
		}
		for name, rows := range subsetRows {
			out.SubsetPercent[name][j] = rowSum(m, rows, j) / sum * 100
		}
		out.AltExpPercent[j] = rowSum(m, altRows, j) / sum * 100
	}

	c.logger.Debug("cell metrics: %d cells, %d subsets, %s", nCells, len(subsetRows), time.Since(start))
	return out, nil
}

// ComputeGeneMetrics computes row means (zeros included) and detection counts.
func (c *Computer) ComputeGeneMetrics(m *matrix.CountMatrix) (*qc.GeneMetrics, error) {
	if m == nil || m.NumGenes() == 0 || m.NumCells() == 0 {
		return nil, errors.EmptyMatrix("cannot compute gene metrics of an empty matrix")
	}
	nCells, nGenes := m.NumCells(), m.NumGenes()
	out := &qc.GeneMetrics{
		Genes:         m.Genes(),
		Mean:          make([]float64, nGenes),
		Detected:      make([]float64, nGenes),
		DetectedCells: make([]int, nGenes),
		NumCells:      nCells,
	}
	for g := 0; g < nGenes; g++ {
		var sum float64
		var detected int
		for j := 0; j < nCells; j++ {
			v := m.At(g, j)
			sum += v
			if v > 0 {
				detected++
			}
		}
		out.Mean[g] = sum / float64(nCells)
		out.DetectedCells[g] = detected
		out.Detected[g] = float64(detected) / float64(nCells) * 100
	}
	c.logger.Debug("gene metrics: %d genes", nGenes)
	return out, nil
}

func resolveGenes(m *matrix.CountMatrix, subset string, genes []string) ([]int, error) {
	rows := make([]int, 0, len(genes))
	seen := make(map[int]struct{}, len(genes))
	for _, id := range genes {
		g := m.GeneIndex(id)
		if g < 0 {
			return nil, errors.InvalidConfiguration("subset %q: gene %q not in matrix", subset, id)
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		rows = append(rows, g)
	}
	return rows, nil
}

func rowSum(m *matrix.CountMatrix, rows []int, cell int) float64 {
	var s float64
	for _, g := range rows {
		s += m.At(g, cell)
	}
	return s
}
