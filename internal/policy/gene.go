package policy

import (
	"math"

	"scqc/domain/qc"
	"scqc/internal/errors"
)

// Gene policy defaults
const (
	DefaultMinMean          = 1.0
	DefaultMinFractionCells = 0.01
)

// LowAbundance discards genes whose mean count is below MinMean
type LowAbundance struct {
	MinMean float64 `yaml:"min_mean" json:"min_mean"`
}

// Name implements GenePolicy
func (p *LowAbundance) Name() qc.PolicyName { return qc.PolicyLowAbundance }

// Evaluate implements GenePolicy
func (p *LowAbundance) Evaluate(m *qc.GeneMetrics) (*qc.DiscardMask, error) {
	if p.MinMean < 0 || math.IsNaN(p.MinMean) {
		return nil, errors.InvalidConfiguration("gene.min_mean must be non-negative, got %v", p.MinMean)
	}
	if err := checkGeneMetrics(m); err != nil {
		return nil, err
	}
	flags := make([]bool, m.Len())
	for g, mean := range m.Mean {
		flags[g] = mean < p.MinMean
	}
	return qc.NewDiscardMask(qc.PolicyLowAbundance, qc.AxisGenes, flags), nil
}

// LowFrequency discards genes detected in fewer than
// ceil(MinFractionCells × cells) cells
type LowFrequency struct {
	MinFractionCells float64 `yaml:"min_fraction_cells" json:"min_fraction_cells"`
}

// Name implements GenePolicy
func (p *LowFrequency) Name() qc.PolicyName { return qc.PolicyLowFrequency }

// MinCells returns the smallest number of detecting cells a gene needs to be kept
func (p *LowFrequency) MinCells(nCells int) int {
	// the epsilon keeps 0.07*100 at 7 rather than 7.000000000000001
	return int(math.Ceil(p.MinFractionCells*float64(nCells) - 1e-9))
}

// Evaluate implements GenePolicy
func (p *LowFrequency) Evaluate(m *qc.GeneMetrics) (*qc.DiscardMask, error) {
	if p.MinFractionCells < 0 || p.MinFractionCells > 1 || math.IsNaN(p.MinFractionCells) {
		return nil, errors.InvalidConfiguration("gene.min_fraction_cells must be in [0, 1], got %v", p.MinFractionCells)
	}
	if err := checkGeneMetrics(m); err != nil {
		return nil, err
	}
	minCells := p.MinCells(m.NumCells)
	flags := make([]bool, m.Len())
	for g, detected := range m.DetectedCells {
		flags[g] = detected < minCells
	}
	return qc.NewDiscardMask(qc.PolicyLowFrequency, qc.AxisGenes, flags), nil
}

func checkGeneMetrics(m *qc.GeneMetrics) error {
	if m == nil || m.Len() == 0 || m.NumCells == 0 {
		return errors.EmptyMatrix("no genes to evaluate")
	}
	if len(m.Mean) != m.Len() || len(m.DetectedCells) != m.Len() {
		return errMisaligned
	}
	return nil
}
