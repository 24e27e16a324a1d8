package policy

import (
	"math"

	"scqc/domain/qc"
	"scqc/internal/errors"
)

// Manual discards cells violating any of four fixed cutoffs
type Manual struct {
	MinSum           float64 `yaml:"min_sum" json:"min_sum"`
	MinDetected      float64 `yaml:"min_detected" json:"min_detected"`
	MaxSubsetPercent float64 `yaml:"max_subset_percent" json:"max_subset_percent"`
	MaxAltExpPercent float64 `yaml:"max_altexp_percent" json:"max_altexp_percent"`
}

// Name implements CellPolicy
func (p *Manual) Name() qc.PolicyName { return qc.PolicyManual }

// Validate rejects negative or non-finite cutoffs
func (p *Manual) Validate() error {
	cutoffs := []struct {
		name  string
		value float64
	}{
		{"min_sum", p.MinSum},
		{"min_detected", p.MinDetected},
		{"max_subset_percent", p.MaxSubsetPercent},
		{"max_altexp_percent", p.MaxAltExpPercent},
	}
	for _, c := range cutoffs {
		if c.value < 0 || math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return errors.InvalidConfiguration("manual.%s must be a non-negative number, got %v", c.name, c.value)
		}
	}
	return nil
}

// Evaluate flags a cell when sum < MinSum, detected < MinDetected, any subset
// percentage > MaxSubsetPercent, or the spike-in percentage > MaxAltExpPercent.
func (p *Manual) Evaluate(m *qc.CellMetrics) (*qc.DiscardMask, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkCellMetrics(m); err != nil {
		return nil, err
	}

	b := newReasonBuilder(m.Len())
	subsets := m.SubsetNames()
	for i := 0; i < m.Len(); i++ {
		if m.Sum[i] < p.MinSum {
			b.add(i, ReasonLowSum)
		}
		if m.Detected[i] < p.MinDetected {
			b.add(i, ReasonLowDetected)
		}
		for _, name := range subsets {
			if m.SubsetPercent[name][i] > p.MaxSubsetPercent {
				b.add(i, ReasonHighSubset(name))
			}
		}
		if m.AltExpPercent[i] > p.MaxAltExpPercent {
			b.add(i, ReasonHighAltExp)
		}
	}
	return b.mask(qc.PolicyManual), nil
}
