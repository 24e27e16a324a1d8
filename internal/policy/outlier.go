package policy

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"scqc/domain/qc"
	"scqc/internal/errors"
	"scqc/internal/policy/outlyingness"
)

// Outlier flags cells whose multivariate adjusted outlyingness over
// [log sum, log detected, subset percentages, spike-in percentage] is a
// high-side MAD outlier.
type Outlier struct {
	NMADs   float64 `yaml:"mad_multiplier" json:"mad_multiplier"`
	Seed    *int64  `yaml:"seed" json:"seed"`
	Workers int     `yaml:"-" json:"-"`
}

// Name implements CellPolicy
func (p *Outlier) Name() qc.PolicyName { return qc.PolicyOutlier }

// Validate checks the multiplier and requires a seed
func (p *Outlier) Validate() error {
	if p.NMADs < 0 || math.IsNaN(p.NMADs) || math.IsInf(p.NMADs, 0) {
		return errors.InvalidConfiguration("outlier.mad_multiplier must be a non-negative number, got %v", p.NMADs)
	}
	if p.Seed == nil {
		return errNoSeed
	}
	return nil
}

// Evaluate implements CellPolicy
func (p *Outlier) Evaluate(m *qc.CellMetrics) (*qc.DiscardMask, error) {
	scores, err := p.Scores(m)
	if err != nil {
		return nil, err
	}
	flags, err := IsOutlier(scores, p.NMADs, Higher, nil)
	if err != nil {
		return nil, err
	}
	b := newReasonBuilder(m.Len())
	for i, f := range flags {
		if f {
			b.add(i, ReasonOutlying)
		}
	}
	return b.mask(qc.PolicyOutlier), nil
}

// Scores returns the outlyingness of every cell. Cells with an empty library
// cannot be placed in log space and score +Inf.
func (p *Outlier) Scores(m *qc.CellMetrics) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkCellMetrics(m); err != nil {
		return nil, err
	}

	columns := [][]float64{logValues(m.Sum), logValues(m.Detected)}
	for _, name := range m.SubsetNames() {
		columns = append(columns, m.SubsetPercent[name])
	}
	if m.HasAltExp {
		columns = append(columns, m.AltExpPercent)
	}

	n := m.Len()
	scores := make([]float64, n)
	var finite []int
	for i := 0; i < n; i++ {
		ok := true
		for _, col := range columns {
			if math.IsInf(col[i], 0) || math.IsNaN(col[i]) {
				ok = false
				break
			}
		}
		if ok {
			finite = append(finite, i)
		} else {
			scores[i] = math.Inf(1)
		}
	}
	if len(finite) == 0 {
		return scores, nil
	}

	x := mat.NewDense(len(finite), len(columns), nil)
	for r, i := range finite {
		for c, col := range columns {
			x.Set(r, c, col[i])
		}
	}
	ao, err := outlyingness.Score(x, outlyingness.Options{Seed: *p.Seed, Workers: p.Workers})
	if err != nil {
		return nil, errors.Wrap(err, "adjusted outlyingness")
	}
	for r, i := range finite {
		scores[i] = ao[r]
	}
	return scores, nil
}
