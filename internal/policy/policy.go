// Package policy turns quality-control metrics into discard masks.
//
// Cell policies share one contract, (CellMetrics) -> DiscardMask, and are
// looked up by name through GetCellPolicyFactory. Gene policies work the same
// way over GeneMetrics.
package policy

import (
	"scqc/domain/qc"
)

// CellPolicy decides which cells to discard
type CellPolicy interface {
	Name() qc.PolicyName
	Evaluate(m *qc.CellMetrics) (*qc.DiscardMask, error)
}

// GenePolicy decides which genes to discard
type GenePolicy interface {
	Name() qc.PolicyName
	Evaluate(m *qc.GeneMetrics) (*qc.DiscardMask, error)
}

// Reason labels recorded on discarded cells
const (
	ReasonLowSum      = "low_sum"
	ReasonLowDetected = "low_detected"
	ReasonHighAltExp  = "high_altexp"
	ReasonOutlying    = "outlying"
)

// ReasonHighSubset labels a cell whose share of the named subset is too high
func ReasonHighSubset(subset string) string {
	return "high_" + subset
}

// reasonBuilder collects flags and reasons for one mask
type reasonBuilder struct {
	flags   []bool
	reasons [][]string
}

func newReasonBuilder(n int) *reasonBuilder {
	return &reasonBuilder{flags: make([]bool, n), reasons: make([][]string, n)}
}

func (b *reasonBuilder) add(i int, reason string) {
	b.flags[i] = true
	b.reasons[i] = append(b.reasons[i], reason)
}

func (b *reasonBuilder) mask(policy qc.PolicyName) *qc.DiscardMask {
	return qc.NewDiscardMaskWithReasons(policy, qc.AxisCells, b.flags, b.reasons)
}

func checkCellMetrics(m *qc.CellMetrics) error {
	if m == nil || m.Len() == 0 {
		return errEmptyMetrics
	}
	n := m.Len()
	if len(m.Sum) != n || len(m.Detected) != n || len(m.AltExpPercent) != n {
		return errMisaligned
	}
	for _, v := range m.SubsetPercent {
		if len(v) != n {
			return errMisaligned
		}
	}
	return nil
}
