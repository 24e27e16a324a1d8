// Package qc defines the per-cell and per-gene quality-control records and the
// discard masks the threshold policies produce from them.
package qc

import (
	"scqc/domain/core"
)

// Axis tells whether a mask is aligned to cells or to genes
type Axis string

const (
	AxisCells Axis = "cells"
	AxisGenes Axis = "genes"
)

// Subsets names groups of genes whose share of each cell's counts is reported.
// AltExp is the spike-in feature set; Genes holds the rest (e.g. "mito").
type Subsets struct {
	Genes  map[string][]string `json:"genes,omitempty" yaml:"genes"`
	AltExp []string            `json:"altexp,omitempty" yaml:"altexp"`
}

// CellMetrics holds one record per cell, keyed by position in Cells.
// INVARIANTS:
// - every slice has len(Cells) entries
// - SubsetPercent and AltExpPercent are 0 wherever Sum is 0
type CellMetrics struct {
	Cells         []string             `json:"cells"`
	Sum           []float64            `json:"sum"`
	Detected      []float64            `json:"detected"`
	SubsetPercent map[string][]float64 `json:"subset_percent"`
	AltExpPercent []float64            `json:"altexp_percent"`
	// HasAltExp is false when no spike-in features were designated
	HasAltExp bool `json:"has_altexp"`
}

// Len returns the number of cells
func (m *CellMetrics) Len() int { return len(m.Cells) }

// SubsetNames returns the subset names in a stable order
func (m *CellMetrics) SubsetNames() []string {
	return sortedKeys(m.SubsetPercent)
}

// SubsetPercentOf returns the named subset's percentages, or zeros when the
// subset is not present
func (m *CellMetrics) SubsetPercentOf(name string) []float64 {
	if v, ok := m.SubsetPercent[name]; ok {
		return v
	}
	return make([]float64, len(m.Cells))
}

// GeneMetrics holds one record per gene
type GeneMetrics struct {
	Genes []string `json:"genes"`
	// Mean count across all cells, zeros included
	Mean []float64 `json:"mean"`
	// Percentage of cells with a nonzero count
	Detected []float64 `json:"detected"`
	// Number of cells with a nonzero count
	DetectedCells []int `json:"detected_cells"`
	NumCells      int   `json:"num_cells"`
}

// Len returns the number of genes
func (m *GeneMetrics) Len() int { return len(m.Genes) }

// PolicyName identifies the policy that produced a mask
type PolicyName string

const (
	PolicyManual       PolicyName = "manual"
	PolicyAdaptive     PolicyName = "adaptive"
	PolicyOutlier      PolicyName = "outlier"
	PolicyLowAbundance PolicyName = "low_abundance"
	PolicyLowFrequency PolicyName = "low_frequency"
	// PolicyGeneFilter is the union of the gene policies
	PolicyGeneFilter PolicyName = "gene_filter"
)

// DiscardMask is a read-only boolean vector; true means discard.
type DiscardMask struct {
	policy  PolicyName
	axis    Axis
	flags   []bool
	reasons [][]string
}

// NewDiscardMask copies flags into a new mask.
func NewDiscardMask(policy PolicyName, axis Axis, flags []bool) *DiscardMask {
	return &DiscardMask{policy: policy, axis: axis, flags: append([]bool(nil), flags...)}
}

// NewDiscardMaskWithReasons copies flags and per-entry reasons.
// reasons may be nil; otherwise it must be aligned with flags.
func NewDiscardMaskWithReasons(policy PolicyName, axis Axis, flags []bool, reasons [][]string) *DiscardMask {
	m := NewDiscardMask(policy, axis, flags)
	if reasons != nil {
		m.reasons = make([][]string, len(reasons))
		for i, r := range reasons {
			m.reasons[i] = append([]string(nil), r...)
		}
	}
	return m
}

// Policy returns the producing policy
func (m *DiscardMask) Policy() PolicyName { return m.policy }

// Axis returns what the mask is aligned to
func (m *DiscardMask) Axis() Axis { return m.axis }

// Len returns the number of entries
func (m *DiscardMask) Len() int { return len(m.flags) }

// At reports whether entry i is discarded
func (m *DiscardMask) At(i int) bool { return m.flags[i] }

// Flags returns a copy of the flags
func (m *DiscardMask) Flags() []bool { return append([]bool(nil), m.flags...) }

// Reasons returns the metrics that triggered the discard of entry i, if recorded
func (m *DiscardMask) Reasons(i int) []string {
	if m.reasons == nil {
		return nil
	}
	return append([]string(nil), m.reasons[i]...)
}

// Count returns the number of discarded entries
func (m *DiscardMask) Count() int {
	n := 0
	for _, f := range m.flags {
		if f {
			n++
		}
	}
	return n
}

// Kept returns the indices of entries that are not discarded, in order
func (m *DiscardMask) Kept() []int {
	idx := make([]int, 0, len(m.flags)-m.Count())
	for i, f := range m.flags {
		if !f {
			idx = append(idx, i)
		}
	}
	return idx
}

// Fingerprint hashes the policy name and flags
func (m *DiscardMask) Fingerprint() core.Hash {
	return core.HashBools(string(m.policy)+"/"+string(m.axis), m.flags)
}

// Union returns a mask flagging every entry flagged by any of masks.
// All masks must share axis and length; the caller checks this.
func Union(policy PolicyName, masks ...*DiscardMask) *DiscardMask {
	if len(masks) == 0 {
		return nil
	}
	flags := make([]bool, masks[0].Len())
	for _, m := range masks {
		for i, f := range m.flags {
			flags[i] = flags[i] || f
		}
	}
	return NewDiscardMask(policy, masks[0].axis, flags)
}
