// Package agreement measures how the discard sets of competing policies
// overlap, as exact per-combination counts.
package agreement

import (
	"math/bits"

	"scqc/domain/qc"
	"scqc/internal/errors"
)

// maxMasks bounds the number of bins (2^maxMasks)
const maxMasks = 16

// Bin counts the entries discarded by exactly the masks in Members and kept
// by every other mask. The bin with no members holds the entries every
// policy keeps.
type Bin struct {
	Members []qc.PolicyName `json:"members"`
	Count   int             `json:"count"`
}

// Table is the exact overlap partition of a population
type Table struct {
	Axis     qc.Axis         `json:"axis"`
	Policies []qc.PolicyName `json:"policies"`
	// Bins are indexed by membership bitmask: bit i set means discarded by Policies[i]
	Bins  []Bin `json:"bins"`
	Total int   `json:"total"`
}

// Analyze assigns every entry to the bin of the masks that discard it.
// Masks must share axis and length and have distinct policy names.
func Analyze(masks ...*qc.DiscardMask) (*Table, error) {
	if err := check(masks); err != nil {
		return nil, err
	}
	m := len(masks)
	n := masks[0].Len()

	t := &Table{
		Axis:     masks[0].Axis(),
		Policies: make([]qc.PolicyName, m),
		Bins:     make([]Bin, 1<<m),
		Total:    n,
	}
	for i, mask := range masks {
		t.Policies[i] = mask.Policy()
	}
	for key := range t.Bins {
		members := make([]qc.PolicyName, 0, bits.OnesCount(uint(key)))
		for i := 0; i < m; i++ {
			if key&(1<<i) != 0 {
				members = append(members, t.Policies[i])
			}
		}
		t.Bins[key].Members = members
	}

	for e := 0; e < n; e++ {
		key := 0
		for i, mask := range masks {
			if mask.At(e) {
				key |= 1 << i
			}
		}
		t.Bins[key].Count++
	}
	return t, nil
}

// KeptByAll returns the number of entries no mask discards
func (t *Table) KeptByAll() int { return t.Bins[0].Count }

// Discarded returns how many entries the named policy discards
func (t *Table) Discarded(policy qc.PolicyName) int {
	i := t.index(policy)
	if i < 0 {
		return 0
	}
	total := 0
	for key, b := range t.Bins {
		if key&(1<<i) != 0 {
			total += b.Count
		}
	}
	return total
}

// Exclusive returns how many entries only the named policy discards
func (t *Table) Exclusive(policy qc.PolicyName) int {
	i := t.index(policy)
	if i < 0 {
		return 0
	}
	return t.Bins[1<<i].Count
}

// Count returns the size of the bin with exactly the given members
func (t *Table) Count(members ...qc.PolicyName) int {
	key := 0
	for _, p := range members {
		i := t.index(p)
		if i < 0 {
			return 0
		}
		key |= 1 << i
	}
	return t.Bins[key].Count
}

func (t *Table) index(policy qc.PolicyName) int {
	for i, p := range t.Policies {
		if p == policy {
			return i
		}
	}
	return -1
}

// PairwiseJaccard returns |A ∩ B| / |A ∪ B| for every pair of discard sets.
// Two empty sets have similarity 1.
func PairwiseJaccard(masks ...*qc.DiscardMask) ([][]float64, error) {
	if err := check(masks); err != nil {
		return nil, err
	}
	m := len(masks)
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, m)
	}
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			var inter, union int
			for e := 0; e < masks[i].Len(); e++ {
				a, b := masks[i].At(e), masks[j].At(e)
				if a && b {
					inter++
				}
				if a || b {
					union++
				}
			}
			v := 1.0
			if union > 0 {
				v = float64(inter) / float64(union)
			}
			out[i][j], out[j][i] = v, v
		}
	}
	return out, nil
}

func check(masks []*qc.DiscardMask) error {
	if len(masks) == 0 {
		return errors.InvalidConfiguration("agreement needs at least one mask")
	}
	if len(masks) > maxMasks {
		return errors.InvalidConfiguration("agreement supports at most %d masks, got %d", maxMasks, len(masks))
	}
	seen := make(map[qc.PolicyName]struct{}, len(masks))
	for _, mask := range masks {
		if mask == nil {
			return errors.InvalidConfiguration("nil mask")
		}
		if mask.Len() != masks[0].Len() || mask.Axis() != masks[0].Axis() {
			return errors.InvalidConfiguration("mask %s does not align with mask %s", mask.Policy(), masks[0].Policy())
		}
		if _, dup := seen[mask.Policy()]; dup {
			return errors.InvalidConfiguration("duplicate mask %s", mask.Policy())
		}
		seen[mask.Policy()] = struct{}{}
	}
	return nil
}
