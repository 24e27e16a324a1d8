package policy

import (
	"math"

	"scqc/domain/qc"
	"scqc/internal/errors"
)

// DefaultMADMultiplier is the number of scaled MADs used when none is configured
const DefaultMADMultiplier = 3.0

// Adaptive flags cells that are outliers on any single metric. Sum and
// detected are compared on the natural-log scale and flagged on the low side;
// subset and spike-in percentages are compared untransformed on the high side.
type Adaptive struct {
	NMADs float64 `yaml:"mad_multiplier" json:"mad_multiplier"`
	// BatchKey names the cell annotation holding batch labels; the caller
	// resolves it into Batches
	BatchKey string   `yaml:"batch_key" json:"batch_key,omitempty"`
	Batches  []string `yaml:"-" json:"-"`
}

// MetricThreshold is the cutoff applied to one metric within one batch
type MetricThreshold struct {
	Metric    string    `json:"metric"`
	Batch     string    `json:"batch,omitempty"`
	Direction Direction `json:"direction"`
	Threshold
}

type adaptiveMetric struct {
	name   string
	reason string
	dir    Direction
	values []float64
}

// Name implements CellPolicy
func (p *Adaptive) Name() qc.PolicyName { return qc.PolicyAdaptive }

// Validate checks the multiplier
func (p *Adaptive) Validate() error {
	if p.NMADs < 0 || math.IsNaN(p.NMADs) || math.IsInf(p.NMADs, 0) {
		return errors.InvalidConfiguration("adaptive.mad_multiplier must be a non-negative number, got %v", p.NMADs)
	}
	return nil
}

// Evaluate returns the OR of the per-metric outlier flags
func (p *Adaptive) Evaluate(m *qc.CellMetrics) (*qc.DiscardMask, error) {
	metrics, err := p.prepare(m)
	if err != nil {
		return nil, err
	}
	b := newReasonBuilder(m.Len())
	for _, am := range metrics {
		flags, err := IsOutlier(am.values, p.NMADs, am.dir, p.Batches)
		if err != nil {
			return nil, errors.Wrapf(err, "adaptive %s", am.name)
		}
		for i, f := range flags {
			if f {
				b.add(i, am.reason)
			}
		}
	}
	return b.mask(qc.PolicyAdaptive), nil
}

// Thresholds reports the cutoff used for every metric and batch, in the
// metric's own scale (log for sum and detected).
func (p *Adaptive) Thresholds(m *qc.CellMetrics) ([]MetricThreshold, error) {
	metrics, err := p.prepare(m)
	if err != nil {
		return nil, err
	}
	groups := groupByBatch(m.Len(), p.Batches)
	var out []MetricThreshold
	for _, am := range metrics {
		for _, group := range groups {
			sub := make([]float64, len(group))
			for i, idx := range group {
				sub[i] = am.values[idx]
			}
			t, err := ComputeThreshold(sub, p.NMADs)
			if err != nil {
				return nil, err
			}
			mt := MetricThreshold{Metric: am.name, Direction: am.dir, Threshold: t}
			if p.Batches != nil {
				mt.Batch = p.Batches[group[0]]
			}
			out = append(out, mt)
		}
	}
	return out, nil
}

func (p *Adaptive) prepare(m *qc.CellMetrics) ([]adaptiveMetric, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkCellMetrics(m); err != nil {
		return nil, err
	}
	if p.Batches != nil && len(p.Batches) != m.Len() {
		return nil, errors.InvalidConfiguration("adaptive: got %d batch labels for %d cells", len(p.Batches), m.Len())
	}

	metrics := []adaptiveMetric{
		{name: "log_sum", reason: ReasonLowSum, dir: Lower, values: logValues(m.Sum)},
		{name: "log_detected", reason: ReasonLowDetected, dir: Lower, values: logValues(m.Detected)},
	}
	for _, name := range m.SubsetNames() {
		metrics = append(metrics, adaptiveMetric{
			name:   "subset_percent_" + name,
			reason: ReasonHighSubset(name),
			dir:    Higher,
			values: m.SubsetPercent[name],
		})
	}
	if m.HasAltExp {
		metrics = append(metrics, adaptiveMetric{name: "altexp_percent", reason: ReasonHighAltExp, dir: Higher, values: m.AltExpPercent})
	}
	return metrics, nil
}

// logValues maps zero to -Inf, which IsOutlier treats as a low outlier
func logValues(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log(v)
	}
	return out
}
