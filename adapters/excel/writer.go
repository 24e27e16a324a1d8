package excel

import (
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"scqc/domain/cluster"
	"scqc/domain/qc"
	"scqc/internal/agreement"
	"scqc/internal/errors"
	"scqc/internal/metrics"
	"scqc/internal/partition"
	"scqc/internal/policy"
)

// Workbook collects result tables, one sheet each, and saves them as xlsx
type Workbook struct {
	f      *excelize.File
	sheets []string
}

// NewWorkbook starts an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

// Sheets lists the sheets added so far
func (w *Workbook) Sheets() []string { return append([]string(nil), w.sheets...) }

// AddSheet writes a header and rows to a new sheet
func (w *Workbook) AddSheet(name string, header []string, rows [][]interface{}) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return errors.Wrapf(err, "failed to add sheet %s", name)
	}
	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := w.f.SetSheetRow(name, "A1", &head); err != nil {
		return errors.Wrapf(err, "failed to write %s header", name)
	}
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell address")
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		if err := w.f.SetSheetRow(name, addr, &values); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", name, i+2)
		}
	}
	w.sheets = append(w.sheets, name)
	return nil
}

// cellValue renders non-finite numbers as text
func cellValue(v interface{}) interface{} {
	f, ok := v.(float64)
	if !ok || !(math.IsNaN(f) || math.IsInf(f, 0)) {
		return v
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// AddCellMetrics writes one row per cell with its metrics and the flag of
// each mask
func (w *Workbook) AddCellMetrics(m *qc.CellMetrics, masks []*qc.DiscardMask) error {
	subsets := m.SubsetNames()
	header := []string{"cell", "sum", "detected"}
	for _, s := range subsets {
		header = append(header, "subset_percent_"+s)
	}
	if m.HasAltExp {
		header = append(header, "altexp_percent")
	}
	for _, mask := range masks {
		header = append(header, "discard_"+string(mask.Policy()))
	}
	rows := make([][]interface{}, m.Len())
	for i := range rows {
		row := []interface{}{m.Cells[i], m.Sum[i], m.Detected[i]}
		for _, s := range subsets {
			row = append(row, m.SubsetPercent[s][i])
		}
		if m.HasAltExp {
			row = append(row, m.AltExpPercent[i])
		}
		for _, mask := range masks {
			row = append(row, mask.At(i))
		}
		rows[i] = row
	}
	return w.AddSheet("cell_qc", header, rows)
}

// AddDiscardReasons lists every discarded cell with the metrics that
// triggered each policy
func (w *Workbook) AddDiscardReasons(cells []string, masks []*qc.DiscardMask) error {
	var rows [][]interface{}
	for _, mask := range masks {
		for i := 0; i < mask.Len(); i++ {
			if mask.At(i) {
				rows = append(rows, []interface{}{cells[i], string(mask.Policy()), strings.Join(mask.Reasons(i), ",")})
			}
		}
	}
	return w.AddSheet("discard_reasons", []string{"cell", "policy", "reasons"}, rows)
}

// AddGeneMetrics writes one row per gene
func (w *Workbook) AddGeneMetrics(m *qc.GeneMetrics, masks []*qc.DiscardMask) error {
	header := []string{"gene", "mean", "detected_percent", "detected_cells"}
	for _, mask := range masks {
		header = append(header, "discard_"+string(mask.Policy()))
	}
	rows := make([][]interface{}, m.Len())
	for i := range rows {
		row := []interface{}{m.Genes[i], m.Mean[i], m.Detected[i], m.DetectedCells[i]}
		for _, mask := range masks {
			row = append(row, mask.At(i))
		}
		rows[i] = row
	}
	return w.AddSheet("gene_qc", header, rows)
}

// AddThresholds writes the adaptive cutoffs
func (w *Workbook) AddThresholds(ths []policy.MetricThreshold) error {
	rows := make([][]interface{}, len(ths))
	for i, t := range ths {
		rows[i] = []interface{}{t.Metric, t.Batch, string(t.Direction), t.Median, t.MAD, t.Lower, t.Higher}
	}
	return w.AddSheet("thresholds", []string{"metric", "batch", "direction", "median", "mad", "lower", "higher"}, rows)
}

// AddSummaries writes one distribution summary per named metric
func (w *Workbook) AddSummaries(names []string, summaries []metrics.Summary) error {
	rows := make([][]interface{}, len(names))
	for i, s := range summaries {
		rows[i] = []interface{}{names[i], s.N, s.Mean, s.StdDev, s.Min, s.Q25, s.Median, s.Q75, s.Max, s.MAD, s.Skewness, s.IQROutliers}
	}
	header := []string{"metric", "n", "mean", "sd", "min", "q25", "median", "q75", "max", "mad", "skewness", "iqr_outliers"}
	return w.AddSheet("metric_summary", header, rows)
}

// AddAgreement writes the overlap table of one axis
func (w *Workbook) AddAgreement(name string, t *agreement.Table) error {
	rows := make([][]interface{}, 0, len(t.Bins))
	for _, b := range t.Bins {
		members := make([]string, len(b.Members))
		for i, m := range b.Members {
			members[i] = string(m)
		}
		label := strings.Join(members, "+")
		if label == "" {
			label = "kept_by_all"
		}
		rows = append(rows, []interface{}{label, b.Count})
	}
	return w.AddSheet(name, []string{"discarded_by", "count"}, rows)
}

// AddLabelings writes one column per method; the selected method is marked
func (w *Workbook) AddLabelings(labelings []*cluster.Labeling, selected cluster.Method) error {
	if len(labelings) == 0 {
		return errors.EmptyResult("no labelings to write")
	}
	header := []string{"cell"}
	for _, l := range labelings {
		name := string(l.Method())
		if l.Method() == selected {
			name += " (selected)"
		}
		header = append(header, name)
	}
	cells := labelings[0].Cells()
	rows := make([][]interface{}, len(cells))
	for i, c := range cells {
		row := []interface{}{c}
		for _, l := range labelings {
			row = append(row, l.At(i))
		}
		rows[i] = row
	}
	return w.AddSheet("clusters", header, rows)
}

// AddModularity writes a cluster × cluster ratio matrix
func (w *Workbook) AddModularity(m *cluster.ModularityMatrix) error {
	header := []string{"cluster"}
	for _, c := range m.Clusters {
		header = append(header, strconv.Itoa(c))
	}
	rows := make([][]interface{}, len(m.Clusters))
	for i, c := range m.Clusters {
		row := []interface{}{c}
		for _, v := range m.Values[i] {
			row = append(row, v)
		}
		rows[i] = row
	}
	return w.AddSheet("modularity_"+string(m.Method), header, rows)
}

// AddGap writes the gap statistic curve
func (w *Workbook) AddGap(g *partition.GapResult) error {
	rows := make([][]interface{}, len(g.Gap))
	for i := range g.Gap {
		rows[i] = []interface{}{i + 1, g.LogW[i], g.ExpLogW[i], g.Gap[i], g.SE[i], i+1 == g.K}
	}
	return w.AddSheet("gap", []string{"k", "log_w", "expected_log_w", "gap", "se", "selected"}, rows)
}

// Save drops the placeholder sheet and writes the workbook
func (w *Workbook) Save(path string) error {
	if len(w.sheets) == 0 {
		return errors.EmptyResult("workbook has no sheets")
	}
	if err := w.f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "failed to drop placeholder sheet")
	}
	idx, err := w.f.GetSheetIndex(w.sheets[0])
	if err == nil && idx >= 0 {
		w.f.SetActiveSheet(idx)
	}
	if err := w.f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save workbook %s", path)
	}
	return w.f.Close()
}
