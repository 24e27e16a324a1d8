package app

import (
	"context"

	"scqc/domain/core"
	"scqc/domain/matrix"
	"scqc/domain/qc"
	"scqc/domain/run"
	"scqc/internal/agreement"
	"scqc/internal/config"
	"scqc/internal/errors"
	"scqc/internal/filter"
	"scqc/internal/metrics"
	"scqc/internal/policy"
	"scqc/ports"
)

// builtinCellPolicies are always evaluated, in this order
var builtinCellPolicies = []qc.PolicyName{qc.PolicyManual, qc.PolicyAdaptive, qc.PolicyOutlier}

// QCReport is everything the QC pipeline produces for one matrix
type QCReport struct {
	RunID       core.RunID
	CellMetrics *qc.CellMetrics
	GeneMetrics *qc.GeneMetrics
	// Summaries are keyed by metric column name
	Summaries  map[string]metrics.Summary
	Masks      map[qc.PolicyName]*qc.DiscardMask
	GeneMasks  []*qc.DiscardMask
	Thresholds []policy.MetricThreshold

	CellAgreement *agreement.Table
	GeneAgreement *agreement.Table
	// CellJaccard is indexed like CellAgreement.Policies
	CellJaccard [][]float64

	Selected qc.PolicyName
	GeneMask *qc.DiscardMask
	Filtered *matrix.CountMatrix
	Manifest *run.Manifest
}

// CellMasks returns the cell masks in reporting order
func (r *QCReport) CellMasks() []*qc.DiscardMask {
	out := make([]*qc.DiscardMask, 0, len(r.Masks))
	for _, name := range builtinCellPolicies {
		if m, ok := r.Masks[name]; ok {
			out = append(out, m)
		}
	}
	if m, ok := r.Masks[r.Selected]; ok && !isBuiltin(r.Selected) {
		out = append(out, m)
	}
	return out
}

// Deps are the optional collaborators of a service
type Deps struct {
	Runner *StageRunner
	// Repository persists run manifests when set
	Repository ports.RunRepository
}

// QCService runs metrics, policies, agreement and filtering
type QCService struct {
	cfg      *config.Config
	runner   *StageRunner
	repo     ports.RunRepository
	computer *metrics.Computer
}

// NewQCService creates a QC service from a validated configuration
func NewQCService(cfg *config.Config, deps Deps) *QCService {
	runner := deps.Runner
	if runner == nil {
		runner = NewStageRunner(nil, nil)
	}
	return &QCService{
		cfg:      cfg,
		runner:   runner,
		repo:     deps.Repository,
		computer: metrics.NewComputer(runner.Logger()),
	}
}

// Run computes metrics and masks for m and filters it with the selected cell
// policy and both gene policies. batches may be nil; otherwise it holds one
// batch label per cell and stratifies the adaptive policy.
func (s *QCService) Run(ctx context.Context, m *matrix.CountMatrix, subsets qc.Subsets, batches []string) (*QCReport, error) {
	if m == nil {
		return nil, errors.EmptyMatrix("no count matrix")
	}
	if batches != nil && len(batches) != m.NumCells() {
		return nil, errors.InvalidConfiguration("got %d batch labels for %d cells", len(batches), m.NumCells())
	}
	cfgHash, err := s.cfg.Hash()
	if err != nil {
		return nil, err
	}
	rec := s.runner.Recorder()
	report := &QCReport{
		Masks:    make(map[qc.PolicyName]*qc.DiscardMask),
		Selected: qc.PolicyName(s.cfg.QC.SelectedPolicy),
	}
	rec.SetEntries(string(qc.AxisCells), "input", m.NumCells())
	rec.SetEntries(string(qc.AxisGenes), "input", m.NumGenes())

	err = s.runner.Run(ctx, StageMetrics, func() error {
		var err error
		if report.CellMetrics, err = s.computer.ComputeCellMetrics(m, subsets); err != nil {
			return err
		}
		if report.GeneMetrics, err = s.computer.ComputeGeneMetrics(m); err != nil {
			return err
		}
		report.Summaries, err = summarize(report.CellMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.runner.Run(ctx, StagePolicies, func() error {
		return s.evaluatePolicies(report, batches)
	})
	if err != nil {
		return nil, err
	}

	err = s.runner.Run(ctx, StageAgreement, func() error {
		var err error
		cellMasks := report.CellMasks()
		if report.CellAgreement, err = agreement.Analyze(cellMasks...); err != nil {
			return err
		}
		if report.CellJaccard, err = agreement.PairwiseJaccard(cellMasks...); err != nil {
			return err
		}
		report.GeneAgreement, err = agreement.Analyze(report.GeneMasks...)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.runner.Run(ctx, StageFilter, func() error {
		var err error
		report.Filtered, err = filter.Apply(m, report.Masks[report.Selected], report.GeneMask)
		return err
	})
	if err != nil {
		return nil, err
	}
	rec.SetEntries(string(qc.AxisCells), "filtered", report.Filtered.NumCells())
	rec.SetEntries(string(qc.AxisGenes), "filtered", report.Filtered.NumGenes())

	report.Manifest = s.manifest(report, cfgHash, m)
	report.RunID = report.Manifest.RunID
	if err := persist(ctx, s.runner, s.repo, report.Manifest); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *QCService) evaluatePolicies(report *QCReport, batches []string) error {
	pcfg := s.cfg.PolicyConfig()
	pcfg.Adaptive.Batches = batches
	rec := s.runner.Recorder()

	names := append([]qc.PolicyName(nil), builtinCellPolicies...)
	if !isBuiltin(report.Selected) {
		names = append(names, report.Selected)
	}
	for _, name := range names {
		p, err := policy.GetCellPolicyFactory(string(name), pcfg)
		if err != nil {
			return err
		}
		mask, err := p.Evaluate(report.CellMetrics)
		if err != nil {
			return errors.Wrapf(err, "policy %s", name)
		}
		report.Masks[name] = mask
		rec.SetDiscarded(string(qc.AxisCells), string(name), mask.Count())
		s.runner.Logger().Info("policy %s: discards %d of %d cells", name, mask.Count(), mask.Len())
	}

	var err error
	if report.Thresholds, err = pcfg.Adaptive.Thresholds(report.CellMetrics); err != nil {
		return err
	}

	for _, p := range policy.GenePolicies(pcfg) {
		mask, err := p.Evaluate(report.GeneMetrics)
		if err != nil {
			return errors.Wrapf(err, "policy %s", p.Name())
		}
		report.GeneMasks = append(report.GeneMasks, mask)
		rec.SetDiscarded(string(qc.AxisGenes), string(p.Name()), mask.Count())
	}
	report.GeneMask = qc.Union(qc.PolicyGeneFilter, report.GeneMasks...)
	return nil
}

func (s *QCService) manifest(report *QCReport, cfgHash core.Hash, m *matrix.CountMatrix) *run.Manifest {
	man := run.NewManifest(run.KindQC, cfgHash, Version)
	man.NumGenes, man.NumCells = m.NumGenes(), m.NumCells()
	for _, mask := range report.CellMasks() {
		man.AddArtifact(core.ArtifactDiscardMask, string(mask.Policy()), mask.Fingerprint(), mask.Count())
	}
	for _, mask := range report.GeneMasks {
		man.AddArtifact(core.ArtifactDiscardMask, string(mask.Policy()), mask.Fingerprint(), mask.Count())
	}
	man.Summary["cells_kept"] = float64(report.Filtered.NumCells())
	man.Summary["genes_kept"] = float64(report.Filtered.NumGenes())
	man.Summary["cells_kept_by_all"] = float64(report.CellAgreement.KeptByAll())
	for name, sum := range report.Summaries {
		man.Summary["median_"+name] = sum.Median
	}
	man.Seal()
	return man
}

func summarize(m *qc.CellMetrics) (map[string]metrics.Summary, error) {
	columns := map[string][]float64{"sum": m.Sum, "detected": m.Detected}
	for _, name := range m.SubsetNames() {
		columns["subsets_"+name+"_percent"] = m.SubsetPercent[name]
	}
	if m.HasAltExp {
		columns["altexp_percent"] = m.AltExpPercent
	}
	out := make(map[string]metrics.Summary, len(columns))
	for name, values := range columns {
		sum, err := metrics.Summarize(values)
		if err != nil {
			return nil, errors.Wrapf(err, "summary of %s", name)
		}
		out[name] = sum
	}
	return out, nil
}

func isBuiltin(name qc.PolicyName) bool {
	for _, b := range builtinCellPolicies {
		if b == name {
			return true
		}
	}
	return false
}

// persist stores a manifest when a repository is configured
func persist(ctx context.Context, runner *StageRunner, repo ports.RunRepository, m *run.Manifest) error {
	if repo == nil {
		return nil
	}
	return runner.Run(ctx, StagePersist, func() error {
		return repo.SaveRun(ctx, m)
	})
}
