package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"scqc/adapters/excel"
	"scqc/app"
	"scqc/internal/config"
	"scqc/internal/metrics"
)

func newQCCmd(root *rootOptions) *cobra.Command {
	in := &inputOptions{}
	var out, policyName string

	cmd := &cobra.Command{
		Use:   "qc",
		Short: "Compute QC metrics, discard masks and the filtered matrix",
		Long: `Compute per-cell and per-gene QC metrics, evaluate the manual, adaptive and
outlier cell policies plus both gene policies, and report their agreement.

Example: scqc qc --matrix counts.xlsx --mito-prefix MT- --spike-prefix ERCC- --out qc.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd.Context(), cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("policy") {
					cfg.QC.SelectedPolicy = policyName
				}
			})
			if err != nil {
				return err
			}
			defer s.close()

			m, err := in.readMatrix(s.logger)
			if err != nil {
				return err
			}
			batches, err := in.batches(m, s.cfg.Adaptive.BatchKey, s.logger)
			if err != nil {
				return err
			}
			report, err := app.NewQCService(s.cfg, s.deps()).Run(cmd.Context(), m, in.subsets(m), batches)
			if err != nil {
				return err
			}
			printQC(report)

			if out == "" {
				return nil
			}
			wb := excel.NewWorkbook()
			if err := addQCSheets(wb, report); err != nil {
				return err
			}
			if err := wb.Save(out); err != nil {
				return err
			}
			fmt.Printf("Results written to %s\n", out)
			return nil
		},
	}

	bindInputs(cmd, in, true)
	cmd.Flags().StringVar(&out, "out", "", "xlsx workbook for the results")
	cmd.Flags().StringVar(&policyName, "policy", "", "cell policy used to filter: manual, adaptive or outlier")
	return cmd
}

func bindInputs(cmd *cobra.Command, in *inputOptions, matrixRequired bool) {
	f := cmd.Flags()
	f.StringVar(&in.matrixPath, "matrix", "", "genes x cells count matrix (xlsx or csv)")
	f.StringVar(&in.sheet, "sheet", excel.DefaultSheet, "sheet holding the matrix")
	f.StringVar(&in.mitoPrefix, "mito-prefix", "", "gene name prefix of the mitochondrial subset")
	f.StringVar(&in.spikePrefix, "spike-prefix", "", "gene name prefix of spike-in features")
	f.StringVar(&in.annotationPath, "annotations", "", "cell annotation table with a cell id column")
	f.StringVar(&in.batchColumn, "batch-column", "", "annotation column with batch labels (default adaptive.batch_key)")
	if matrixRequired {
		_ = cmd.MarkFlagRequired("matrix")
	}
}

func addQCSheets(wb *excel.Workbook, r *app.QCReport) error {
	masks := r.CellMasks()
	if err := wb.AddCellMetrics(r.CellMetrics, masks); err != nil {
		return err
	}
	if err := wb.AddDiscardReasons(r.CellMetrics.Cells, masks); err != nil {
		return err
	}
	if err := wb.AddGeneMetrics(r.GeneMetrics, r.GeneMasks); err != nil {
		return err
	}
	if err := wb.AddThresholds(r.Thresholds); err != nil {
		return err
	}
	names := make([]string, 0, len(r.Summaries))
	for name := range r.Summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	summaries := make([]metrics.Summary, len(names))
	for i, name := range names {
		summaries[i] = r.Summaries[name]
	}
	if err := wb.AddSummaries(names, summaries); err != nil {
		return err
	}
	if err := wb.AddAgreement("cell_agreement", r.CellAgreement); err != nil {
		return err
	}
	return wb.AddAgreement("gene_agreement", r.GeneAgreement)
}

func printQC(r *app.QCReport) {
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("Cells: %d, genes: %d\n", r.CellMetrics.Len(), r.GeneMetrics.Len())
	for _, m := range r.CellMasks() {
		marker := ""
		if m.Policy() == r.Selected {
			marker = " (selected)"
		}
		fmt.Printf("  %-14s discards %d cells%s\n", m.Policy(), m.Count(), marker)
	}
	for _, m := range r.GeneMasks {
		fmt.Printf("  %-14s discards %d genes\n", m.Policy(), m.Count())
	}
	fmt.Printf("Kept by every cell policy: %d\n", r.CellAgreement.KeptByAll())
	fmt.Printf("Filtered matrix: %d genes x %d cells\n", r.Filtered.NumGenes(), r.Filtered.NumCells())
}
