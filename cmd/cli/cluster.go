package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scqc/adapters/excel"
	"scqc/adapters/pca"
	"scqc/app"
	"scqc/domain/matrix"
	"scqc/internal/config"
)

func newClusterCmd(root *rootOptions) *cobra.Command {
	in := &inputOptions{}
	var out, embeddingPath, method string
	var components, kMax, kNeighbors int

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster cells with walktrap, Louvain, k-means and hierarchical clustering",
		Long: `Cluster cells from a precomputed embedding, or from a count matrix that is
first filtered by the QC pipeline and projected on its leading principal components.

Examples:
  scqc cluster --embedding pcs.csv --method walktrap --out clusters.xlsx
  scqc cluster --matrix counts.xlsx --mito-prefix MT- --components 10 --out clusters.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (embeddingPath == "") == (in.matrixPath == "") {
				return fmt.Errorf("exactly one of --embedding and --matrix is required")
			}
			s, err := root.open(cmd.Context(), cmd, func(cfg *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("method") {
					cfg.Cluster.SelectedMethod = method
				}
				if flags.Changed("k-max") {
					cfg.KMeans.KMax = kMax
				}
				if flags.Changed("k-neighbors") {
					cfg.Graph.KNeighbors = kNeighbors
				}
			})
			if err != nil {
				return err
			}
			defer s.close()

			wb := excel.NewWorkbook()
			var emb *matrix.Embedding
			if embeddingPath != "" {
				emb, err = excel.NewDataReader(embeddingPath, excel.Config{Sheet: in.sheet, Logger: s.logger}).ReadEmbedding()
				if err != nil {
					return err
				}
			} else {
				m, err := in.readMatrix(s.logger)
				if err != nil {
					return err
				}
				batches, err := in.batches(m, s.cfg.Adaptive.BatchKey, s.logger)
				if err != nil {
					return err
				}
				qcReport, err := app.NewQCService(s.cfg, s.deps()).Run(cmd.Context(), m, in.subsets(m), batches)
				if err != nil {
					return err
				}
				printQC(qcReport)
				if err := addQCSheets(wb, qcReport); err != nil {
					return err
				}
				projected, err := pca.Project(qcReport.Filtered, pca.Options{Components: components, Logger: s.logger})
				if err != nil {
					return err
				}
				emb = projected.Embedding
			}

			report, err := app.NewClusteringService(s.cfg, s.deps()).Run(cmd.Context(), emb)
			if err != nil {
				return err
			}
			printClusters(report)

			if out == "" {
				return nil
			}
			if err := addClusterSheets(wb, report); err != nil {
				return err
			}
			if err := wb.Save(out); err != nil {
				return err
			}
			fmt.Printf("Results written to %s\n", out)
			return nil
		},
	}

	bindInputs(cmd, in, false)
	f := cmd.Flags()
	f.StringVar(&embeddingPath, "embedding", "", "cells x dimensions embedding (xlsx or csv)")
	f.StringVar(&out, "out", "", "xlsx workbook for the results")
	f.StringVar(&method, "method", "", "labeling to select: walktrap, louvain, kmeans or hclust")
	f.IntVar(&components, "components", pca.DefaultComponents, "principal components kept when clustering a matrix")
	f.IntVar(&kMax, "k-max", 0, "largest k tried by the gap statistic")
	f.IntVar(&kNeighbors, "k-neighbors", 0, "neighbours per cell in the shared nearest neighbour graph")
	return cmd
}

func addClusterSheets(wb *excel.Workbook, r *app.ClusteringReport) error {
	if err := wb.AddLabelings(r.OrderedLabelings(), r.Selected.Method); err != nil {
		return err
	}
	for _, l := range r.OrderedLabelings() {
		if mm, ok := r.Modularity[l.Method()]; ok {
			if err := wb.AddModularity(mm); err != nil {
				return err
			}
		}
	}
	return wb.AddGap(r.Gap)
}

func printClusters(r *app.ClusteringReport) {
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("Graph: %d cells, %d edges\n", r.Graph.NumNodes(), r.Graph.NumEdges())
	for _, l := range r.OrderedLabelings() {
		marker := ""
		if l.Method() == r.Selected.Method {
			marker = " (selected)"
		}
		fmt.Printf("  %-9s %d clusters%s\n", l.Method(), l.NumClusters(), marker)
	}
	fmt.Printf("Gap statistic chose k=%d; hierarchical mean silhouette %.3f\n", r.Gap.K, r.Hierarchy.MeanSilhouette)
}
