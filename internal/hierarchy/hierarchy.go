// Package hierarchy clusters embeddings by Ward linkage and a dynamic
// branch cut, and scores the result with silhouette widths.
package hierarchy

import (
	"time"

	"scqc/domain/cluster"
	"scqc/domain/matrix"
	"scqc/internal"
)

// LinkageWard is the only supported linkage
const LinkageWard = "ward"

// Options configure Cluster
type Options struct {
	CutOptions `yaml:",inline"`
	Workers    int              `json:"-" yaml:"-"`
	Logger     *internal.Logger `json:"-" yaml:"-"`
}

// DefaultOptions returns minClusterSize 20 and deepSplit 2
func DefaultOptions() Options {
	return Options{CutOptions: CutOptions{MinClusterSize: DefaultMinClusterSize, DeepSplit: DefaultDeepSplit}}
}

// Result carries the labeling with its dendrogram and diagnostics
type Result struct {
	Labeling       *cluster.Labeling
	Linkage        *Linkage
	CutHeight      float64
	Silhouette     []float64
	MeanSilhouette float64
}

// Cluster runs Ward linkage on Euclidean distances, cuts the tree
// dynamically and computes silhouettes
func Cluster(emb *matrix.Embedding, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	start := time.Now()

	dist, err := Distances(emb, opts.Workers)
	if err != nil {
		return nil, err
	}
	link, err := WardLinkage(dist)
	if err != nil {
		return nil, err
	}
	cut, err := CutDynamic(link, dist, opts.CutOptions)
	if err != nil {
		return nil, err
	}
	widths, mean, err := Silhouette(dist, cut.Labels)
	if err != nil {
		return nil, err
	}
	labels, err := cluster.NewLabeling(cluster.MethodHClust, emb.Cells(), cut.Labels)
	if err != nil {
		return nil, err
	}

	logger.Info("hclust: %d clusters, %d cells reassigned, %d unassigned, mean silhouette %.3f, %s",
		labels.NumClusters(), cut.Reassigned, labels.Sizes()[cluster.Unassigned], mean, time.Since(start))
	return &Result{
		Labeling:       labels,
		Linkage:        link,
		CutHeight:      cut.CutHeight,
		Silhouette:     widths,
		MeanSilhouette: mean,
	}, nil
}
