package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"scqc/domain/cluster"
	"scqc/domain/core"
	"scqc/domain/matrix"
	"scqc/domain/run"
	"scqc/internal/community"
	"scqc/internal/config"
	"scqc/internal/errors"
	"scqc/internal/graph"
	"scqc/internal/hierarchy"
	"scqc/internal/partition"
	"scqc/internal/selector"
	"scqc/ports"
)

// ClusteringReport holds every method's labeling of one embedding
type ClusteringReport struct {
	RunID     core.RunID
	Graph     *graph.NeighborGraph
	Labelings map[cluster.Method]*cluster.Labeling
	// Modularity is computed for the graph-based methods only
	Modularity map[cluster.Method]*cluster.ModularityMatrix
	Gap        *partition.GapResult
	Hierarchy  *hierarchy.Result
	Selected   *cluster.Selection
	Manifest   *run.Manifest
}

// OrderedLabelings returns the labelings in cluster.Methods order
func (r *ClusteringReport) OrderedLabelings() []*cluster.Labeling {
	out := make([]*cluster.Labeling, 0, len(r.Labelings))
	for _, m := range cluster.Methods {
		if l, ok := r.Labelings[m]; ok {
			out = append(out, l)
		}
	}
	return out
}

// ClusteringService runs the four clustering methods and selects one
type ClusteringService struct {
	cfg    *config.Config
	runner *StageRunner
	repo   ports.RunRepository
}

// NewClusteringService creates a clustering service from a validated configuration
func NewClusteringService(cfg *config.Config, deps Deps) *ClusteringService {
	runner := deps.Runner
	if runner == nil {
		runner = NewStageRunner(nil, nil)
	}
	return &ClusteringService{cfg: cfg, runner: runner, repo: deps.Repository}
}

// Run builds the neighbour graph, then runs walktrap and Louvain on it while
// k-means and hierarchical clustering work on the embedding directly.
func (s *ClusteringService) Run(ctx context.Context, emb *matrix.Embedding) (*ClusteringReport, error) {
	if emb == nil {
		return nil, errors.EmptyMatrix("no embedding")
	}
	cfgHash, err := s.cfg.Hash()
	if err != nil {
		return nil, err
	}
	scheme, err := graph.ParseScheme(s.cfg.Graph.WeightScheme)
	if err != nil {
		return nil, err
	}
	logger := s.runner.Logger()
	workers := s.cfg.Runtime.Workers

	report := &ClusteringReport{
		Labelings:  make(map[cluster.Method]*cluster.Labeling, len(cluster.Methods)),
		Modularity: make(map[cluster.Method]*cluster.ModularityMatrix, 2),
	}

	err = s.runner.Run(ctx, StageGraph, func() error {
		var err error
		report.Graph, err = graph.BuildSNN(emb, graph.Options{
			K:       s.cfg.Graph.KNeighbors,
			Scheme:  scheme,
			Workers: workers,
			Logger:  logger,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var walktrap, louvain, kmeans *cluster.Labeling
	var wtMod, lvMod *cluster.ModularityMatrix
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.runner.Run(gctx, string(cluster.MethodWalktrap), func() error {
			var err error
			walktrap, err = community.Walktrap(report.Graph, community.WalktrapOptions{
				Steps:   s.cfg.Walktrap.Steps,
				Workers: workers,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			wtMod, err = community.Modularity(report.Graph, walktrap)
			return err
		})
	})
	g.Go(func() error {
		return s.runner.Run(gctx, string(cluster.MethodLouvain), func() error {
			var err error
			louvain, err = community.Louvain(report.Graph, community.LouvainOptions{
				Seed:       s.cfg.Louvain.Seed,
				Resolution: s.cfg.Louvain.Resolution,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			lvMod, err = community.Modularity(report.Graph, louvain)
			return err
		})
	})
	g.Go(func() error {
		return s.runner.Run(gctx, string(cluster.MethodKMeans), func() error {
			var err error
			kmeans, report.Gap, err = partition.Cluster(emb, partition.Options{
				KMax:       s.cfg.KMeans.KMax,
				References: s.cfg.KMeans.References,
				NStart:     s.cfg.KMeans.NStart,
				Seed:       s.cfg.KMeans.Seed,
				Workers:    workers,
				Logger:     logger,
			})
			return err
		})
	})
	g.Go(func() error {
		return s.runner.Run(gctx, string(cluster.MethodHClust), func() error {
			var err error
			report.Hierarchy, err = hierarchy.Cluster(emb, hierarchy.Options{
				CutOptions: hierarchy.CutOptions{
					MinClusterSize: s.cfg.HClust.MinClusterSize,
					DeepSplit:      s.cfg.HClust.DeepSplit,
				},
				Workers: workers,
				Logger:  logger,
			})
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Labelings[cluster.MethodWalktrap] = walktrap
	report.Labelings[cluster.MethodLouvain] = louvain
	report.Labelings[cluster.MethodKMeans] = kmeans
	report.Labelings[cluster.MethodHClust] = report.Hierarchy.Labeling
	report.Modularity[cluster.MethodWalktrap] = wtMod
	report.Modularity[cluster.MethodLouvain] = lvMod

	rec := s.runner.Recorder()
	for method, l := range report.Labelings {
		rec.SetClusters(string(method), l.NumClusters())
	}
	rec.SetMeanSilhouette(report.Hierarchy.MeanSilhouette)

	err = s.runner.Run(ctx, StageSelect, func() error {
		var err error
		report.Selected, err = selector.Select(report.Labelings, cluster.Method(s.cfg.Cluster.SelectedMethod), emb.NumCells())
		return err
	})
	if err != nil {
		return nil, err
	}
	if n := report.Selected.Unassigned; n > 0 {
		logger.Warn("selected %s labeling leaves %d of %d cells unassigned", report.Selected.Method, n, emb.NumCells())
	}

	report.Manifest = s.manifest(report, cfgHash, emb)
	report.RunID = report.Manifest.RunID
	if err := persist(ctx, s.runner, s.repo, report.Manifest); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ClusteringService) manifest(report *ClusteringReport, cfgHash core.Hash, emb *matrix.Embedding) *run.Manifest {
	man := run.NewManifest(run.KindCluster, cfgHash, Version)
	man.NumCells = emb.NumCells()
	for _, l := range report.OrderedLabelings() {
		man.AddArtifact(core.ArtifactLabeling, string(l.Method()), l.Fingerprint(), l.NumClusters())
		man.Summary["clusters_"+string(l.Method())] = float64(l.NumClusters())
	}
	for _, method := range []cluster.Method{cluster.MethodWalktrap, cluster.MethodLouvain} {
		mm := report.Modularity[method]
		man.AddArtifact(core.ArtifactModularity, string(method), core.HashFloats(string(method), flatten(mm.Values)), len(mm.Clusters))
	}
	man.Summary["graph_edges"] = float64(report.Graph.NumEdges())
	man.Summary["gap_k"] = float64(report.Gap.K)
	man.Summary["hclust_mean_silhouette"] = report.Hierarchy.MeanSilhouette
	man.Seal()
	return man
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
