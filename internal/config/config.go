// Package config loads engine settings from a YAML file with environment
// variable overrides.
package config

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"scqc/domain/cluster"
	"scqc/domain/core"
	"scqc/internal/errors"
	"scqc/internal/graph"
	"scqc/internal/hierarchy"
	"scqc/internal/partition"
	"scqc/internal/policy"
	"scqc/internal/selector"
)

// Config represents the complete engine configuration
type Config struct {
	QC       QCConfig        `yaml:"qc"`
	Manual   policy.Manual   `yaml:"manual"`
	Adaptive policy.Adaptive `yaml:"adaptive"`
	Outlier  policy.Outlier  `yaml:"outlier"`
	Gene     GeneConfig      `yaml:"gene"`
	Graph    GraphConfig     `yaml:"graph"`
	Walktrap WalktrapConfig  `yaml:"walktrap"`
	Louvain  LouvainConfig   `yaml:"louvain"`
	KMeans   KMeansConfig    `yaml:"kmeans"`
	HClust   HClustConfig    `yaml:"hclust"`
	Cluster  ClusterConfig   `yaml:"cluster"`
	Runtime  RuntimeConfig   `yaml:"runtime"`
	Database DatabaseConfig  `yaml:"database"`
}

// QCConfig picks the cell policy whose mask filters the matrix
type QCConfig struct {
	SelectedPolicy string `yaml:"selected_policy"`
}

// GeneConfig holds the gene filter thresholds
type GeneConfig struct {
	MinMean          float64 `yaml:"min_mean"`
	MinFractionCells float64 `yaml:"min_fraction_cells"`
}

// GraphConfig holds the neighbour graph settings
type GraphConfig struct {
	KNeighbors   int    `yaml:"k_neighbors"`
	WeightScheme string `yaml:"weight_scheme"`
}

// WalktrapConfig holds the random walk length
type WalktrapConfig struct {
	Steps int `yaml:"steps"`
}

// LouvainConfig holds Louvain settings
type LouvainConfig struct {
	Seed       *int64  `yaml:"seed"`
	Resolution float64 `yaml:"resolution"`
}

// KMeansConfig holds the gap statistic search settings
type KMeansConfig struct {
	KMax       int    `yaml:"k_max"`
	Seed       *int64 `yaml:"seed"`
	References int    `yaml:"references"`
	NStart     int    `yaml:"n_start"`
}

// HClustConfig holds hierarchical clustering settings
type HClustConfig struct {
	Linkage        string `yaml:"linkage"`
	MinClusterSize int    `yaml:"min_cluster_size"`
	DeepSplit      int    `yaml:"deep_split"`
}

// ClusterConfig picks the canonical labeling
type ClusterConfig struct {
	SelectedMethod string `yaml:"selected_method"`
}

// RuntimeConfig holds process settings
type RuntimeConfig struct {
	Workers     int    `yaml:"workers"`
	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file"`
}

// DatabaseConfig holds the optional run store; persistence is off when URL is empty
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Default returns the built-in settings
func Default() *Config {
	p := policy.DefaultConfig()
	louvainSeed, kmeansSeed := int64(42), int64(42)
	return &Config{
		QC:       QCConfig{SelectedPolicy: string(policy.DefaultCellPolicy)},
		Manual:   p.Manual,
		Adaptive: p.Adaptive,
		Outlier:  p.Outlier,
		Gene: GeneConfig{
			MinMean:          p.LowAbundance.MinMean,
			MinFractionCells: p.LowFrequency.MinFractionCells,
		},
		Graph:    GraphConfig{KNeighbors: graph.DefaultK, WeightScheme: string(graph.SchemeRank)},
		Walktrap: WalktrapConfig{Steps: 4},
		Louvain:  LouvainConfig{Seed: &louvainSeed, Resolution: 1},
		KMeans: KMeansConfig{
			KMax:       partition.DefaultKMax,
			Seed:       &kmeansSeed,
			References: partition.DefaultReferences,
			NStart:     partition.DefaultNStart,
		},
		HClust: HClustConfig{
			Linkage:        hierarchy.LinkageWard,
			MinClusterSize: hierarchy.DefaultMinClusterSize,
			DeepSplit:      hierarchy.DefaultDeepSplit,
		},
		Cluster: ClusterConfig{SelectedMethod: string(selector.DefaultMethod)},
		Runtime: RuntimeConfig{Workers: runtime.GOMAXPROCS(0), LogLevel: "info"},
	}
}

// Load reads configuration from environment variables over the defaults and
// validates it
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults, then applies environment
// overrides and validates. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without environment overrides or validation
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidConfiguration, errors.Wrap(err, "failed to parse config"))
	}
	return cfg, nil
}

// Validate checks every section and returns an INVALID_CONFIGURATION error
// naming the first bad key
func (c *Config) Validate() error {
	name := strings.ToLower(strings.TrimSpace(c.QC.SelectedPolicy))
	known := false
	for _, n := range policy.CellPolicyNames() {
		known = known || n == name
	}
	if !known {
		return errors.InvalidConfiguration("qc.selected_policy %q is not one of %v", c.QC.SelectedPolicy, policy.CellPolicyNames())
	}
	if err := c.Manual.Validate(); err != nil {
		return err
	}
	if err := c.Adaptive.Validate(); err != nil {
		return err
	}
	if err := c.Outlier.Validate(); err != nil {
		return err
	}
	if c.Gene.MinMean < 0 {
		return errors.InvalidConfiguration("gene.min_mean must not be negative, got %v", c.Gene.MinMean)
	}
	if c.Gene.MinFractionCells < 0 || c.Gene.MinFractionCells > 1 {
		return errors.InvalidConfiguration("gene.min_fraction_cells must be in [0, 1], got %v", c.Gene.MinFractionCells)
	}
	if c.Graph.KNeighbors < 1 {
		return errors.InvalidConfiguration("graph.k_neighbors must be at least 1, got %d", c.Graph.KNeighbors)
	}
	if _, err := graph.ParseScheme(c.Graph.WeightScheme); err != nil {
		return err
	}
	if c.Walktrap.Steps < 1 {
		return errors.InvalidConfiguration("walktrap.steps must be at least 1, got %d", c.Walktrap.Steps)
	}
	if c.Louvain.Seed == nil {
		return errors.InvalidConfiguration("louvain.seed is required")
	}
	if c.Louvain.Resolution <= 0 {
		return errors.InvalidConfiguration("louvain.resolution must be positive, got %v", c.Louvain.Resolution)
	}
	if c.KMeans.KMax < 1 {
		return errors.InvalidConfiguration("kmeans.k_max must be at least 1, got %d", c.KMeans.KMax)
	}
	if c.KMeans.Seed == nil {
		return errors.InvalidConfiguration("kmeans.seed is required")
	}
	if c.KMeans.References < 2 || c.KMeans.NStart < 1 {
		return errors.InvalidConfiguration("kmeans.references must be at least 2 and kmeans.n_start at least 1")
	}
	if c.HClust.Linkage != hierarchy.LinkageWard {
		return errors.InvalidConfiguration("hclust.linkage %q is not supported, only %q", c.HClust.Linkage, hierarchy.LinkageWard)
	}
	if c.HClust.MinClusterSize < 1 {
		return errors.InvalidConfiguration("hclust.min_cluster_size must be at least 1, got %d", c.HClust.MinClusterSize)
	}
	if c.HClust.DeepSplit < 0 || c.HClust.DeepSplit > 4 {
		return errors.InvalidConfiguration("hclust.deep_split must be in [0, 4], got %d", c.HClust.DeepSplit)
	}
	if _, err := cluster.ParseMethod(c.Cluster.SelectedMethod); err != nil {
		return err
	}
	if c.Runtime.Workers < 1 {
		return errors.InvalidConfiguration("runtime.workers must be at least 1, got %d", c.Runtime.Workers)
	}
	return nil
}

// PolicyConfig returns the policy settings with runtime workers applied
func (c *Config) PolicyConfig() policy.Config {
	p := policy.Config{
		Manual:       c.Manual,
		Adaptive:     c.Adaptive,
		Outlier:      c.Outlier,
		LowAbundance: policy.LowAbundance{MinMean: c.Gene.MinMean},
		LowFrequency: policy.LowFrequency{MinFractionCells: c.Gene.MinFractionCells},
	}
	p.Outlier.Workers = c.Runtime.Workers
	return p
}

// Hash fingerprints every setting that can change results. Runtime and
// database settings are left out.
func (c *Config) Hash() (core.Hash, error) {
	cp := *c
	cp.Runtime = RuntimeConfig{}
	cp.Database = DatabaseConfig{}
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode config")
	}
	return core.NewHash(data), nil
}

// envOverride maps one environment variable onto a config field
type envOverride struct {
	key string
	set func(c *Config, v string) error
}

var overrides = []envOverride{
	{"QC_SELECTED_POLICY", func(c *Config, v string) error { c.QC.SelectedPolicy = v; return nil }},
	{"QC_MANUAL_MIN_SUM", floatSetter(func(c *Config) *float64 { return &c.Manual.MinSum })},
	{"QC_MANUAL_MIN_DETECTED", floatSetter(func(c *Config) *float64 { return &c.Manual.MinDetected })},
	{"QC_MANUAL_MAX_SUBSET_PERCENT", floatSetter(func(c *Config) *float64 { return &c.Manual.MaxSubsetPercent })},
	{"QC_MANUAL_MAX_ALTEXP_PERCENT", floatSetter(func(c *Config) *float64 { return &c.Manual.MaxAltExpPercent })},
	{"QC_ADAPTIVE_MAD_MULTIPLIER", floatSetter(func(c *Config) *float64 { return &c.Adaptive.NMADs })},
	{"QC_ADAPTIVE_BATCH_KEY", func(c *Config, v string) error { c.Adaptive.BatchKey = v; return nil }},
	{"QC_OUTLIER_MAD_MULTIPLIER", floatSetter(func(c *Config) *float64 { return &c.Outlier.NMADs })},
	{"QC_OUTLIER_SEED", seedSetter(func(c *Config) **int64 { return &c.Outlier.Seed })},
	{"QC_GENE_MIN_MEAN", floatSetter(func(c *Config) *float64 { return &c.Gene.MinMean })},
	{"QC_GENE_MIN_FRACTION_CELLS", floatSetter(func(c *Config) *float64 { return &c.Gene.MinFractionCells })},
	{"QC_GRAPH_K_NEIGHBORS", intSetter(func(c *Config) *int { return &c.Graph.KNeighbors })},
	{"QC_GRAPH_WEIGHT_SCHEME", func(c *Config, v string) error { c.Graph.WeightScheme = v; return nil }},
	{"QC_WALKTRAP_STEPS", intSetter(func(c *Config) *int { return &c.Walktrap.Steps })},
	{"QC_LOUVAIN_SEED", seedSetter(func(c *Config) **int64 { return &c.Louvain.Seed })},
	{"QC_LOUVAIN_RESOLUTION", floatSetter(func(c *Config) *float64 { return &c.Louvain.Resolution })},
	{"QC_KMEANS_K_MAX", intSetter(func(c *Config) *int { return &c.KMeans.KMax })},
	{"QC_KMEANS_SEED", seedSetter(func(c *Config) **int64 { return &c.KMeans.Seed })},
	{"QC_KMEANS_REFERENCES", intSetter(func(c *Config) *int { return &c.KMeans.References })},
	{"QC_KMEANS_N_START", intSetter(func(c *Config) *int { return &c.KMeans.NStart })},
	{"QC_HCLUST_LINKAGE", func(c *Config, v string) error { c.HClust.Linkage = v; return nil }},
	{"QC_HCLUST_MIN_CLUSTER_SIZE", intSetter(func(c *Config) *int { return &c.HClust.MinClusterSize })},
	{"QC_HCLUST_DEEP_SPLIT", intSetter(func(c *Config) *int { return &c.HClust.DeepSplit })},
	{"QC_CLUSTER_SELECTED_METHOD", func(c *Config, v string) error { c.Cluster.SelectedMethod = v; return nil }},
	{"QC_RUNTIME_WORKERS", intSetter(func(c *Config) *int { return &c.Runtime.Workers })},
	{"QC_METRICS_FILE", func(c *Config, v string) error { c.Runtime.MetricsFile = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Runtime.LogLevel = v; return nil }},
	{"DATABASE_URL", func(c *Config, v string) error { c.Database.URL = v; return nil }},
}

// applyEnv overrides fields from set, non-empty environment variables
func (c *Config) applyEnv() error {
	for _, o := range overrides {
		v := strings.TrimSpace(os.Getenv(o.key))
		if v == "" {
			continue
		}
		if err := o.set(c, v); err != nil {
			return errors.InvalidConfiguration("%s=%q: %v", o.key, v, err)
		}
	}
	return nil
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = i
		return nil
	}
}

func seedSetter(field func(*Config) **int64) func(*Config, string) error {
	return func(c *Config, v string) error {
		s, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = &s
		return nil
	}
}
