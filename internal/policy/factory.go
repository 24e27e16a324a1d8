package policy

import (
	"sort"
	"strings"
	"sync"

	"scqc/domain/qc"
	"scqc/internal/errors"
)

// Config holds the settings of every built-in policy
type Config struct {
	Manual       Manual       `yaml:"manual" json:"manual"`
	Adaptive     Adaptive     `yaml:"adaptive" json:"adaptive"`
	Outlier      Outlier      `yaml:"outlier" json:"outlier"`
	LowAbundance LowAbundance `yaml:"-" json:"low_abundance"`
	LowFrequency LowFrequency `yaml:"-" json:"low_frequency"`
}

// DefaultConfig returns the defaults of the reference workflow
func DefaultConfig() Config {
	seed := int64(42)
	return Config{
		Manual: Manual{
			MinSum:           1e5,
			MinDetected:      5e3,
			MaxSubsetPercent: 10,
			MaxAltExpPercent: 10,
		},
		Adaptive:     Adaptive{NMADs: DefaultMADMultiplier},
		Outlier:      Outlier{NMADs: DefaultMADMultiplier, Seed: &seed},
		LowAbundance: LowAbundance{MinMean: DefaultMinMean},
		LowFrequency: LowFrequency{MinFractionCells: DefaultMinFractionCells},
	}
}

// DefaultCellPolicy is the policy whose mask filters the matrix unless
// configured otherwise
const DefaultCellPolicy = qc.PolicyAdaptive

// CellPolicyFactory builds a configured cell policy
type CellPolicyFactory func(cfg Config) (CellPolicy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]CellPolicyFactory{
		string(qc.PolicyManual): func(cfg Config) (CellPolicy, error) {
			p := cfg.Manual
			return &p, p.Validate()
		},
		string(qc.PolicyAdaptive): func(cfg Config) (CellPolicy, error) {
			p := cfg.Adaptive
			return &p, p.Validate()
		},
		string(qc.PolicyOutlier): func(cfg Config) (CellPolicy, error) {
			p := cfg.Outlier
			return &p, p.Validate()
		},
	}
)

// RegisterCellPolicy adds or replaces a named cell policy
func RegisterCellPolicy(name string, factory CellPolicyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(name)] = factory
}

// GetCellPolicyFactory returns the configured policy registered under name
func GetCellPolicyFactory(name string, cfg Config) (CellPolicy, error) {
	registryMu.RLock()
	factory, ok := registry[normalize(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.InvalidConfiguration("unknown cell policy: %s", name)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CellPolicyNames lists the registered policies in sorted order
func CellPolicyNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenePolicies returns the two gene policies built from cfg
func GenePolicies(cfg Config) []GenePolicy {
	abundance, frequency := cfg.LowAbundance, cfg.LowFrequency
	return []GenePolicy{&abundance, &frequency}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
