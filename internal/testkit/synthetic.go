package testkit

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"scqc/domain/matrix"
)

// LowLibraryConfig configures a count matrix where a few cells have a much
// smaller library than the rest
type LowLibraryConfig struct {
	Cells    int   `json:"cells"`
	Genes    int   `json:"genes"`
	LowCells []int `json:"low_cells"`
}

// DefaultLowLibraryConfig returns 100 cells × 50 genes with 5 damaged cells
func DefaultLowLibraryConfig() LowLibraryConfig {
	return LowLibraryConfig{
		Cells:    100,
		Genes:    50,
		LowCells: []int{3, 27, 51, 75, 99},
	}
}

// LowLibraryCounts builds the matrix described by cfg. Healthy cells have
// per-gene counts around a cell-specific level between 20 and 38, so their
// totals lie within a factor of two of each other; low cells sit around 3,
// roughly ten times lower. Every gene is detected in every cell.
func LowLibraryCounts(cfg LowLibraryConfig) (*matrix.CountMatrix, error) {
	low := make(map[int]bool, len(cfg.LowCells))
	for _, c := range cfg.LowCells {
		low[c] = true
	}

	level := make([]float64, cfg.Cells)
	healthy := 0
	for j := range level {
		if low[j] {
			level[j] = 3
			continue
		}
		level[j] = float64(20 + healthy%19)
		healthy++
	}

	rows := make([][]float64, cfg.Genes)
	for g := range rows {
		rows[g] = make([]float64, cfg.Cells)
		for j := range rows[g] {
			rows[g][j] = level[j] + float64(g%3) - 1
		}
	}
	return matrix.NewCountMatrix(ids("gene", cfg.Genes), ids("cell", cfg.Cells), rows)
}

// BlobsConfig configures isotropic Gaussian clusters in embedding space
type BlobsConfig struct {
	Centers [][]float64 `json:"centers"`
	PerBlob int         `json:"per_blob"`
	SD      float64     `json:"sd"`
	Seed    uint64      `json:"seed"`
}

// DefaultBlobsConfig returns three well-separated blobs in five dimensions
func DefaultBlobsConfig() BlobsConfig {
	return BlobsConfig{
		Centers: [][]float64{
			{0, 0, 0, 0, 0},
			{20, 0, 5, 0, 0},
			{0, 20, 0, -5, 0},
		},
		PerBlob: 50,
		SD:      1,
		Seed:    2024,
	}
}

// Blobs samples the configured clusters. Points are emitted blob by blob and
// truth holds each point's blob index.
func Blobs(cfg BlobsConfig) (*matrix.Embedding, []int, error) {
	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed))
	n := len(cfg.Centers) * cfg.PerBlob
	rows := make([][]float64, 0, n)
	truth := make([]int, 0, n)
	for b, center := range cfg.Centers {
		for i := 0; i < cfg.PerBlob; i++ {
			row := make([]float64, len(center))
			for d, c := range center {
				row[d] = c + cfg.SD*r.NormFloat64()
			}
			rows = append(rows, row)
			truth = append(truth, b)
		}
	}
	emb, err := matrix.NewEmbedding(ids("cell", n), rows)
	if err != nil {
		return nil, nil, err
	}
	return emb, truth, nil
}

// GroupCountsConfig configures a count matrix with cell groups that each
// over-express their own block of marker genes
type GroupCountsConfig struct {
	Groups        int     `json:"groups"`
	CellsPerGroup int     `json:"cells_per_group"`
	GenesPerGroup int     `json:"genes_per_group"`
	Background    float64 `json:"background"`
	Marker        float64 `json:"marker"`
	Seed          uint64  `json:"seed"`
}

// DefaultGroupCountsConfig returns three groups of 40 cells
func DefaultGroupCountsConfig() GroupCountsConfig {
	return GroupCountsConfig{
		Groups:        3,
		CellsPerGroup: 40,
		GenesPerGroup: 20,
		Background:    2,
		Marker:        40,
		Seed:          7,
	}
}

// GroupCounts draws Poisson counts: marker genes of a cell's own group use
// the Marker rate, every other gene the Background rate.
func GroupCounts(cfg GroupCountsConfig) (*matrix.CountMatrix, []int, error) {
	src := rand.NewPCG(cfg.Seed, cfg.Seed+1)
	nCells := cfg.Groups * cfg.CellsPerGroup
	nGenes := cfg.Groups * cfg.GenesPerGroup

	truth := make([]int, nCells)
	for j := range truth {
		truth[j] = j / cfg.CellsPerGroup
	}
	rows := make([][]float64, nGenes)
	for g := range rows {
		rows[g] = make([]float64, nCells)
		for j := range rows[g] {
			rate := cfg.Background
			if g/cfg.GenesPerGroup == truth[j] {
				rate = cfg.Marker
			}
			rows[g][j] = distuv.Poisson{Lambda: rate, Src: src}.Rand()
		}
	}
	m, err := matrix.NewCountMatrix(ids("gene", nGenes), ids("cell", nCells), rows)
	if err != nil {
		return nil, nil, err
	}
	return m, truth, nil
}

// Purity returns, for each true group, the largest share of its members that
// received one common label
func Purity(truth, labels []int) map[int]float64 {
	counts := make(map[int]map[int]int)
	sizes := make(map[int]int)
	for i, t := range truth {
		if counts[t] == nil {
			counts[t] = make(map[int]int)
		}
		counts[t][labels[i]]++
		sizes[t]++
	}
	out := make(map[int]float64, len(sizes))
	for t, byLabel := range counts {
		best := 0
		for _, c := range byLabel {
			if c > best {
				best = c
			}
		}
		out[t] = float64(best) / float64(sizes[t])
	}
	return out
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i+1)
	}
	return out
}
