// Package run describes one pipeline execution: its configuration, the
// artifacts it produced and a fingerprint for reproducibility audits.
package run

import (
	"fmt"
	"strings"
	"time"

	"scqc/domain/core"
	"scqc/internal/errors"
)

// Kind names the pipeline that produced a run
type Kind string

const (
	KindQC      Kind = "qc"
	KindCluster Kind = "cluster"
)

// ArtifactRef summarises one produced artifact
type ArtifactRef struct {
	Kind        core.ArtifactKind `json:"kind"`
	Name        string            `json:"name"`
	Fingerprint core.Hash         `json:"fingerprint"`
	// Count is artifact specific: discarded entries, clusters, ...
	Count int `json:"count"`
}

// Manifest is the persisted record of a run
type Manifest struct {
	RunID       core.RunID         `json:"run_id"`
	Kind        Kind               `json:"kind"`
	ConfigHash  core.Hash          `json:"config_hash"`
	CodeVersion string             `json:"code_version"`
	NumGenes    int                `json:"num_genes"`
	NumCells    int                `json:"num_cells"`
	Artifacts   []ArtifactRef      `json:"artifacts"`
	Summary     map[string]float64 `json:"summary"`
	// Fingerprint covers everything but RunID, Summary and CreatedAt, so two
	// runs over the same input and settings share it
	Fingerprint core.Hash `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewManifest starts a manifest with a fresh run id
func NewManifest(kind Kind, configHash core.Hash, codeVersion string) *Manifest {
	return &Manifest{
		RunID:       core.NewRunID(),
		Kind:        kind,
		ConfigHash:  configHash,
		CodeVersion: codeVersion,
		Summary:     make(map[string]float64),
		CreatedAt:   time.Now().UTC(),
	}
}

// AddArtifact appends an artifact reference
func (m *Manifest) AddArtifact(kind core.ArtifactKind, name string, fingerprint core.Hash, count int) {
	m.Artifacts = append(m.Artifacts, ArtifactRef{Kind: kind, Name: name, Fingerprint: fingerprint, Count: count})
}

// Seal computes the fingerprint from the current contents
func (m *Manifest) Seal() core.Hash {
	var b strings.Builder
	fmt.Fprintf(&b, "kind:%s|config:%s|code:%s|genes:%d|cells:%d", m.Kind, m.ConfigHash, m.CodeVersion, m.NumGenes, m.NumCells)
	for _, a := range m.Artifacts {
		fmt.Fprintf(&b, "|%s/%s:%s:%d", a.Kind, a.Name, a.Fingerprint, a.Count)
	}
	m.Fingerprint = core.NewHash([]byte(b.String()))
	return m.Fingerprint
}

// Validate checks that the manifest is complete and sealed
func (m *Manifest) Validate() error {
	switch {
	case core.ID(m.RunID).IsEmpty():
		return errors.New(errors.CodeValidationError, "run manifest: run_id cannot be empty")
	case m.Kind != KindQC && m.Kind != KindCluster:
		return errors.Newf(errors.CodeValidationError, "run manifest: unknown kind %q", m.Kind)
	case m.ConfigHash.IsEmpty():
		return errors.New(errors.CodeValidationError, "run manifest: config_hash cannot be empty")
	case m.CodeVersion == "":
		return errors.New(errors.CodeValidationError, "run manifest: code_version cannot be empty")
	case m.Fingerprint.IsEmpty():
		return errors.New(errors.CodeValidationError, "run manifest: not sealed")
	}
	return nil
}
