package ports

import (
	"context"

	"scqc/domain/core"
	"scqc/domain/run"
)

// RunRepository persists run manifests
type RunRepository interface {
	// SaveRun stores a sealed manifest; saving the same RunID twice fails
	SaveRun(ctx context.Context, m *run.Manifest) error
	GetRun(ctx context.Context, id core.RunID) (*run.Manifest, error)
	// ListRuns returns the most recent runs of a kind, newest first.
	// An empty kind lists every run.
	ListRuns(ctx context.Context, kind run.Kind, limit int) ([]*run.Manifest, error)
	// FindByFingerprint returns earlier runs that produced identical artifacts
	FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.Manifest, error)
}
