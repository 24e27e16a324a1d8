package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"scqc/domain/core"
	"scqc/domain/run"
	"scqc/internal/errors"
	"scqc/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// runRow is the scqc_runs row layout
type runRow struct {
	ID          string    `db:"id"`
	Kind        string    `db:"kind"`
	ConfigHash  string    `db:"config_hash"`
	CodeVersion string    `db:"code_version"`
	Fingerprint string    `db:"fingerprint"`
	NumGenes    int       `db:"num_genes"`
	NumCells    int       `db:"num_cells"`
	Artifacts   []byte    `db:"artifacts"`
	Summary     []byte    `db:"summary"`
	CreatedAt   time.Time `db:"created_at"`
}

const selectRuns = `SELECT id, kind, config_hash, code_version, fingerprint,
	num_genes, num_cells, artifacts, summary, created_at FROM scqc_runs`

// runRepository implements ports.RunRepository
type runRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &runRepository{db: db}
}

// SaveRun inserts a sealed manifest
func (r *runRepository) SaveRun(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	row, err := toRow(m)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO scqc_runs (id, kind, config_hash, code_version, fingerprint,
			num_genes, num_cells, artifacts, summary, created_at)
		VALUES (:id, :kind, :config_hash, :code_version, :fingerprint,
			:num_genes, :num_cells, :artifacts, :summary, :created_at)
	`, row)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errors.Newf(errors.CodeValidationError, "run %s already exists", m.RunID)
		}
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to save run"))
	}
	return nil
}

// GetRun loads one manifest
func (r *runRepository) GetRun(ctx context.Context, id core.RunID) (*run.Manifest, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, selectRuns+` WHERE id = $1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("run " + id.String())
		}
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to get run"))
	}
	return fromRow(row)
}

// ListRuns returns the latest runs, newest first
func (r *runRepository) ListRuns(ctx context.Context, kind run.Kind, limit int) ([]*run.Manifest, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	var err error
	if kind == "" {
		err = r.db.SelectContext(ctx, &rows, selectRuns+` ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, selectRuns+` WHERE kind = $1 ORDER BY created_at DESC LIMIT $2`, string(kind), limit)
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list runs"))
	}
	return fromRows(rows)
}

// FindByFingerprint returns runs sharing a fingerprint, oldest first
func (r *runRepository) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.Manifest, error) {
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, selectRuns+` WHERE fingerprint = $1 ORDER BY created_at`, fingerprint.String())
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to query runs by fingerprint"))
	}
	return fromRows(rows)
}

func toRow(m *run.Manifest) (runRow, error) {
	artifacts, err := json.Marshal(m.Artifacts)
	if err != nil {
		return runRow{}, errors.Wrap(err, "failed to marshal artifacts")
	}
	summary, err := json.Marshal(m.Summary)
	if err != nil {
		return runRow{}, errors.Wrap(err, "failed to marshal summary")
	}
	return runRow{
		ID:          m.RunID.String(),
		Kind:        string(m.Kind),
		ConfigHash:  m.ConfigHash.String(),
		CodeVersion: m.CodeVersion,
		Fingerprint: m.Fingerprint.String(),
		NumGenes:    m.NumGenes,
		NumCells:    m.NumCells,
		Artifacts:   artifacts,
		Summary:     summary,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func fromRow(row runRow) (*run.Manifest, error) {
	m := &run.Manifest{
		RunID:       core.RunID(row.ID),
		Kind:        run.Kind(row.Kind),
		ConfigHash:  core.Hash(row.ConfigHash),
		CodeVersion: row.CodeVersion,
		Fingerprint: core.Hash(row.Fingerprint),
		NumGenes:    row.NumGenes,
		NumCells:    row.NumCells,
		CreatedAt:   row.CreatedAt,
	}
	if len(row.Artifacts) > 0 {
		if err := json.Unmarshal(row.Artifacts, &m.Artifacts); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal artifacts")
		}
	}
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &m.Summary); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal summary")
		}
	}
	return m, nil
}

func fromRows(rows []runRow) ([]*run.Manifest, error) {
	out := make([]*run.Manifest, 0, len(rows))
	for _, row := range rows {
		m, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
