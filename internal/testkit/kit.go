// Package testkit provides synthetic data and in-memory collaborators for
// package and pipeline tests.
package testkit

import (
	"context"
	"sort"
	"sync"

	"scqc/domain/core"
	"scqc/domain/run"
	"scqc/internal/errors"
	"scqc/ports"
)

// InMemoryRunRepository implements ports.RunRepository with in-memory storage
type InMemoryRunRepository struct {
	runs  map[core.RunID]*run.Manifest
	order []core.RunID
	mu    sync.RWMutex
}

var _ ports.RunRepository = (*InMemoryRunRepository)(nil)

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[core.RunID]*run.Manifest)}
}

func (s *InMemoryRunRepository) SaveRun(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[m.RunID]; exists {
		return errors.Newf(errors.CodeValidationError, "run %s already exists", m.RunID)
	}
	cp := *m
	s.runs[m.RunID] = &cp
	s.order = append(s.order, m.RunID)
	return nil
}

func (s *InMemoryRunRepository) GetRun(ctx context.Context, id core.RunID) (*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.runs[id]
	if !exists {
		return nil, errors.NotFound("run " + id.String())
	}
	cp := *m
	return &cp, nil
}

// ListRuns returns runs newest first, in insertion order
func (s *InMemoryRunRepository) ListRuns(ctx context.Context, kind run.Kind, limit int) ([]*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*run.Manifest
	for i := len(s.order) - 1; i >= 0; i-- {
		m := s.runs[s.order[i]]
		if kind != "" && m.Kind != kind {
			continue
		}
		cp := *m
		results = append(results, &cp)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (s *InMemoryRunRepository) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*run.Manifest
	for _, id := range s.order {
		if m := s.runs[id]; m.Fingerprint == fingerprint {
			cp := *m
			results = append(results, &cp)
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}

// Len returns the number of stored runs
func (s *InMemoryRunRepository) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
