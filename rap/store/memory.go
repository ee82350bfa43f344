// Package store provides StateStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/adapt/rap-engine/rap"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/demo)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	overrides map[overrideKey]rap.AppliedOverride
	runs      map[string]*rap.RunRecord
	runOrder  []string
}

type overrideKey struct {
	Course rap.CourseID
	Pair   rap.OverrideKey
}

func NewMemory() *Memory {
	return &Memory{
		overrides: make(map[overrideKey]rap.AppliedOverride),
		runs:      make(map[string]*rap.RunRecord),
	}
}

// AppliedOverrides returns the latest applied override per pair.
func (m *Memory) AppliedOverrides(_ context.Context, course rap.CourseID) (map[rap.OverrideKey]rap.AppliedOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[rap.OverrideKey]rap.AppliedOverride)
	for k, ov := range m.overrides {
		if k.Course == course {
			result[k.Pair] = ov
		}
	}
	return result, nil
}

// SaveOverride upserts on (course, assessment, user).
func (m *Memory) SaveOverride(_ context.Context, ov rap.AppliedOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.overrides[overrideKey{Course: ov.Course, Pair: ov.Key()}] = ov
	return nil
}

// SaveRun upserts by run ID. Re-saving (pending -> running) must not
// duplicate the run in listings.
func (m *Memory) SaveRun(_ context.Context, rec *rap.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[rec.ID]; !ok {
		m.runOrder = append(m.runOrder, rec.ID)
	}
	cp := *rec
	m.runs[rec.ID] = &cp
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, rec *rap.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[rec.ID]; !ok {
		return rap.ErrRunNotFound
	}
	cp := *rec
	m.runs[rec.ID] = &cp
	return nil
}

func (m *Memory) Run(_ context.Context, id string) (*rap.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.runs[id]
	if !ok {
		return nil, rap.ErrRunNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Runs(_ context.Context, course rap.CourseID, limit int) ([]*rap.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*rap.RunRecord
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		rec := m.runs[m.runOrder[i]]
		if course != "" && rec.Course != course {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	// Most recent first; the reverse-insertion walk above breaks
	// StartedAt ties toward the later save.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
