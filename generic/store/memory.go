// Package store provides YearStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	snapshots map[generic.SimulationID]generic.YearSnapshot
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[generic.SimulationID]generic.YearSnapshot)}
}

// Save stores a deep copy so later caller mutations don't leak in.
func (m *Memory) Save(_ context.Context, snap generic.YearSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ID] = cloneSnapshot(snap)
	return nil
}

func (m *Memory) Load(_ context.Context, id generic.SimulationID) (generic.YearSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return generic.YearSnapshot{}, generic.ErrSimulationNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *Memory) List(_ context.Context) ([]generic.SnapshotSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.SnapshotSummary, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		result = append(result, snap.Summary())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SavedAt.Equal(result[j].SavedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].SavedAt.After(result[j].SavedAt)
	})
	return result, nil
}

func (m *Memory) Delete(_ context.Context, id generic.SimulationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return generic.ErrSimulationNotFound
	}
	delete(m.snapshots, id)
	return nil
}

func cloneSnapshot(s generic.YearSnapshot) generic.YearSnapshot {
	out := s
	if s.Bindings != nil {
		out.Bindings = make(map[string]any, len(s.Bindings))
		for k, v := range s.Bindings {
			out.Bindings[k] = v
		}
	}
	out.Months = make([]generic.MonthSnapshot, len(s.Months))
	for i, m := range s.Months {
		out.Months[i] = m
		if m.Options != nil {
			out.Months[i].Options = make(map[string]decimal.Decimal, len(m.Options))
			for k, v := range m.Options {
				out.Months[i].Options[k] = v
			}
		}
	}
	return out
}
