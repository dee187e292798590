package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo keeps runs in process. It backs the API when postgres is disabled.
type MemoryRepo struct {
	mu   sync.RWMutex
	runs map[string]Run
	max  int
}

// NewMemoryRepo keeps at most max runs, evicting the oldest (0 means unbounded)
func NewMemoryRepo(max int) *MemoryRepo {
	return &MemoryRepo{runs: make(map[string]Run), max: max}
}

func (m *MemoryRepo) Insert(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}
	m.runs[run.ID] = run

	if m.max > 0 && len(m.runs) > m.max {
		oldest := m.sortedLocked()[len(m.runs)-1]
		delete(m.runs, oldest.ID)
	}
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (m *MemoryRepo) Latest(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return limitRuns(m.sortedLocked(), limit), nil
}

func (m *MemoryRepo) ListBySources(_ context.Context, sources []string, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(sources))
	for _, s := range sources {
		want[s] = true
	}
	var out []Run
	for _, r := range m.sortedLocked() {
		if want[r.Source] {
			out = append(out, r)
		}
	}
	return limitRuns(out, limit), nil
}

// sortedLocked returns runs newest first
func (m *MemoryRepo) sortedLocked() []Run {
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func limitRuns(runs []Run, limit int) []Run {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}
