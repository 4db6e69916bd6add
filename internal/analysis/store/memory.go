package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketchain/internal/analysis/domain"
)

// Memory keeps results in process. Used by mock runs and tests.
type Memory struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]domain.AnalysisResult
	keys    map[memoryKey]struct{}
	ordered []uuid.UUID
}

type memoryKey struct {
	chainID   string
	phase     domain.Phase
	createdAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID: make(map[uuid.UUID]domain.AnalysisResult),
		keys: make(map[memoryKey]struct{}),
	}
}

func (m *Memory) Save(_ context.Context, r domain.AnalysisResult) error {
	if err := checkSavable(r); err != nil {
		return err
	}
	r = normalize(r)
	key := memoryKey{chainID: r.ChainID, phase: r.Phase, createdAt: r.CreatedAt}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return errDuplicate(r)
	}
	if _, ok := m.byID[r.ID]; ok {
		return errDuplicate(r)
	}
	m.keys[key] = struct{}{}
	m.byID[r.ID] = r
	m.ordered = append(m.ordered, r.ID)
	return nil
}

func (m *Memory) List(_ context.Context, f ListFilter) ([]domain.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Summary, 0, len(m.ordered))
	for _, id := range m.ordered {
		r := m.byID[id]
		if f.ChainID != "" && r.ChainID != f.ChainID {
			continue
		}
		out = append(out, r.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return domain.AnalysisResult{}, errNotFound(id)
	}
	return r, nil
}

func (m *Memory) LatestComplete(_ context.Context, chainID string, phase domain.Phase) (domain.AnalysisResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best domain.AnalysisResult
	found := false
	for _, id := range m.ordered {
		r := m.byID[id]
		if r.ChainID != chainID || r.Phase != phase || r.Status != domain.StatusComplete {
			continue
		}
		if !found || newerFirst(r.Summary(), best.Summary()) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (m *Memory) Close() error { return nil }

// newerFirst orders by creation time descending, then phase descending, then
// ID, which matches the ORDER BY of the SQL backends.
func newerFirst(a, b domain.Summary) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Phase != b.Phase {
		return a.Phase > b.Phase
	}
	return a.ID.String() < b.ID.String()
}
