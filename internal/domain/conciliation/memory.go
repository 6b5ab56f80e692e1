package conciliation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/domain/glosa"
)

// MemoryRepo is an in-process Repository with the same uniqueness and
// version rules as the Postgres one.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Case
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Case)}
}

func (m *MemoryRepo) Create(_ context.Context, c *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.items {
		if other.BatchID == c.BatchID {
			return fmt.Errorf("%w: batch %s", ErrCaseAlreadyExists, c.BatchID)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Version == 0 {
		c.Version = 1
	}
	m.items[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return c.Clone(), nil
}

func (m *MemoryRepo) GetByBatch(_ context.Context, batchID uuid.UUID) (*Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.items {
		if c.BatchID == batchID {
			return c.Clone(), nil
		}
	}
	return nil, fmt.Errorf("conciliation case for batch %s: %w", batchID, glosa.ErrNotFound)
}

func (m *MemoryRepo) Update(_ context.Context, c *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[c.ID]
	if !ok {
		return notFound(c.ID)
	}
	if cur.Version != c.Version {
		return fmt.Errorf("%w: conciliation case %s changed since version %d", glosa.ErrConcurrentModification, c.ID, c.Version)
	}
	c.Version++
	m.items[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Case, int, error) {
	m.mu.RLock()
	var out []*Case
	for _, c := range m.items {
		if matches(c, f) {
			out = append(out, c.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *MemoryRepo) OpenByMediator(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range m.items {
		if c.State != StateClosed {
			out[c.Mediator]++
		}
	}
	return out, nil
}

func matches(c *Case, f ListFilter) bool {
	if f.State != "" && c.State != f.State {
		return false
	}
	if f.Mediator != "" && c.Mediator != f.Mediator {
		return false
	}
	if f.ProviderID != nil && !c.HasProvider(f.ProviderID.String()) {
		return false
	}
	if f.OnlyOverdue && !overdue(c, f.Now) {
		return false
	}
	return true
}
