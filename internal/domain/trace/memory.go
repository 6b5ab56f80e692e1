package trace

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo keeps entries in process. It backs the unit tests of the
// packages that write to the log.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryRepo) ListByObjection(_ context.Context, objectionID uuid.UUID) ([]*Entry, error) {
	return m.filter(func(e *Entry) bool { return e.ObjectionID != nil && *e.ObjectionID == objectionID }), nil
}

func (m *MemoryRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*Entry, error) {
	return m.filter(func(e *Entry) bool { return e.CaseID != nil && *e.CaseID == caseID }), nil
}

// Events returns every event name in append order.
func (m *MemoryRepo) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Event
	}
	return out
}

// Count returns how many entries carry event.
func (m *MemoryRepo) Count(event Event) int {
	n := 0
	for _, ev := range m.Events() {
		if ev == event {
			n++
		}
	}
	return n
}

func (m *MemoryRepo) filter(keep func(*Entry) bool) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
