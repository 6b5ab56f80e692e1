package glosa

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository with the same version and
// uniqueness rules as the Postgres one. Records are copied on the way in
// and out.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Objection
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Objection)}
}

func (m *MemoryRepo) Create(_ context.Context, o *Objection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Version == 0 {
		o.Version = 1
	}
	for _, other := range m.items {
		if other.ServiceLineID == o.ServiceLineID && other.ReasonCode == o.ReasonCode && !other.State.IsTerminal() {
			return fmt.Errorf("%w: service line %s already has an active objection with reason %s",
				ErrDuplicateActiveObjection, o.ServiceLineID, o.ReasonCode)
		}
	}
	m.items[o.ID] = o.Clone()
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Objection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("objection %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *MemoryRepo) Update(_ context.Context, o *Objection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[o.ID]
	if !ok {
		return fmt.Errorf("objection %s: %w", o.ID, ErrNotFound)
	}
	if cur.Version != o.Version {
		return fmt.Errorf("%w: objection %s changed since version %d", ErrConcurrentModification, o.ID, o.Version)
	}
	o.Version++
	m.items[o.ID] = o.Clone()
	return nil
}

func (m *MemoryRepo) FindActive(_ context.Context, serviceLineID uuid.UUID, reasonCode string) (*Objection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.items {
		if o.ServiceLineID == serviceLineID && o.ReasonCode == reasonCode && !o.State.IsTerminal() {
			return o.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Objection, int, error) {
	all := m.collect(func(o *Objection) bool { return matches(o, f) })
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*Objection, error) {
	return m.sorted(func(o *Objection) bool { return o.BatchID == batchID }), nil
}

func (m *MemoryRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*Objection, error) {
	return m.sorted(func(o *Objection) bool { return o.CaseID != nil && *o.CaseID == caseID }), nil
}

func (m *MemoryRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, o := range m.sorted(func(o *Objection) bool { _, ok := dueExpiry(o, now); return ok }) {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (m *MemoryRepo) Aggregate(_ context.Context, f ListFilter, by GroupBy) ([]Bucket, error) {
	buckets := map[string]*Bucket{}
	for _, o := range m.collect(func(o *Objection) bool { return matches(o, f) }) {
		key, label := "", ""
		switch by {
		case GroupCategory:
			key = string(o.Category)
		case GroupState:
			key = string(o.State)
		case GroupProvider:
			key, label = o.ProviderID.String(), o.ProviderName
		case GroupNone:
		default:
			return nil, fmt.Errorf("unknown grouping %q", by)
		}
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{Key: key, Label: label}
			buckets[key] = b
		}
		b.Count++
		b.Disputed += o.DisputedValue
		b.Accepted += o.AcceptedValue
		b.Rejected += o.RejectedValue
	}
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryRepo) collect(keep func(*Objection) bool) []*Objection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Objection
	for _, o := range m.items {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

func (m *MemoryRepo) sorted(keep func(*Objection) bool) []*Objection {
	out := m.collect(keep)
	sort.Slice(out, func(i, j int) bool {
		if out[i].InvoiceNumber != out[j].InvoiceNumber {
			return out[i].InvoiceNumber < out[j].InvoiceNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// matches mirrors the SQL filter built by applyFilter.
func matches(o *Objection, f ListFilter) bool {
	if f.ProviderID != nil && o.ProviderID != *f.ProviderID {
		return false
	}
	if f.InvoiceID != nil && o.InvoiceID != *f.InvoiceID {
		return false
	}
	if f.BatchID != nil && o.BatchID != *f.BatchID {
		return false
	}
	if f.CaseID != nil && (o.CaseID == nil || *o.CaseID != *f.CaseID) {
		return false
	}
	if f.Category != "" && o.Category != f.Category {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if o.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !o.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if f.OnlyOverdue && !IsOverdue(o, f.Now) {
		return false
	}
	if f.OnlyDueSoon && !IsDueSoon(o, f.Now, f.DueSoonUntil.Sub(f.Now)) {
		return false
	}
	return true
}
