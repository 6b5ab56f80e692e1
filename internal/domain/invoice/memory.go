package invoice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory for tests and local seeding.
type MemoryDirectory struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]*Invoice
	lines    map[uuid.UUID]*ServiceLine
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		invoices: make(map[uuid.UUID]*Invoice),
		lines:    make(map[uuid.UUID]*ServiceLine),
	}
}

// AddInvoice registers an invoice, assigning an id when missing.
func (m *MemoryDirectory) AddInvoice(inv Invoice) *Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	m.invoices[inv.ID] = &inv
	return &inv
}

// AddLine registers a service line under an existing invoice and copies the
// invoice header fields onto it.
func (m *MemoryDirectory) AddLine(invoiceID uuid.UUID, sl ServiceLine) (*ServiceLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
	}
	if sl.ID == uuid.Nil {
		sl.ID = uuid.New()
	}
	sl.InvoiceID = inv.ID
	sl.BatchID = inv.BatchID
	sl.ProviderID = inv.ProviderID
	sl.InvoiceNumber = inv.Number
	sl.ProviderName = inv.ProviderName
	if sl.Quantity == 0 {
		sl.Quantity = 1
	}
	m.lines[sl.ID] = &sl
	inv.TotalValue += sl.BilledValue
	return &sl, nil
}

func (m *MemoryDirectory) GetServiceLine(_ context.Context, id uuid.UUID) (*ServiceLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sl, ok := m.lines[id]
	if !ok {
		return nil, fmt.Errorf("service line %s: %w", id, ErrNotFound)
	}
	cp := *sl
	return &cp, nil
}

func (m *MemoryDirectory) GetInvoice(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryDirectory) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Invoice
	for _, inv := range m.invoices {
		if inv.BatchID == batchID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
