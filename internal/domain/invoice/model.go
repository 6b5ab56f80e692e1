// Package invoice reads the invoices and service lines that objections are
// raised against. Claim ingestion owns these records; the engine never
// writes them.
package invoice

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("invoice record not found")

// ServiceLine is a billed service joined with its invoice header.
type ServiceLine struct {
	ID            uuid.UUID `json:"id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	BatchID       uuid.UUID `json:"batch_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	InvoiceNumber string    `json:"invoice_number"`
	ProviderName  string    `json:"provider_name"`
	ServiceCode   string    `json:"service_code"`
	ServiceType   string    `json:"service_type"`
	Description   string    `json:"description,omitempty"`
	Quantity      int       `json:"quantity"`
	BilledValue   float64   `json:"billed_value"`
}

type Invoice struct {
	ID           uuid.UUID `json:"id"`
	Number       string    `json:"number"`
	BatchID      uuid.UUID `json:"batch_id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	IssuedAt     time.Time `json:"issued_at"`
	TotalValue   float64   `json:"total_value"`
}
