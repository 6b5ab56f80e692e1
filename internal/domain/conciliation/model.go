package conciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/platform/blobstore"
)

type State string

const (
	StateOpened                   State = "opened"
	StateAwaitingProviderResponse State = "awaiting_provider_response"
	StateInConciliation           State = "in_conciliation"
	StateConciliated              State = "conciliated"
	StateClosed                   State = "closed"
)

var stateRank = map[State]int{
	StateOpened:                   0,
	StateAwaitingProviderResponse: 1,
	StateInConciliation:           2,
	StateConciliated:              3,
	StateClosed:                   4,
}

func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok
}

// Open reports whether the case still accepts responses and decisions.
func (s State) Open() bool {
	return s != StateClosed
}

// Decision is the mediator's ruling on one objection of a case.
type Decision string

const (
	DecisionRatify Decision = "ratify"
	DecisionLift   Decision = "lift"
)

// CaseInvoice is the display snapshot of one invoice in the case and the
// objections it contributed.
type CaseInvoice struct {
	InvoiceID    uuid.UUID   `json:"invoice_id"`
	Number       string      `json:"number"`
	ProviderID   uuid.UUID   `json:"provider_id"`
	ProviderName string      `json:"provider_name"`
	ObjectionIDs []uuid.UUID `json:"objection_ids"`
}

type Meeting struct {
	ID          uuid.UUID `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is a supporting file stored in the object store.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	Description string         `json:"description,omitempty"`
	File        blobstore.Info `json:"file"`
	UploadedBy  string         `json:"uploaded_by"`
	UploadedAt  time.Time      `json:"uploaded_at"`
}

type Participant struct {
	Name           string `json:"name" validate:"required"`
	Role           string `json:"role" validate:"required"`
	Identification string `json:"identification" validate:"required"`
	Organization   string `json:"organization,omitempty"`
}

// Minutes is the immutable record ("acta") that closes a case.
type Minutes struct {
	Participants []Participant    `json:"participants"`
	Agreements   []string         `json:"agreements,omitempty"`
	Decisions    []MinutesLine    `json:"decisions"`
	Summary      FinancialSummary `json:"summary"`
	File         blobstore.Info   `json:"file"`
	GeneratedBy  string           `json:"generated_by"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// MinutesLine is one objection as it stood when the minutes were drawn up.
type MinutesLine struct {
	ObjectionID   uuid.UUID `json:"objection_id"`
	InvoiceNumber string    `json:"invoice_number"`
	ReasonCode    string    `json:"reason_code"`
	DisputedValue float64   `json:"disputed_value"`
	AcceptedValue float64   `json:"accepted_value"`
	Status        string    `json:"status"`
	Note          string    `json:"note,omitempty"`
}

type FinancialSummary struct {
	BilledTotal       float64 `json:"billed_total"`
	DisputedTotal     float64 `json:"disputed_total"`
	AcceptedTotal     float64 `json:"accepted_total"`
	RatifiedTotal     float64 `json:"ratified_total"`
	LiftedTotal       float64 `json:"lifted_total"`
	DisputedRemaining float64 `json:"disputed_remaining"`
	PercentDisputed   float64 `json:"percent_disputed"`
	PercentRatified   float64 `json:"percent_ratified"`
	ObjectionCount    int     `json:"objection_count"`
	PendingCount      int     `json:"pending_count"`
}

type Case struct {
	ID            uuid.UUID        `json:"id"`
	Version       int              `json:"version"`
	BatchID       uuid.UUID        `json:"batch_id"`
	Mediator      string           `json:"mediator"`
	State         State            `json:"state"`
	Invoices      []CaseInvoice    `json:"invoices"`
	Meetings      []Meeting        `json:"meetings"`
	Documents     []Document       `json:"documents"`
	Summary       FinancialSummary `json:"summary"`
	Minutes       *Minutes         `json:"minutes,omitempty"`
	ResponseDueAt *time.Time       `json:"response_due_at,omitempty"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
}

// Contains reports whether objectionID was pulled into the case.
func (c *Case) Contains(objectionID uuid.UUID) bool {
	for _, inv := range c.Invoices {
		for _, id := range inv.ObjectionIDs {
			if id == objectionID {
				return true
			}
		}
	}
	return false
}

// HasProvider reports whether any invoice of the case belongs to providerID.
func (c *Case) HasProvider(providerID string) bool {
	for _, inv := range c.Invoices {
		if inv.ProviderID.String() == providerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Case) Clone() *Case {
	cp := *c
	cp.Invoices = make([]CaseInvoice, len(c.Invoices))
	for i, inv := range c.Invoices {
		inv.ObjectionIDs = append([]uuid.UUID(nil), inv.ObjectionIDs...)
		cp.Invoices[i] = inv
	}
	cp.Meetings = append([]Meeting(nil), c.Meetings...)
	cp.Documents = append([]Document(nil), c.Documents...)
	if c.Minutes != nil {
		m := *c.Minutes
		m.Participants = append([]Participant(nil), c.Minutes.Participants...)
		m.Agreements = append([]string(nil), c.Minutes.Agreements...)
		m.Decisions = append([]MinutesLine(nil), c.Minutes.Decisions...)
		cp.Minutes = &m
	}
	if c.ResponseDueAt != nil {
		t := *c.ResponseDueAt
		cp.ResponseDueAt = &t
	}
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

// ListFilter narrows List and Statistics. Now is filled by the service.
type ListFilter struct {
	State       State
	Mediator    string
	ProviderID  *uuid.UUID
	OnlyOverdue bool
	Now         time.Time
}

type StateCount struct {
	State State `json:"state"`
	Count int   `json:"count"`
}

type MediatorLoad struct {
	Mediator string `json:"mediator"`
	Open     int    `json:"open"`
	Total    int    `json:"total"`
}

// Statistics sums the stored summaries of the matching cases.
type Statistics struct {
	Cases      int              `json:"cases"`
	Overdue    int              `json:"overdue"`
	ByState    []StateCount     `json:"by_state"`
	ByMediator []MediatorLoad   `json:"by_mediator"`
	Totals     FinancialSummary `json:"totals"`
}
