// Package glosa implements the objection ("glosa") lifecycle: the record,
// its state machine, statutory deadlines, the provider response and insurer
// ratification protocols, and the expiry sweep that applies tacit
// resolutions.
package glosa

import (
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateFormulated        State = "formulated"
	StateNotified          State = "notified"
	StateAwaitingResponse  State = "awaiting_response"
	StateResponded         State = "responded"
	StateRatifiedByInsurer State = "ratified_by_insurer"
	StateAcceptedFully     State = "accepted_fully"
	StateAcceptedPartially State = "accepted_partially"
	StateObjected          State = "objected"
	StateInConciliation    State = "in_conciliation"
	StateClosed            State = "closed"
	StateAnnulled          State = "annulled"
)

var AllStates = []State{
	StateFormulated, StateNotified, StateAwaitingResponse, StateResponded,
	StateRatifiedByInsurer, StateAcceptedFully, StateAcceptedPartially, StateObjected,
	StateInConciliation, StateClosed, StateAnnulled,
}

func (s State) Valid() bool {
	for _, v := range AllStates {
		if v == s {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateAnnulled
}

// Disputable reports whether an objection in s can be pulled into a
// conciliation case.
func (s State) Disputable() bool {
	switch s {
	case StateNotified, StateAwaitingResponse, StateResponded, StateRatifiedByInsurer,
		StateAcceptedPartially, StateObjected, StateInConciliation:
		return true
	}
	return false
}

// AwaitingProvider reports whether the provider still owes a response.
func (s State) AwaitingProvider() bool {
	return s == StateNotified || s == StateAwaitingResponse
}

// Category is the two-letter objection family.
type Category string

const (
	CategoryBilling       Category = "FA"
	CategoryTariff        Category = "TA"
	CategorySupport       Category = "SO"
	CategoryAuthorization Category = "AU"
	CategoryCoverage      Category = "CO"
	CategoryPertinence    Category = "CL"
	CategoryAgreement     Category = "SA"
)

var categoryNames = map[Category]string{
	CategoryBilling:       "billing",
	CategoryTariff:        "tariff",
	CategorySupport:       "missing support",
	CategoryAuthorization: "authorization",
	CategoryCoverage:      "coverage",
	CategoryPertinence:    "clinical pertinence",
	CategoryAgreement:     "agreement follow-up",
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) Name() string {
	return categoryNames[c]
}

var reasonCodePattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{4}$`)

// ValidReasonCode reports whether code is well formed and belongs to c.
func (c Category) ValidReasonCode(code string) bool {
	return reasonCodePattern.MatchString(code) && Category(code[:2]) == c
}

// ConciliationStatus annotates an objection once a case owns it.
type ConciliationStatus string

const (
	ConciliationNone     ConciliationStatus = ""
	ConciliationPending  ConciliationStatus = "pending"
	ConciliationRatified ConciliationStatus = "ratified"
	ConciliationLifted   ConciliationStatus = "lifted"
)

type Objection struct {
	ID            uuid.UUID `json:"id"`
	Version       int       `json:"version"`
	BatchID       uuid.UUID `json:"batch_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	ServiceLineID uuid.UUID `json:"service_line_id"`
	ProviderID    uuid.UUID `json:"provider_id"`

	// Display snapshot taken at creation. Totals never read these.
	InvoiceNumber string `json:"invoice_number"`
	ProviderName  string `json:"provider_name"`
	ServiceCode   string `json:"service_code"`
	ServiceType   string `json:"service_type"`

	Category      Category `json:"category"`
	ReasonCode    string   `json:"reason_code"`
	IsDevolution  bool     `json:"is_devolution"`
	BilledValue   float64  `json:"billed_value"`
	DisputedValue float64  `json:"disputed_value"`
	Justification string   `json:"justification"`
	State         State    `json:"state"`

	ResponseDueAt     *time.Time `json:"response_due_at,omitempty"`
	RatificationDueAt *time.Time `json:"ratification_due_at,omitempty"`
	NotifiedAt        *time.Time `json:"notified_at,omitempty"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	RatifiedAt        *time.Time `json:"ratified_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`

	TacitAcceptanceByProvider bool `json:"tacit_acceptance_by_provider"`
	TacitRejectionByInsurer   bool `json:"tacit_rejection_by_insurer"`

	AcceptedValue float64       `json:"accepted_value"`
	RejectedValue float64       `json:"rejected_value"`
	Response      *Response     `json:"response,omitempty"`
	Ratification  *Ratification `json:"ratification,omitempty"`

	CaseID             *uuid.UUID         `json:"case_id,omitempty"`
	ConciliationStatus ConciliationStatus `json:"conciliation_status,omitempty"`
	ConciliationNote   string             `json:"conciliation_note,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (o *Objection) Clone() *Objection {
	cp := *o
	cp.ResponseDueAt = cloneTime(o.ResponseDueAt)
	cp.RatificationDueAt = cloneTime(o.RatificationDueAt)
	cp.NotifiedAt = cloneTime(o.NotifiedAt)
	cp.RespondedAt = cloneTime(o.RespondedAt)
	cp.RatifiedAt = cloneTime(o.RatifiedAt)
	cp.ClosedAt = cloneTime(o.ClosedAt)
	if o.Response != nil {
		r := *o.Response
		r.Documents = append([]string(nil), o.Response.Documents...)
		cp.Response = &r
	}
	if o.Ratification != nil {
		r := *o.Ratification
		cp.Ratification = &r
	}
	if o.CaseID != nil {
		id := *o.CaseID
		cp.CaseID = &id
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ResponseKind selects the statutory window for the provider's reply.
func (o *Objection) ResponseKind() DeadlineKind {
	if o.IsDevolution {
		return KindDevolutionResponse
	}
	return KindProviderResponse
}

// cents compares money at the resolution it is stored with.
func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// exceeds reports whether accepted + rejected > disputed.
func exceeds(accepted, rejected, disputed float64) bool {
	return cents(accepted)+cents(rejected) > cents(disputed)
}

// ListFilter narrows List and Statistics. Now and DueSoonUntil are filled by
// the service.
type ListFilter struct {
	ProviderID   *uuid.UUID
	InvoiceID    *uuid.UUID
	BatchID      *uuid.UUID
	CaseID       *uuid.UUID
	Category     Category
	States       []State
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	OnlyOverdue  bool
	OnlyDueSoon  bool
	Now          time.Time
	DueSoonUntil time.Time
}

// GroupBy is a Statistics dimension.
type GroupBy string

const (
	GroupNone     GroupBy = ""
	GroupCategory GroupBy = "category"
	GroupState    GroupBy = "state"
	GroupProvider GroupBy = "provider"
)

// Bucket aggregates the objections sharing one key.
type Bucket struct {
	Key      string  `json:"key"`
	Label    string  `json:"label,omitempty"`
	Count    int     `json:"count"`
	Disputed float64 `json:"disputed_value"`
	Accepted float64 `json:"accepted_value"`
	Rejected float64 `json:"rejected_value"`
}

type Statistics struct {
	Totals     Bucket   `json:"totals"`
	ByCategory []Bucket `json:"by_category"`
	ByState    []Bucket `json:"by_state"`
	ByProvider []Bucket `json:"by_provider"`
	Overdue    int      `json:"overdue"`
	DueSoon    int      `json:"due_soon"`
}
