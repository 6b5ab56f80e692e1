package trace

import (
	"time"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/platform/auth"
)

// Event names double as routing keys on the event bus.
type Event string

const (
	EventObjectionCreated      Event = "objection.created"
	EventObjectionNotified     Event = "objection.notified"
	EventObjectionAcknowledged Event = "objection.acknowledged"
	EventObjectionResponded    Event = "objection.responded"
	EventObjectionRatified     Event = "objection.ratified"
	EventObjectionEscalated    Event = "objection.escalated"
	EventObjectionClosed       Event = "objection.closed"
	EventObjectionAnnulled     Event = "objection.annulled"
	EventTacitAcceptance       Event = "objection.tacit_acceptance"
	EventTacitRejection        Event = "objection.tacit_rejection"

	EventCaseCreated              Event = "case.created"
	EventCaseObjectionResponded   Event = "case.objection_responded"
	EventCaseDecision             Event = "case.decision"
	EventCaseFinancialsRecomputed Event = "case.financials_recomputed"
	EventCaseStateChanged         Event = "case.state_changed"
	EventCaseMeetingAdded         Event = "case.meeting_added"
	EventCaseDocumentAttached     Event = "case.document_attached"
	EventCaseMinutesGenerated     Event = "case.minutes_generated"
)

// Entry is one immutable line of the traceability log. At least one of
// ObjectionID and CaseID is set.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	ObjectionID *uuid.UUID     `json:"objection_id,omitempty"`
	CaseID      *uuid.UUID     `json:"case_id,omitempty"`
	Event       Event          `json:"event"`
	FromState   string         `json:"from_state,omitempty"`
	ToState     string         `json:"to_state,omitempty"`
	ActorID     string         `json:"actor_id"`
	ActorRole   string         `json:"actor_role"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ForObjection starts an entry about one objection.
func ForObjection(objectionID uuid.UUID, event Event, actor auth.Identity) *Entry {
	id := objectionID
	return &Entry{
		ObjectionID: &id,
		Event:       event,
		ActorID:     actor.UserID,
		ActorRole:   actor.PrimaryRole(),
	}
}

// ForCase starts an entry about a conciliation case.
func ForCase(caseID uuid.UUID, event Event, actor auth.Identity) *Entry {
	id := caseID
	return &Entry{
		CaseID:    &id,
		Event:     event,
		ActorID:   actor.UserID,
		ActorRole: actor.PrimaryRole(),
	}
}

// States records the transition the entry describes.
func (e *Entry) States(from, to string) *Entry {
	e.FromState = from
	e.ToState = to
	return e
}

// With adds a detail value.
func (e *Entry) With(key string, value any) *Entry {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// InCase links an objection entry to the case it belongs to.
func (e *Entry) InCase(caseID *uuid.UUID) *Entry {
	if caseID != nil {
		id := *caseID
		e.CaseID = &id
	}
	return e
}
