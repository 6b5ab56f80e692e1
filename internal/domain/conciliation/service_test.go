package conciliation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
)

func TestCreateFromInvoiceBatch(t *testing.T) {
	f := newFixture(t)
	a := f.notified(t, f.main, 10000)
	b := f.notified(t, f.main, 25000)
	draft := f.formulated(t, f.main, 5000)

	c, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), f.main.batch, "mediator-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State != StateAwaitingProviderResponse {
		t.Errorf("expected awaiting_provider_response, got %s", c.State)
	}
	if c.Mediator != "mediator-1" {
		t.Errorf("expected mediator-1, got %s", c.Mediator)
	}
	if c.ResponseDueAt == nil || !c.ResponseDueAt.Equal(day0.AddDate(0, 0, 5)) {
		t.Errorf("expected response due five days out, got %v", c.ResponseDueAt)
	}
	if len(c.Invoices) != 1 || c.Invoices[0].Number != "FE-2001" || c.Invoices[0].ProviderName != "Clinica Norte" {
		t.Fatalf("unexpected invoice snapshot %+v", c.Invoices)
	}
	if !c.Contains(a.ID) || !c.Contains(b.ID) || c.Contains(draft.ID) {
		t.Errorf("expected only the notified objections in the case, got %v", c.Invoices[0].ObjectionIDs)
	}
	if c.Summary.DisputedTotal != 35000 || c.Summary.PendingCount != 2 {
		t.Errorf("unexpected summary %+v", c.Summary)
	}

	objs, err := f.svc.ListObjections(as(auth.RoleMediator), c.ID)
	if err != nil {
		t.Fatalf("list objections: %v", err)
	}
	for _, o := range objs {
		if o.CaseID == nil || *o.CaseID != c.ID || o.ConciliationStatus != glosa.ConciliationPending {
			t.Errorf("objection %s not annotated: case=%v status=%q", o.ID, o.CaseID, o.ConciliationStatus)
		}
	}
	if !hasKey(f.bus.Keys(), string(trace.EventCaseCreated)) {
		t.Errorf("expected case.created on the bus, got %v", f.bus.Keys())
	}
}

func TestCreateFromInvoiceBatch_Errors(t *testing.T) {
	f := newFixture(t)
	f.notified(t, f.main, 10000)
	if _, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), f.main.batch, "mediator-1"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	drafts := f.newParty(t, "FE-3001", "IPS Sur")
	f.formulated(t, drafts, 8000)

	tests := []struct {
		name  string
		ctx   context.Context
		batch uuid.UUID
		want  error
	}{
		{"duplicate", as(auth.RoleAuditor), f.main.batch, ErrCaseAlreadyExists},
		{"nothing disputable", as(auth.RoleAuditor), drafts.batch, ErrNoDisputableObjections},
		{"empty batch", as(auth.RoleMediator), uuid.New(), ErrNoDisputableObjections},
		{"missing batch", as(auth.RoleAuditor), uuid.Nil, glosa.ErrValidation},
		{"wrong role", as(auth.RoleInsurer), f.main.batch, glosa.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateFromInvoiceBatch(tt.ctx, tt.batch, "mediator-1")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateFromInvoiceBatch_MediatorAssignment(t *testing.T) {
	f := newFixture(t, "luis", "ana")
	f.notified(t, f.main, 10000)
	second := f.newParty(t, "FE-3001", "IPS Sur")
	f.notified(t, second, 10000)

	c1, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), f.main.batch, "")
	if err != nil {
		t.Fatalf("first case: %v", err)
	}
	c2, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), second.batch, " ")
	if err != nil {
		t.Fatalf("second case: %v", err)
	}
	if c1.Mediator != "ana" || c2.Mediator != "luis" {
		t.Errorf("expected ana then luis, got %s then %s", c1.Mediator, c2.Mediator)
	}
}

func TestCreateFromInvoiceBatch_NoRoster(t *testing.T) {
	f := newFixture(t)
	f.notified(t, f.main, 10000)

	if _, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), f.main.batch, ""); !errors.Is(err, glosa.ErrValidation) {
		t.Fatalf("expected validation error without a mediator, got %v", err)
	}
	c, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleMediator), f.main.batch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Mediator != "mediator-1" {
		t.Errorf("expected the acting mediator to take the case, got %s", c.Mediator)
	}
}

func TestCreateOrGet(t *testing.T) {
	f := newFixture(t)
	f.notified(t, f.main, 10000)

	first, created, err := f.svc.CreateOrGet(as(auth.RoleAuditor), f.main.batch, "mediator-1")
	if err != nil || !created {
		t.Fatalf("expected a new case, got created=%v err=%v", created, err)
	}
	again, created, err := f.svc.CreateOrGet(as(auth.RoleAuditor), f.main.batch, "someone-else")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("expected the same case back, got created=%v id=%s", created, again.ID)
	}
	if again.Mediator != "mediator-1" {
		t.Errorf("existing case must keep its mediator, got %s", again.Mediator)
	}
}

// TestConciliationFlow runs a case from opening to minutes: three
// objections contested, two ratified and one lifted.
func TestConciliationFlow(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000, 30000)

	c = f.respondAll(t, c, objs)
	if c.State != StateInConciliation {
		t.Errorf("expected in_conciliation once every objection was answered, got %s", c.State)
	}
	if c.ResponseDueAt != nil {
		t.Errorf("expected response deadline cleared once every objection was answered, got %v", c.ResponseDueAt)
	}

	c = f.decide(t, c, objs[0], DecisionRatify, "")
	if c.State != StateInConciliation {
		t.Errorf("expected in_conciliation after the first decision, got %s", c.State)
	}
	c = f.decide(t, c, objs[1], DecisionRatify, "")
	c = f.decide(t, c, objs[2], DecisionLift, "Authorisation found in the contract annex")
	if c.State != StateConciliated {
		t.Errorf("expected conciliated, got %s", c.State)
	}

	s := c.Summary
	if s.RatifiedTotal != 30000 || s.LiftedTotal != 30000 || s.DisputedRemaining != 0 || s.DisputedTotal != 30000 {
		t.Errorf("unexpected summary %+v", s)
	}

	lifted, err := f.glosas.Get(as(auth.RoleMediator), objs[2].ID)
	if err != nil {
		t.Fatalf("get lifted objection: %v", err)
	}
	if lifted.State != glosa.StateClosed || lifted.AcceptedValue != 0 || lifted.RejectedValue != 30000 {
		t.Errorf("lifted objection not settled: state=%s accepted=%v rejected=%v", lifted.State, lifted.AcceptedValue, lifted.RejectedValue)
	}
	if lifted.ConciliationNote != "Authorisation found in the contract annex" {
		t.Errorf("expected the justification as note, got %q", lifted.ConciliationNote)
	}

	c, err = f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, MinutesInput{
		Participants: participants(),
		Agreements:   []string{"Provider issues a credit note for 30000.00"},
	})
	if err != nil {
		t.Fatalf("generate minutes: %v", err)
	}
	if c.State != StateClosed || c.ClosedAt == nil {
		t.Errorf("expected closed case, got %s closed_at=%v", c.State, c.ClosedAt)
	}
	if len(c.Minutes.Decisions) != 3 {
		t.Errorf("expected three decision lines, got %d", len(c.Minutes.Decisions))
	}

	rc, info, err := f.svc.Minutes(asProvider(f.main), c.ID)
	if err != nil {
		t.Fatalf("download minutes: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if info.ContentType != "text/plain" || info.Key != c.Minutes.File.Key {
		t.Errorf("unexpected blob info %+v", info)
	}
	for _, want := range []string{"CONCILIATION MINUTES", "FE-2001", "Ana Rojas", "Ratified total:      30000.00", "1. Provider issues a credit note"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("minutes missing %q:\n%s", want, body)
		}
	}

	entries, err := f.svc.ListTrace(as(auth.RoleMediator), c.ID)
	if err != nil {
		t.Fatalf("list trace: %v", err)
	}
	events := map[trace.Event]int{}
	for _, e := range entries {
		events[e.Event]++
	}
	if events[trace.EventCaseDecision] != 3 || events[trace.EventCaseMinutesGenerated] != 1 || events[trace.EventObjectionClosed] != 3 {
		t.Errorf("unexpected trace %v", events)
	}
}

func TestGenerateMinutes_Errors(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000)

	_, err := f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, MinutesInput{Participants: participants()})
	if !errors.Is(err, glosa.ErrInvalidTransition) {
		t.Errorf("expected minutes to need a case in conciliation, got %v", err)
	}

	f.respondAll(t, c, objs)
	f.decide(t, c, objs[0], DecisionRatify, "")

	invalid := []MinutesInput{
		{},
		{Participants: []Participant{{Name: "Ana Rojas", Role: "mediator"}}},
	}
	for _, in := range invalid {
		if _, err := f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, in); !errors.Is(err, glosa.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", in, err)
		}
	}
	if _, err := f.svc.GenerateMinutes(as(auth.RoleAuditor), c.ID, MinutesInput{Participants: participants()}); !errors.Is(err, glosa.ErrForbidden) {
		t.Errorf("expected forbidden for auditor, got %v", err)
	}

	if _, err := f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, MinutesInput{Participants: participants()}); err != nil {
		t.Fatalf("generate minutes: %v", err)
	}
	_, err = f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, MinutesInput{Participants: participants()})
	if !errors.Is(err, ErrMinutesAlreadyGenerated) {
		t.Errorf("expected ErrMinutesAlreadyGenerated, got %v", err)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("expected one stored document, got %d", f.blobs.Len())
	}
}

func TestDecide_Errors(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000)
	f.respondAll(t, c, objs[:1])

	other := f.newParty(t, "FE-3001", "IPS Sur")
	stranger := f.notified(t, other, 5000)

	tests := []struct {
		name          string
		ctx           context.Context
		objection     uuid.UUID
		decision      Decision
		justification string
		want          error
	}{
		{"lift without justification", as(auth.RoleMediator), objs[0].ID, DecisionLift, "  ", glosa.ErrMissingJustification},
		{"unknown decision", as(auth.RoleMediator), objs[0].ID, Decision("split"), "", glosa.ErrValidation},
		{"not in case", as(auth.RoleMediator), stranger.ID, DecisionRatify, "", ErrObjectionNotInCase},
		{"provider has not replied", as(auth.RoleMediator), objs[1].ID, DecisionRatify, "", glosa.ErrInvalidTransition},
		{"wrong role", as(auth.RoleInsurer), objs[0].ID, DecisionRatify, "", glosa.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Decide(tt.ctx, c.ID, tt.objection, tt.decision, tt.justification)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	f.decide(t, c, objs[0], DecisionRatify, "")
	if _, err := f.svc.Decide(as(auth.RoleMediator), c.ID, objs[0].ID, DecisionLift, "changed my mind"); !errors.Is(err, glosa.ErrInvalidTransition) {
		t.Errorf("expected a second decision to be rejected, got %v", err)
	}
	if _, err := f.svc.Decide(as(auth.RoleMediator), uuid.New(), objs[0].ID, DecisionRatify, ""); !errors.Is(err, glosa.ErrNotFound) {
		t.Errorf("expected not found for unknown case, got %v", err)
	}
}

func TestDecide_PublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000)
	f.respondAll(t, c, objs)
	before := len(f.bus.Keys())

	f.decide(t, c, objs[0], DecisionRatify, "")
	keys := f.bus.Keys()[before:]
	for _, want := range []trace.Event{
		trace.EventObjectionEscalated,
		trace.EventObjectionClosed,
		trace.EventCaseFinancialsRecomputed,
		trace.EventCaseStateChanged,
		trace.EventCaseDecision,
	} {
		if !hasKey(keys, string(want)) {
			t.Errorf("expected %s on the bus, got %v", want, keys)
		}
	}
}

func TestRecordProviderResponse(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 40000)

	out, err := f.svc.RecordProviderResponse(asProvider(f.main), c.ID, objs[0].ID, glosa.ResponseInput{
		ReplyType:     glosa.ReplyPartiallyAccepted,
		AcceptedValue: 15000,
		RejectedValue: 25000,
		Justification: "Partial tariff difference",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Summary.AcceptedTotal != 15000 {
		t.Errorf("expected accepted total 15000, got %v", out.Summary.AcceptedTotal)
	}
	if out.Version <= c.Version {
		t.Errorf("expected the case to be rewritten, version %d -> %d", c.Version, out.Version)
	}

	other := f.newParty(t, "FE-3001", "IPS Sur")
	_, err = f.svc.RecordProviderResponse(asProvider(other), c.ID, objs[0].ID, rejection(40000))
	if !errors.Is(err, glosa.ErrForbidden) {
		t.Errorf("expected another provider to be refused, got %v", err)
	}
	_, err = f.svc.RecordProviderResponse(asProvider(f.main), c.ID, objs[0].ID, rejection(40000))
	if !errors.Is(err, glosa.ErrInvalidTransition) {
		t.Errorf("expected a second reply to be rejected, got %v", err)
	}
}

func TestTacitExpiryInsideCase(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000)
	f.respondAll(t, c, objs[1:])

	f.clock.Advance(11 * 24 * time.Hour)
	for _, o := range objs {
		if _, err := f.glosas.Expire(context.Background(), o.ID, f.clock.Now()); err != nil {
			t.Fatalf("expire %s: %v", o.ID, err)
		}
	}

	got, err := f.svc.Get(as(auth.RoleMediator), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateConciliated {
		t.Errorf("expected conciliated after both tacit resolutions, got %s", got.State)
	}
	if got.Summary.RatifiedTotal != 10000 || got.Summary.LiftedTotal != 20000 {
		t.Errorf("expected silent provider ratified and silent insurer lifted, got %+v", got.Summary)
	}
}

func TestAnnulInsideCase(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000)

	if _, err := f.glosas.Annul(as(auth.RoleAuditor), objs[0].ID, "Duplicated objection"); err != nil {
		t.Fatalf("annul: %v", err)
	}
	got, err := f.svc.Get(as(auth.RoleMediator), c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateInConciliation {
		t.Errorf("expected in_conciliation once one objection is settled, got %s", got.State)
	}
	if got.Summary.LiftedTotal != 10000 || got.Summary.DisputedRemaining != 20000 {
		t.Errorf("unexpected summary %+v", got.Summary)
	}
}

func TestMeetingsAndDocuments(t *testing.T) {
	f := newFixture(t)
	c, _ := f.openCase(t, 10000)

	c, err := f.svc.AddMeeting(as(auth.RoleMediator), c.ID, MeetingInput{
		ScheduledAt: day0.AddDate(0, 0, 7),
		Location:    "Sala 3",
		Attendees:   []string{"Ana Rojas", "Luis Pardo"},
	})
	if err != nil {
		t.Fatalf("add meeting: %v", err)
	}
	if len(c.Meetings) != 1 || c.Meetings[0].CreatedBy != "mediator-1" {
		t.Errorf("unexpected meetings %+v", c.Meetings)
	}
	if _, err := f.svc.AddMeeting(as(auth.RoleMediator), c.ID, MeetingInput{}); !errors.Is(err, glosa.ErrValidation) {
		t.Errorf("expected validation error without a date, got %v", err)
	}

	c, err = f.svc.AttachDocument(asProvider(f.main), c.ID, DocumentInput{
		FileName:    "contract.pdf",
		ContentType: "application/pdf",
		Description: "Signed tariff annex",
		Body:        []byte("%PDF-1.4 annex"),
	})
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if len(c.Documents) != 1 || c.Documents[0].File.Key == "" || c.Documents[0].UploadedBy == "" {
		t.Errorf("unexpected documents %+v", c.Documents)
	}
	if !strings.HasPrefix(c.Documents[0].File.Key, "documents/"+c.ID.String()) {
		t.Errorf("unexpected key %s", c.Documents[0].File.Key)
	}

	_, err = f.svc.AttachDocument(as(auth.RoleMediator), c.ID, DocumentInput{FileName: "a.zip", ContentType: "application/zip", Body: []byte("PK")})
	if !errors.Is(err, blobstore.ErrContentType) {
		t.Errorf("expected content type error, got %v", err)
	}

	got, err := f.repo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Meetings) != 1 || len(got.Documents) != 1 {
		t.Errorf("expected meeting and document persisted, got %d/%d", len(got.Meetings), len(got.Documents))
	}
}

func TestClosedCaseRejectsChanges(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000)
	f.respondAll(t, c, objs)
	f.decide(t, c, objs[0], DecisionRatify, "")
	if _, err := f.svc.GenerateMinutes(as(auth.RoleMediator), c.ID, MinutesInput{Participants: participants()}); err != nil {
		t.Fatalf("generate minutes: %v", err)
	}

	if _, err := f.svc.AddMeeting(as(auth.RoleMediator), c.ID, MeetingInput{ScheduledAt: day0}); !errors.Is(err, glosa.ErrInvalidTransition) {
		t.Errorf("expected closed case to refuse meetings, got %v", err)
	}
	if _, err := f.svc.Decide(as(auth.RoleMediator), c.ID, objs[0].ID, DecisionRatify, ""); !errors.Is(err, glosa.ErrInvalidTransition) {
		t.Errorf("expected closed case to refuse decisions, got %v", err)
	}
}

func TestProviderAccess(t *testing.T) {
	f := newFixture(t)
	c, _ := f.openCase(t, 10000)

	other := f.newParty(t, "FE-3001", "IPS Sur")
	f.notified(t, other, 7000)
	oc, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), other.batch, "mediator-2")
	if err != nil {
		t.Fatalf("second case: %v", err)
	}

	if _, err := f.svc.Get(asProvider(f.main), c.ID); err != nil {
		t.Errorf("expected own case to be visible, got %v", err)
	}
	var fe *glosa.ForbiddenError
	if _, err := f.svc.Get(asProvider(f.main), oc.ID); !errors.As(err, &fe) {
		t.Errorf("expected forbidden for another provider's case, got %v", err)
	}
	if _, err := f.svc.GetByBatch(asProvider(f.main), other.batch); !errors.Is(err, glosa.ErrForbidden) {
		t.Errorf("expected forbidden by batch, got %v", err)
	}

	items, total, err := f.svc.List(asProvider(f.main), ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || items[0].ID != c.ID {
		t.Errorf("expected the provider to see only their case, got %d", total)
	}
	_, total, _ = f.svc.List(as(auth.RoleAuditor), ListFilter{}, 10, 0)
	if total != 2 {
		t.Errorf("expected auditors to see both cases, got %d", total)
	}
}

func TestCaseWaitsOnMediatorOnceEveryReplyIsIn(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000)

	c = f.respondAll(t, c, objs[:1])
	if c.State != StateAwaitingProviderResponse || c.ResponseDueAt == nil {
		t.Fatalf("expected the provider still owing a reply, got %s due=%v", c.State, c.ResponseDueAt)
	}
	c = f.respondAll(t, c, objs[1:])
	if c.State != StateInConciliation || c.ResponseDueAt != nil {
		t.Errorf("expected in_conciliation with no response deadline, got %s due=%v", c.State, c.ResponseDueAt)
	}

	waiting, total, err := f.svc.List(as(auth.RoleAuditor), ListFilter{State: StateAwaitingProviderResponse}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Errorf("expected no case awaiting the provider, got %d (%v)", total, waiting)
	}
	st, err := f.svc.Statistics(as(auth.RoleAuditor), ListFilter{})
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	for _, sc := range st.ByState {
		if sc.State == StateAwaitingProviderResponse && sc.Count != 0 {
			t.Errorf("expected no case counted as awaiting the provider, got %d", sc.Count)
		}
	}
}

func TestStatisticsAndDashboard(t *testing.T) {
	f := newFixture(t)
	c, objs := f.openCase(t, 10000, 20000)

	other := f.newParty(t, "FE-3001", "IPS Sur")
	f.notified(t, other, 7000)
	if _, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), other.batch, "mediator-2"); err != nil {
		t.Fatalf("second case: %v", err)
	}

	f.clock.Advance(6 * 24 * time.Hour)
	f.respondAll(t, c, objs)

	st, err := f.svc.Statistics(as(auth.RoleAuditor), ListFilter{})
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if st.Cases != 2 {
		t.Errorf("expected 2 cases, got %d", st.Cases)
	}
	if st.Overdue != 1 {
		t.Errorf("expected only the unanswered case overdue, got %d", st.Overdue)
	}
	if len(st.ByMediator) != 2 || st.ByMediator[0].Mediator != "mediator-1" || st.ByMediator[0].Open != 1 {
		t.Errorf("unexpected mediator load %+v", st.ByMediator)
	}
	if st.Totals.ObjectionCount != 3 || st.Totals.DisputedTotal != 37000 {
		t.Errorf("unexpected totals %+v", st.Totals)
	}

	overdue, _, err := f.svc.List(as(auth.RoleAuditor), ListFilter{OnlyOverdue: true}, 10, 0)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID == c.ID {
		t.Errorf("expected the other case overdue, got %d", len(overdue))
	}

	d, err := f.svc.Dashboard(as(auth.RoleMediator))
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Cases.Cases != 2 || len(d.OverdueCases) != 1 || len(d.RecentCases) != 2 {
		t.Errorf("unexpected dashboard %+v", d)
	}
	if d.Objections == nil || d.Objections.Totals.Count != 3 {
		t.Errorf("expected objection statistics over 3 objections, got %+v", d.Objections)
	}
}
