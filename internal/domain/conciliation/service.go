package conciliation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
	"github.com/glosas/glosas/internal/platform/db"
)

var validate = validator.New()

// Objections is the part of the objection service a case drives.
type Objections interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*glosa.Objection, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*glosa.Objection, error)
	AttachToCase(ctx context.Context, id, caseID uuid.UUID) (*glosa.Objection, error)
	Respond(ctx context.Context, id uuid.UUID, in glosa.ResponseInput) (*glosa.Objection, error)
	ResolveInCase(ctx context.Context, id, caseID uuid.UUID, status glosa.ConciliationStatus, note string) (*glosa.Objection, error)
	Statistics(ctx context.Context, f glosa.ListFilter) (*glosa.Statistics, error)
}

type Service struct {
	repo       Repository
	objections Objections
	invoices   invoice.Directory
	blobs      blobstore.Store
	trace      *trace.Log
	tx         db.Transactor
	deadlines  *glosa.DeadlineEngine
	mediators  *MediatorPolicy
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, objections Objections, invoices invoice.Directory, blobs blobstore.Store,
	log *trace.Log, tx db.Transactor, deadlines *glosa.DeadlineEngine, mediators *MediatorPolicy, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	if mediators == nil {
		mediators = NewMediatorPolicy(nil)
	}
	return &Service{
		repo:       repo,
		objections: objections,
		invoices:   invoices,
		blobs:      blobs,
		trace:      log,
		tx:         tx,
		deadlines:  deadlines,
		mediators:  mediators,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func requireRole(actor auth.Identity, roles ...string) error {
	if actor.HasRole(roles...) {
		return nil
	}
	return &glosa.ForbiddenError{Role: actor.PrimaryRole(), Required: roles}
}

// checkAccess keeps provider users to the cases their invoices are in.
func checkAccess(actor auth.Identity, c *Case) error {
	if actor.ProviderID == "" || actor.HasRole(auth.RoleAdmin) || c.HasProvider(actor.ProviderID) {
		return nil
	}
	return &glosa.ForbiddenError{Role: actor.PrimaryRole(), Required: []string{"provider party to case " + c.ID.String()}}
}

// unit runs fn in one transaction and publishes the trace entries it
// queued once the transaction has committed.
func (s *Service) unit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, flush := s.trace.Deferred(ctx)
	if err := s.tx.WithinTx(ctx, fn); err != nil {
		return err
	}
	flush(ctx)
	return nil
}

// record appends entries in the current transaction and queues them for
// publishing.
func (s *Service) record(ctx context.Context, entries ...*trace.Entry) error {
	for _, e := range entries {
		if err := s.trace.Append(ctx, e); err != nil {
			return err
		}
	}
	s.trace.Publish(ctx, entries...)
	return nil
}

// -- Creation --

// CreateFromInvoiceBatch opens a case over every disputable objection of
// the batch. An empty mediator is assigned by the mediator policy.
func (s *Service) CreateFromInvoiceBatch(ctx context.Context, batchID uuid.UUID, mediator string) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleAuditor, auth.RoleMediator); err != nil {
		return nil, err
	}
	if batchID == uuid.Nil {
		return nil, validationf("batch_id is required")
	}

	var out *Case
	err := s.unit(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByBatch(ctx, batchID)
		if err == nil {
			return fmt.Errorf("%w: case %s covers batch %s", ErrCaseAlreadyExists, existing.ID, batchID)
		}
		if !errors.Is(err, glosa.ErrNotFound) {
			return err
		}

		all, err := s.objections.ListByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		var disputable []*glosa.Objection
		for _, o := range all {
			if o.State.Disputable() {
				disputable = append(disputable, o)
			}
		}
		if len(disputable) == 0 {
			return fmt.Errorf("%w: batch %s", ErrNoDisputableObjections, batchID)
		}

		if mediator = strings.TrimSpace(mediator); mediator == "" {
			if mediator, err = s.assignMediator(ctx, actor); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		c := &Case{
			ID:        uuid.New(),
			Version:   1,
			BatchID:   batchID,
			Mediator:  mediator,
			State:     StateOpened,
			CreatedBy: actor.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if awaitingProvider(disputable) {
			due := s.deadlines.ComputeDeadline(now, glosa.KindCaseResponse)
			c.ResponseDueAt = &due
		}

		attached := make([]*glosa.Objection, 0, len(disputable))
		for _, o := range disputable {
			a, err := s.objections.AttachToCase(ctx, o.ID, c.ID)
			if err != nil {
				return fmt.Errorf("attach objection %s: %w", o.ID, err)
			}
			attached = append(attached, a)
		}
		if c.Invoices, err = s.snapshot(ctx, attached); err != nil {
			return err
		}
		c.Summary = Summarize(attached)
		c.State = advance(c.State, derive(attached))

		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		e := trace.ForCase(c.ID, trace.EventCaseCreated, actor).States("", string(c.State)).
			With("batch_id", batchID.String()).
			With("mediator", mediator).
			With("objections", len(attached)).
			With("disputed_total", c.Summary.DisputedTotal)
		if err := s.record(ctx, e); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", out.ID.String()).Str("batch_id", batchID.String()).
		Str("mediator", out.Mediator).Int("objections", out.Summary.ObjectionCount).Msg("conciliation case opened")
	return out, nil
}

// CreateOrGet returns the batch's case, opening it first if there is none.
// created reports whether this call opened it.
func (s *Service) CreateOrGet(ctx context.Context, batchID uuid.UUID, mediator string) (c *Case, created bool, err error) {
	c, err = s.GetByBatch(ctx, batchID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, glosa.ErrNotFound) {
		return nil, false, err
	}
	c, err = s.CreateFromInvoiceBatch(ctx, batchID, mediator)
	if errors.Is(err, ErrCaseAlreadyExists) {
		// Lost a race with another request for the same batch.
		c, err = s.GetByBatch(ctx, batchID)
		return c, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *Service) assignMediator(ctx context.Context, actor auth.Identity) (string, error) {
	open, err := s.repo.OpenByMediator(ctx)
	if err != nil {
		return "", err
	}
	if m := s.mediators.Assign(open); m != "" {
		return m, nil
	}
	if actor.PrimaryRole() == auth.RoleMediator {
		return actor.UserID, nil
	}
	return "", validationf("mediator is required when no mediator roster is configured")
}

// snapshot groups the objections by invoice and copies the invoice header
// for display.
func (s *Service) snapshot(ctx context.Context, objs []*glosa.Objection) ([]CaseInvoice, error) {
	var out []CaseInvoice
	index := make(map[uuid.UUID]int)
	for _, o := range objs {
		i, ok := index[o.InvoiceID]
		if !ok {
			ci := CaseInvoice{
				InvoiceID:    o.InvoiceID,
				Number:       o.InvoiceNumber,
				ProviderID:   o.ProviderID,
				ProviderName: o.ProviderName,
			}
			inv, err := s.invoices.GetInvoice(ctx, o.InvoiceID)
			switch {
			case err == nil:
				ci.Number, ci.ProviderID, ci.ProviderName = inv.Number, inv.ProviderID, inv.ProviderName
			case !errors.Is(err, invoice.ErrNotFound):
				return nil, fmt.Errorf("load invoice %s: %w", o.InvoiceID, err)
			}
			i = len(out)
			index[o.InvoiceID] = i
			out = append(out, ci)
		}
		out[i].ObjectionIDs = append(out[i].ObjectionIDs, o.ID)
	}
	return out, nil
}

// -- Reads --

// load fetches a case the caller may see.
func (s *Service) load(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(auth.IdentityFromContext(ctx), c); err != nil {
		return nil, err
	}
	return c, nil
}

// refresh recomputes the summary from the objections as they are now.
func (s *Service) refresh(ctx context.Context, c *Case) (*Case, error) {
	objs, err := s.objections.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Summary = Summarize(objs)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, c)
}

func (s *Service) GetByBatch(ctx context.Context, batchID uuid.UUID) (*Case, error) {
	c, err := s.repo.GetByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(auth.IdentityFromContext(ctx), c); err != nil {
		return nil, err
	}
	return s.refresh(ctx, c)
}

func (s *Service) ListObjections(ctx context.Context, id uuid.UUID) ([]*glosa.Objection, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.objections.ListByCase(ctx, id)
}

func (s *Service) ListTrace(ctx context.Context, id uuid.UUID) ([]*trace.Entry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.trace.ListByCase(ctx, id)
}

// -- Decisions --

// openCase loads a case that still accepts changes and, when objectionID
// is set, checks that the objection belongs to it.
func (s *Service) openCase(ctx context.Context, id, objectionID uuid.UUID) (*Case, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.State.Open() {
		return nil, fmt.Errorf("%w: conciliation case %s is closed", glosa.ErrInvalidTransition, c.ID)
	}
	if objectionID != uuid.Nil && !c.Contains(objectionID) {
		return nil, fmt.Errorf("%w: objection %s, case %s", ErrObjectionNotInCase, objectionID, c.ID)
	}
	return c, nil
}

// RecordProviderResponse submits the provider's reply to one objection of
// the case. The case summary is recomputed in the same unit of work.
func (s *Service) RecordProviderResponse(ctx context.Context, id, objectionID uuid.UUID, in glosa.ResponseInput) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleProvider); err != nil {
		return nil, err
	}
	var out *Case
	err := s.unit(ctx, func(ctx context.Context) error {
		if _, err := s.openCase(ctx, id, objectionID); err != nil {
			return err
		}
		o, err := s.objections.Respond(ctx, objectionID, in)
		if err != nil {
			return err
		}
		e := trace.ForCase(id, trace.EventCaseObjectionResponded, actor).
			With("objection_id", objectionID.String()).
			With("reply_type", string(in.ReplyType)).
			With("accepted_value", o.AcceptedValue).
			With("rejected_value", o.RejectedValue)
		if err := s.record(ctx, e); err != nil {
			return err
		}
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decide rules on one pending objection: ratify keeps the disputed value,
// lift drops it and needs a justification.
func (s *Service) Decide(ctx context.Context, id, objectionID uuid.UUID, decision Decision, justification string) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleMediator); err != nil {
		return nil, err
	}
	var status glosa.ConciliationStatus
	switch decision {
	case DecisionRatify:
		status = glosa.ConciliationRatified
	case DecisionLift:
		status = glosa.ConciliationLifted
		if strings.TrimSpace(justification) == "" {
			return nil, fmt.Errorf("%w: lifting an objection requires a justification", glosa.ErrMissingJustification)
		}
	default:
		return nil, validationf("unknown decision %q", decision)
	}

	var out *Case
	err := s.unit(ctx, func(ctx context.Context) error {
		if _, err := s.openCase(ctx, id, objectionID); err != nil {
			return err
		}
		o, err := s.objections.ResolveInCase(ctx, objectionID, id, status, strings.TrimSpace(justification))
		if err != nil {
			return err
		}
		e := trace.ForCase(id, trace.EventCaseDecision, actor).
			With("objection_id", objectionID.String()).
			With("decision", string(decision)).
			With("accepted_value", o.AcceptedValue).
			With("rejected_value", o.RejectedValue)
		if justification != "" {
			e.With("justification", justification)
		}
		if err := s.record(ctx, e); err != nil {
			return err
		}
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", id.String()).Str("objection_id", objectionID.String()).
		Str("decision", string(decision)).Str("case_state", string(out.State)).Msg("conciliation decision recorded")
	return out, nil
}

// RecomputeCase refolds the summary and re-evaluates the state of a case.
// The objection service calls it inside the unit of work of any transition
// on an objection the case contains.
func (s *Service) RecomputeCase(ctx context.Context, id uuid.UUID, actor auth.Identity) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	objs, err := s.objections.ListByCase(ctx, id)
	if err != nil {
		return err
	}
	from := c.State
	summary := Summarize(objs)
	next := advance(c.State, derive(objs))
	answered := c.ResponseDueAt != nil && !awaitingProvider(objs)
	if summary == c.Summary && next == c.State && !answered {
		return nil
	}
	c.Summary = summary
	c.State = next
	if answered {
		c.ResponseDueAt = nil
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}

	entries := []*trace.Entry{trace.ForCase(c.ID, trace.EventCaseFinancialsRecomputed, actor).
		With("disputed_total", summary.DisputedTotal).
		With("ratified_total", summary.RatifiedTotal).
		With("lifted_total", summary.LiftedTotal).
		With("disputed_remaining", summary.DisputedRemaining).
		With("pending", summary.PendingCount)}
	if next != from {
		entries = append(entries, trace.ForCase(c.ID, trace.EventCaseStateChanged, actor).States(string(from), string(next)))
	}
	return s.record(ctx, entries...)
}

// -- Minutes --

type MinutesInput struct {
	Participants []Participant `json:"participants" validate:"required,min=1,dive"`
	Agreements   []string      `json:"agreements"`
}

// GenerateMinutes draws up the minutes of a case in conciliation, stores
// the document and closes the case. Minutes are written once.
func (s *Service) GenerateMinutes(ctx context.Context, id uuid.UUID, in MinutesInput) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleMediator); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, validationf("minutes need at least one participant with name, role and identification")
	}

	var out *Case
	err := s.unit(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if c.Minutes != nil {
			return fmt.Errorf("%w: case %s on %s", ErrMinutesAlreadyGenerated, c.ID, c.Minutes.GeneratedAt.Format(time.RFC3339))
		}
		if c.State != StateInConciliation && c.State != StateConciliated {
			return fmt.Errorf("%w: minutes need a case in conciliation, case %s is %s", glosa.ErrInvalidTransition, c.ID, c.State)
		}
		objs, err := s.objections.ListByCase(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		m := &Minutes{
			Participants: in.Participants,
			Agreements:   in.Agreements,
			Decisions:    minutesLines(objs),
			Summary:      Summarize(objs),
			GeneratedBy:  actor.UserID,
			GeneratedAt:  now,
		}
		body, err := renderMinutes(c, m)
		if err != nil {
			return err
		}
		info, err := s.blobs.Put(ctx, blobstore.Object{
			Prefix:      "minutes/" + c.ID.String(),
			FileName:    "minutes.txt",
			ContentType: "text/plain",
			Body:        body,
			Metadata:    map[string]string{"case_id": c.ID.String(), "batch_id": c.BatchID.String()},
		})
		if err != nil {
			return fmt.Errorf("store minutes: %w", err)
		}
		m.File = *info

		from := c.State
		c.Minutes = m
		c.Summary = m.Summary
		c.State = StateClosed
		c.ClosedAt = &now
		c.UpdatedAt = now
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		err = s.record(ctx,
			trace.ForCase(c.ID, trace.EventCaseMinutesGenerated, actor).
				With("file_key", info.Key).
				With("sha256", info.SHA256).
				With("participants", len(in.Participants)),
			trace.ForCase(c.ID, trace.EventCaseStateChanged, actor).States(string(from), string(StateClosed)))
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("case_id", id.String()).Str("file_key", out.Minutes.File.Key).Msg("conciliation minutes generated")
	return out, nil
}

// Minutes opens the stored minutes document of a closed case.
func (s *Service) Minutes(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.Info, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.Minutes == nil {
		return nil, nil, fmt.Errorf("minutes of case %s: %w", id, glosa.ErrNotFound)
	}
	return s.blobs.Get(ctx, c.Minutes.File.Key)
}

// -- Meetings and documents --

type MeetingInput struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Location    string    `json:"location"`
	Attendees   []string  `json:"attendees"`
	Notes       string    `json:"notes"`
}

func (s *Service) AddMeeting(ctx context.Context, id uuid.UUID, in MeetingInput) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleMediator); err != nil {
		return nil, err
	}
	if in.ScheduledAt.IsZero() {
		return nil, validationf("scheduled_at is required")
	}
	return s.mutate(ctx, id, func(c *Case, now time.Time) (*trace.Entry, error) {
		m := Meeting{
			ID:          uuid.New(),
			ScheduledAt: in.ScheduledAt.UTC(),
			Location:    in.Location,
			Attendees:   in.Attendees,
			Notes:       in.Notes,
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
		}
		c.Meetings = append(c.Meetings, m)
		return trace.ForCase(c.ID, trace.EventCaseMeetingAdded, actor).
			With("meeting_id", m.ID.String()).
			With("scheduled_at", m.ScheduledAt.Format(time.RFC3339)), nil
	})
}

type DocumentInput struct {
	FileName    string
	ContentType string
	Description string
	Body        []byte
}

func (s *Service) AttachDocument(ctx context.Context, id uuid.UUID, in DocumentInput) (*Case, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleAuditor, auth.RoleProvider, auth.RoleInsurer, auth.RoleMediator); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(c *Case, now time.Time) (*trace.Entry, error) {
		info, err := s.blobs.Put(ctx, blobstore.Object{
			Prefix:      "documents/" + c.ID.String(),
			FileName:    in.FileName,
			ContentType: in.ContentType,
			Body:        in.Body,
			Metadata:    map[string]string{"case_id": c.ID.String(), "uploaded_by": actor.UserID},
		})
		if err != nil {
			return nil, err
		}
		d := Document{ID: uuid.New(), Description: in.Description, File: *info, UploadedBy: actor.UserID, UploadedAt: now}
		c.Documents = append(c.Documents, d)
		return trace.ForCase(c.ID, trace.EventCaseDocumentAttached, actor).
			With("document_id", d.ID.String()).
			With("file_key", info.Key), nil
	})
}

// mutate applies change to an open case and records the entry it returns.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, change func(c *Case, now time.Time) (*trace.Entry, error)) (*Case, error) {
	var out *Case
	err := s.unit(ctx, func(ctx context.Context) error {
		c, err := s.openCase(ctx, id, uuid.Nil)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		e, err := change(c, now)
		if err != nil {
			return err
		}
		c.UpdatedAt = now
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if err := s.record(ctx, e); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// -- Queries --

func (s *Service) scope(ctx context.Context, f ListFilter) ListFilter {
	f.Now = s.now().UTC()
	actor := auth.IdentityFromContext(ctx)
	if actor.PrimaryRole() == auth.RoleProvider && actor.ProviderID != "" {
		if pid, err := uuid.Parse(actor.ProviderID); err == nil {
			f.ProviderID = &pid
		}
	}
	return f
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error) {
	return s.repo.List(ctx, s.scope(ctx, f), limit, offset)
}

// Statistics counts cases by state and mediator and sums their summaries.
func (s *Service) Statistics(ctx context.Context, f ListFilter) (*Statistics, error) {
	f = s.scope(ctx, f)
	cases, _, err := s.repo.List(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}

	st := &Statistics{Cases: len(cases)}
	byState := make(map[State]int)
	byMediator := make(map[string]*MediatorLoad)
	for _, c := range cases {
		byState[c.State]++
		ml, ok := byMediator[c.Mediator]
		if !ok {
			ml = &MediatorLoad{Mediator: c.Mediator}
			byMediator[c.Mediator] = ml
		}
		ml.Total++
		if c.State.Open() {
			ml.Open++
		}
		if overdue(c, f.Now) {
			st.Overdue++
		}
		st.Totals.add(c.Summary)
	}
	for state, n := range byState {
		st.ByState = append(st.ByState, StateCount{State: state, Count: n})
	}
	sort.Slice(st.ByState, func(i, j int) bool { return stateRank[st.ByState[i].State] < stateRank[st.ByState[j].State] })
	for _, ml := range byMediator {
		st.ByMediator = append(st.ByMediator, *ml)
	}
	sort.Slice(st.ByMediator, func(i, j int) bool { return st.ByMediator[i].Mediator < st.ByMediator[j].Mediator })
	return st, nil
}

// Dashboard is the landing summary of the conciliation desk.
type Dashboard struct {
	Cases        *Statistics       `json:"cases"`
	Objections   *glosa.Statistics `json:"objections"`
	OverdueCases []*Case           `json:"overdue_cases"`
	RecentCases  []*Case           `json:"recent_cases"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Cases, err = s.Statistics(gctx, ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		d.Objections, err = s.objections.Statistics(gctx, glosa.ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		d.OverdueCases, _, err = s.List(gctx, ListFilter{OnlyOverdue: true}, 10, 0)
		return err
	})
	g.Go(func() error {
		var err error
		d.RecentCases, _, err = s.List(gctx, ListFilter{}, 5, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
