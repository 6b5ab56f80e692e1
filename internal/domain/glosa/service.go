package glosa

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/db"
)

// CaseHook is implemented by the conciliation aggregator. It runs inside the
// unit of work of any transition on an objection that belongs to a case.
type CaseHook interface {
	RecomputeCase(ctx context.Context, caseID uuid.UUID, actor auth.Identity) error
}

type Service struct {
	repo      Repository
	lines     invoice.Directory
	trace     *trace.Log
	tx        db.Transactor
	deadlines *DeadlineEngine
	logger    zerolog.Logger
	caseHook  CaseHook
	dueSoon   time.Duration
	now       func() time.Time
}

func NewService(repo Repository, lines invoice.Directory, log *trace.Log, tx db.Transactor, deadlines *DeadlineEngine, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Service{
		repo:      repo,
		lines:     lines,
		trace:     log,
		tx:        tx,
		deadlines: deadlines,
		logger:    logger,
		dueSoon:   48 * time.Hour,
		now:       time.Now,
	}
}

// SetCaseHook attaches the conciliation aggregator.
func (s *Service) SetCaseHook(h CaseHook) {
	s.caseHook = h
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetDueSoonWindow sets how far ahead a deadline counts as due soon.
func (s *Service) SetDueSoonWindow(d time.Duration) {
	s.dueSoon = d
}

func (s *Service) Deadlines() *DeadlineEngine {
	return s.deadlines
}

// step is one transition applied by run.
type step struct {
	action  Action
	payload Payload
	fx      effects
	event   trace.Event
	details map[string]any
}

// effects are the values apply_financials writes.
type effects struct {
	accepted float64
	rejected float64
}

// run loads the objection, lets plan validate it and choose the steps, drives
// each step through the state machine and persists the record with a
// version check, all in one unit of work.
func (s *Service) run(ctx context.Context, id uuid.UUID, actor auth.Identity, now time.Time, plan func(o *Objection) ([]step, error)) (*Objection, error) {
	ctx, flush := s.trace.Deferred(ctx)
	var out *Objection
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		steps, err := plan(o)
		if err != nil {
			return err
		}

		var entries []*trace.Entry
		var publish []*trace.Entry
		recompute := false
		for _, st := range steps {
			st.payload.InCase = o.CaseID != nil
			res, err := Transition(o.State, st.action, st.payload)
			if err != nil {
				return err
			}
			s.apply(o, res, st.fx, now)
			if res.Has(CmdWriteTrace) {
				e := s.entry(o, res, st, actor)
				entries = append(entries, e)
				if res.Has(CmdPublishEvent) {
					publish = append(publish, e)
				}
			}
			recompute = recompute || res.Has(CmdRecomputeCaseFinancials)
		}

		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.trace.Append(ctx, e); err != nil {
				return err
			}
		}
		s.trace.Publish(ctx, publish...)

		if recompute && s.caseHook != nil {
			if err := s.caseHook.RecomputeCase(ctx, *o.CaseID, actor); err != nil {
				return fmt.Errorf("recompute case %s: %w", *o.CaseID, err)
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	flush(ctx)
	return out, nil
}

func (s *Service) apply(o *Objection, res Result, fx effects, now time.Time) {
	o.State = res.To
	o.UpdatedAt = now
	for _, cmd := range res.Commands {
		switch cmd {
		case CmdStartResponseDeadline:
			due := s.deadlines.ComputeDeadline(now, o.ResponseKind())
			o.ResponseDueAt = &due
		case CmdStartRatificationDeadline:
			due := s.deadlines.ComputeDeadline(now, KindInsurerRatification)
			o.RatificationDueAt = &due
		case CmdClearDeadlines:
			o.ResponseDueAt = nil
			o.RatificationDueAt = nil
		case CmdApplyFinancials:
			o.AcceptedValue = fx.accepted
			o.RejectedValue = fx.rejected
		case CmdSetTacitProviderFlag:
			o.TacitAcceptanceByProvider = true
		case CmdSetTacitInsurerFlag:
			o.TacitRejectionByInsurer = true
		}
	}
	switch res.Action {
	case ActionNotify:
		o.NotifiedAt = timePtr(now)
	case ActionRespond:
		o.RespondedAt = timePtr(now)
	case ActionRatify:
		o.RatifiedAt = timePtr(now)
	}
	if res.To.IsTerminal() {
		o.ClosedAt = timePtr(now)
	}
}

func (s *Service) entry(o *Objection, res Result, st step, actor auth.Identity) *trace.Entry {
	e := trace.ForObjection(o.ID, st.event, actor).States(string(res.From), string(res.To)).InCase(o.CaseID)
	keys := make([]string, 0, len(st.details))
	for k := range st.details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.With(k, st.details[k])
	}
	if res.Has(CmdStartResponseDeadline) && o.ResponseDueAt != nil {
		e.With("response_due_at", o.ResponseDueAt.Format(time.RFC3339))
	}
	if res.Has(CmdStartRatificationDeadline) && o.RatificationDueAt != nil {
		e.With("ratification_due_at", o.RatificationDueAt.Format(time.RFC3339))
	}
	if res.Has(CmdApplyFinancials) {
		e.With("accepted_value", o.AcceptedValue).With("rejected_value", o.RejectedValue)
	}
	return e
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func requireRole(actor auth.Identity, roles ...string) error {
	if actor.HasRole(roles...) {
		return nil
	}
	return &ForbiddenError{Role: actor.PrimaryRole(), Required: roles}
}

// checkProvider keeps a provider user to its own objections.
func checkProvider(actor auth.Identity, o *Objection) error {
	if actor.ProviderID == "" || actor.HasRole(auth.RoleAdmin) {
		return nil
	}
	if actor.ProviderID != o.ProviderID.String() {
		return &ForbiddenError{Role: actor.PrimaryRole(), Required: []string{"provider " + o.ProviderID.String()}}
	}
	return nil
}

// -- Creation and lookup --

type CreateInput struct {
	ServiceLineID uuid.UUID `json:"service_line_id" validate:"required"`
	Category      Category  `json:"category" validate:"required,len=2"`
	ReasonCode    string    `json:"reason_code" validate:"required,len=6"`
	DisputedValue float64   `json:"disputed_value" validate:"gt=0"`
	Justification string    `json:"justification" validate:"required"`
	IsDevolution  bool      `json:"is_devolution"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleAuditor); err != nil {
		return nil, err
	}
	if in.ServiceLineID == uuid.Nil {
		return nil, validationf("service_line_id is required")
	}
	if !in.Category.Valid() {
		return nil, validationf("unknown category %q", in.Category)
	}
	if !in.Category.ValidReasonCode(in.ReasonCode) {
		return nil, validationf("reason code %q is not a code of category %s", in.ReasonCode, in.Category)
	}
	if in.DisputedValue <= 0 {
		return nil, validationf("disputed_value must be positive")
	}
	if strings.TrimSpace(in.Justification) == "" {
		return nil, justificationf("an objection must state its grounds")
	}

	line, err := s.lines.GetServiceLine(ctx, in.ServiceLineID)
	if errors.Is(err, invoice.ErrNotFound) {
		return nil, validationf("service line %s does not exist", in.ServiceLineID)
	}
	if err != nil {
		return nil, fmt.Errorf("load service line: %w", err)
	}

	existing, err := s.repo.FindActive(ctx, line.ID, in.ReasonCode)
	if err == nil {
		return nil, fmt.Errorf("%w: objection %s already disputes service line %s with reason %s",
			ErrDuplicateActiveObjection, existing.ID, line.ID, in.ReasonCode)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	o := &Objection{
		ID:            uuid.New(),
		Version:       1,
		BatchID:       line.BatchID,
		InvoiceID:     line.InvoiceID,
		ServiceLineID: line.ID,
		ProviderID:    line.ProviderID,
		InvoiceNumber: line.InvoiceNumber,
		ProviderName:  line.ProviderName,
		ServiceCode:   line.ServiceCode,
		ServiceType:   line.ServiceType,
		Category:      in.Category,
		ReasonCode:    in.ReasonCode,
		IsDevolution:  in.IsDevolution,
		BilledValue:   line.BilledValue,
		DisputedValue: in.DisputedValue,
		Justification: strings.TrimSpace(in.Justification),
		State:         StateFormulated,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ctx, flush := s.trace.Deferred(ctx)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, o); err != nil {
			return err
		}
		e := trace.ForObjection(o.ID, trace.EventObjectionCreated, actor).States("", string(o.State)).
			With("category", string(o.Category)).
			With("reason_code", o.ReasonCode).
			With("disputed_value", o.DisputedValue)
		return s.trace.Record(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	flush(ctx)
	s.logger.Info().Str("objection_id", o.ID.String()).Str("reason_code", o.ReasonCode).Msg("objection created")
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Objection, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkProvider(auth.IdentityFromContext(ctx), o); err != nil {
		return nil, err
	}
	return o, nil
}

// -- Workflow --

// Notify sends a formulated objection to the provider and starts the
// response window.
func (s *Service) Notify(ctx context.Context, id uuid.UUID) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleAuditor); err != nil {
		return nil, err
	}
	return s.run(ctx, id, actor, s.now().UTC(), func(o *Objection) ([]step, error) {
		return []step{{
			action:  ActionNotify,
			event:   trace.EventObjectionNotified,
			details: map[string]any{"deadline_kind": string(o.ResponseKind())},
		}}, nil
	})
}

// Acknowledge records that the provider has received the notification.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleProvider); err != nil {
		return nil, err
	}
	return s.run(ctx, id, actor, s.now().UTC(), func(o *Objection) ([]step, error) {
		if err := checkProvider(actor, o); err != nil {
			return nil, err
		}
		return []step{{action: ActionAcknowledge, event: trace.EventObjectionAcknowledged}}, nil
	})
}

// Annul withdraws an objection from any non-terminal state.
func (s *Service) Annul(ctx context.Context, id uuid.UUID, justification string) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleAuditor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(justification) == "" {
		return nil, justificationf("annulment requires a justification")
	}
	return s.run(ctx, id, actor, s.now().UTC(), func(o *Objection) ([]step, error) {
		if err := Allowed(o.State, ActionAnnul); err != nil {
			return nil, err
		}
		if o.ConciliationStatus == ConciliationPending {
			o.ConciliationStatus = ConciliationLifted
			o.ConciliationNote = justification
		}
		return []step{{
			action:  ActionAnnul,
			event:   trace.EventObjectionAnnulled,
			details: map[string]any{"justification": justification},
		}}, nil
	})
}

// Close settles a ratified objection that is not in conciliation. The
// ratified split stands, and the line and reason code are free for a new
// objection afterwards.
func (s *Service) Close(ctx context.Context, id uuid.UUID, note string) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleInsurer, auth.RoleAuditor); err != nil {
		return nil, err
	}
	return s.run(ctx, id, actor, s.now().UTC(), func(o *Objection) ([]step, error) {
		if o.State == StateInConciliation {
			return nil, &TransitionError{From: o.State, Action: ActionClose}
		}
		if err := Allowed(o.State, ActionClose); err != nil {
			return nil, err
		}
		if o.ConciliationStatus == ConciliationPending {
			return nil, validationf("objection %s is pending in case %s; the mediator closes it", o.ID, o.CaseID)
		}
		return []step{{
			action:  ActionClose,
			fx:      effects{accepted: o.AcceptedValue, rejected: o.RejectedValue},
			event:   trace.EventObjectionClosed,
			details: map[string]any{"note": strings.TrimSpace(note)},
		}}, nil
	})
}

// -- Deadlines --

var errNothingDue = errors.New("no deadline due")

// dueExpiry reports which tacit rule, if any, applies to o at now. A rule
// fires once: its flag and the presence of the awaited record both guard it.
func dueExpiry(o *Objection, now time.Time) (Expiry, bool) {
	switch {
	case o.State.AwaitingProvider() && o.Response == nil && !o.TacitAcceptanceByProvider &&
		o.ResponseDueAt != nil && now.After(*o.ResponseDueAt):
		return ExpiryResponse, true
	case o.State == StateResponded && o.Ratification == nil && !o.TacitRejectionByInsurer &&
		o.RatificationDueAt != nil && now.After(*o.RatificationDueAt):
		return ExpiryRatification, true
	}
	return "", false
}

// Expire applies the tacit resolution due on one objection at now. It
// returns the expiry that fired, or "" when nothing was due.
func (s *Service) Expire(ctx context.Context, id uuid.UUID, now time.Time) (Expiry, error) {
	var fired Expiry
	_, err := s.run(ctx, id, auth.SystemIdentity, now, func(o *Objection) ([]step, error) {
		exp, ok := dueExpiry(o, now)
		if !ok {
			return nil, errNothingDue
		}
		st := step{action: ActionSweepExpire, payload: Payload{Expiry: exp}}
		if exp == ExpiryResponse {
			// The provider stayed silent: the objection stands in full.
			st.fx = effects{accepted: o.DisputedValue}
			st.event = trace.EventTacitAcceptance
			st.details = map[string]any{"due_at": o.ResponseDueAt.Format(time.RFC3339)}
			if o.ConciliationStatus == ConciliationPending {
				o.ConciliationStatus = ConciliationRatified
			}
		} else {
			// The insurer stayed silent: the objection is deemed unjustified.
			st.fx = effects{rejected: o.DisputedValue}
			st.event = trace.EventTacitRejection
			st.details = map[string]any{"due_at": o.RatificationDueAt.Format(time.RFC3339)}
			if o.ConciliationStatus == ConciliationPending {
				o.ConciliationStatus = ConciliationLifted
			}
		}
		fired = exp
		return []step{st}, nil
	})
	if errors.Is(err, errNothingDue) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return fired, nil
}

// CheckDeadlines re-evaluates one objection's deadlines right away, applying
// a tacit resolution if one is due, and reports where it stands.
func (s *Service) CheckDeadlines(ctx context.Context, id uuid.UUID) (*DeadlineStatus, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	fired, err := s.Expire(ctx, o.ID, now)
	if err != nil {
		return nil, err
	}
	if fired != "" {
		if o, err = s.repo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	st := deadlineStatus(o, now, s.dueSoon)
	st.TacitApplied = fired != ""
	return &st, nil
}

// -- Conciliation support --

func (s *Service) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Objection, error) {
	return s.repo.ListByBatch(ctx, batchID)
}

func (s *Service) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Objection, error) {
	return s.repo.ListByCase(ctx, caseID)
}

// AttachToCase annotates a disputable objection as pending in caseID. It
// is not a state transition and joins the caller's unit of work.
func (s *Service) AttachToCase(ctx context.Context, id, caseID uuid.UUID) (*Objection, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.State.Disputable() {
		return nil, validationf("objection %s in state %s cannot enter conciliation", o.ID, o.State)
	}
	if o.CaseID != nil && *o.CaseID != caseID {
		return nil, validationf("objection %s already belongs to case %s", o.ID, *o.CaseID)
	}
	o.CaseID = &caseID
	o.ConciliationStatus = ConciliationPending
	o.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ResolveInCase closes a pending case objection with the mediator's
// decision: ratified keeps the full disputed value, lifted drops it.
func (s *Service) ResolveInCase(ctx context.Context, id, caseID uuid.UUID, status ConciliationStatus, note string) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleMediator); err != nil {
		return nil, err
	}
	if status != ConciliationRatified && status != ConciliationLifted {
		return nil, validationf("unknown conciliation decision %q", status)
	}
	return s.run(ctx, id, actor, s.now().UTC(), func(o *Objection) ([]step, error) {
		if o.CaseID == nil || *o.CaseID != caseID {
			return nil, validationf("objection %s is not part of case %s", o.ID, caseID)
		}
		if o.ConciliationStatus != ConciliationPending {
			return nil, fmt.Errorf("%w: objection %s was already %s in conciliation", ErrInvalidTransition, o.ID, o.ConciliationStatus)
		}
		var steps []step
		if o.State != StateInConciliation {
			if err := Allowed(o.State, ActionEscalate); err != nil {
				return nil, err
			}
			steps = append(steps, step{action: ActionEscalate, event: trace.EventObjectionEscalated})
		}
		fx := effects{accepted: o.DisputedValue}
		if status == ConciliationLifted {
			fx = effects{rejected: o.DisputedValue}
		}
		o.ConciliationStatus = status
		o.ConciliationNote = note
		steps = append(steps, step{
			action:  ActionClose,
			fx:      fx,
			event:   trace.EventObjectionClosed,
			details: map[string]any{"conciliation_status": string(status), "note": note},
		})
		return steps, nil
	})
}

// -- Queries --

// scope fills the clock-derived fields of f and pins provider users to
// their own objections.
func (s *Service) scope(ctx context.Context, f ListFilter) ListFilter {
	now := s.now().UTC()
	f.Now = now
	f.DueSoonUntil = now.Add(s.dueSoon)
	actor := auth.IdentityFromContext(ctx)
	if actor.PrimaryRole() == auth.RoleProvider && actor.ProviderID != "" {
		if pid, err := uuid.Parse(actor.ProviderID); err == nil {
			f.ProviderID = &pid
		}
	}
	return f
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Objection, int, error) {
	return s.repo.List(ctx, s.scope(ctx, f), limit, offset)
}

func (s *Service) Statistics(ctx context.Context, f ListFilter) (*Statistics, error) {
	f = s.scope(ctx, f)
	var st Statistics

	totals, err := s.repo.Aggregate(ctx, f, GroupNone)
	if err != nil {
		return nil, err
	}
	if len(totals) > 0 {
		st.Totals = totals[0]
	}
	st.Totals.Key = "all"

	if st.ByCategory, err = s.repo.Aggregate(ctx, f, GroupCategory); err != nil {
		return nil, err
	}
	for i := range st.ByCategory {
		st.ByCategory[i].Label = Category(st.ByCategory[i].Key).Name()
	}
	if st.ByState, err = s.repo.Aggregate(ctx, f, GroupState); err != nil {
		return nil, err
	}
	if st.ByProvider, err = s.repo.Aggregate(ctx, f, GroupProvider); err != nil {
		return nil, err
	}

	overdue := f
	overdue.OnlyOverdue = true
	if _, st.Overdue, err = s.repo.List(ctx, overdue, 1, 0); err != nil {
		return nil, err
	}
	dueSoon := f
	dueSoon.OnlyDueSoon = true
	if _, st.DueSoon, err = s.repo.List(ctx, dueSoon, 1, 0); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) ListTrace(ctx context.Context, id uuid.UUID) ([]*trace.Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.trace.ListByObjection(ctx, id)
}
