package glosa

import "time"

type DeadlineKind string

const (
	KindProviderResponse    DeadlineKind = "provider_response"
	KindInsurerRatification DeadlineKind = "insurer_ratification"
	KindDevolutionResponse  DeadlineKind = "devolution_response"
	KindCaseResponse        DeadlineKind = "case_response"
)

// Windows are statutory limits in days.
type Windows struct {
	ProviderResponse    int
	InsurerRatification int
	DevolutionResponse  int
	CaseResponse        int
}

func DefaultWindows() Windows {
	return Windows{
		ProviderResponse:    5,
		InsurerRatification: 5,
		DevolutionResponse:  10,
		CaseResponse:        5,
	}
}

// DeadlineEngine turns an anchor instant into a due date.
//
// Offsets are calendar days. The regulation counts business days; the
// engine keeps calendar days so existing deadlines stay reproducible.
type DeadlineEngine struct {
	windows Windows
	loc     *time.Location
}

func NewDeadlineEngine(w Windows, loc *time.Location) *DeadlineEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &DeadlineEngine{windows: w, loc: loc}
}

func (d *DeadlineEngine) Windows() Windows {
	return d.windows
}

func (d *DeadlineEngine) Days(kind DeadlineKind) int {
	switch kind {
	case KindProviderResponse:
		return d.windows.ProviderResponse
	case KindInsurerRatification:
		return d.windows.InsurerRatification
	case KindDevolutionResponse:
		return d.windows.DevolutionResponse
	case KindCaseResponse:
		return d.windows.CaseResponse
	}
	return 0
}

// ComputeDeadline adds the window for kind to anchor. Day arithmetic runs in
// the engine's location and the result is returned in UTC.
func (d *DeadlineEngine) ComputeDeadline(anchor time.Time, kind DeadlineKind) time.Time {
	return anchor.In(d.loc).AddDate(0, 0, d.Days(kind)).UTC()
}

// ActiveDeadline returns the deadline the objection is currently running
// against, or nil when no party owes a step.
func ActiveDeadline(o *Objection) (*time.Time, DeadlineKind) {
	switch {
	case o.State.AwaitingProvider():
		return o.ResponseDueAt, o.ResponseKind()
	case o.State == StateResponded:
		return o.RatificationDueAt, KindInsurerRatification
	}
	return nil, ""
}

func IsOverdue(o *Objection, now time.Time) bool {
	due, _ := ActiveDeadline(o)
	return due != nil && now.After(*due)
}

// IsDueSoon reports a deadline that has not passed but falls within horizon.
func IsDueSoon(o *Objection, now time.Time, horizon time.Duration) bool {
	due, _ := ActiveDeadline(o)
	return due != nil && !now.After(*due) && !due.After(now.Add(horizon))
}

// DeadlineStatus is the answer to a deadline check on one objection.
type DeadlineStatus struct {
	Objection     *Objection   `json:"objection"`
	Kind          DeadlineKind `json:"kind,omitempty"`
	DueAt         *time.Time   `json:"due_at,omitempty"`
	Overdue       bool         `json:"overdue"`
	DueSoon       bool         `json:"due_soon"`
	DaysRemaining int          `json:"days_remaining"`
	TacitApplied  bool         `json:"tacit_applied"`
}

func deadlineStatus(o *Objection, now time.Time, horizon time.Duration) DeadlineStatus {
	due, kind := ActiveDeadline(o)
	st := DeadlineStatus{Objection: o, Kind: kind, DueAt: due}
	if due == nil {
		return st
	}
	st.Overdue = IsOverdue(o, now)
	st.DueSoon = IsDueSoon(o, now, horizon)
	st.DaysRemaining = int(due.Sub(now).Hours() / 24)
	return st
}
