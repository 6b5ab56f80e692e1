package glosa

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
)

type ReplyType string

const (
	ReplyFullyAccepted            ReplyType = "fully_accepted"
	ReplyPartiallyAccepted        ReplyType = "partially_accepted"
	ReplyNotAccepted              ReplyType = "not_accepted"
	ReplyExtemporaneousObjection  ReplyType = "extemporaneous_objection"
	ReplyExtemporaneousDevolution ReplyType = "extemporaneous_devolution"
)

// replyOutcomes maps a reply type to the state the objection reaches if the
// insurer accepts the reply. The mapping ignores the accepted/rejected split.
var replyOutcomes = map[ReplyType]State{
	ReplyFullyAccepted:            StateAcceptedFully,
	ReplyPartiallyAccepted:        StateAcceptedPartially,
	ReplyNotAccepted:              StateObjected,
	ReplyExtemporaneousObjection:  StateObjected,
	ReplyExtemporaneousDevolution: StateObjected,
}

func (r ReplyType) Outcome() (State, bool) {
	s, ok := replyOutcomes[r]
	return s, ok
}

// Response is the provider's reply to an objection.
type Response struct {
	ReplyType     ReplyType `json:"reply_type"`
	AcceptedValue float64   `json:"accepted_value"`
	RejectedValue float64   `json:"rejected_value"`
	Justification string    `json:"justification"`
	Documents     []string  `json:"documents,omitempty"`
	RespondedBy   string    `json:"responded_by"`
	RespondedAt   time.Time `json:"responded_at"`
	Late          bool      `json:"late"`
	Outcome       State     `json:"outcome"`
}

type ResponseInput struct {
	ReplyType     ReplyType `json:"reply_type" validate:"required"`
	AcceptedValue float64   `json:"accepted_value" validate:"gte=0"`
	RejectedValue float64   `json:"rejected_value" validate:"gte=0"`
	Justification string    `json:"justification"`
	Documents     []string  `json:"documents" validate:"dive,required"`
}

// Respond records the provider's reply. The objection must be awaiting it
// and accepted + rejected may not exceed the disputed value.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, in ResponseInput) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleProvider); err != nil {
		return nil, err
	}
	outcome, ok := in.ReplyType.Outcome()
	if !ok {
		return nil, validationf("unknown reply type %q", in.ReplyType)
	}
	if in.AcceptedValue < 0 || in.RejectedValue < 0 {
		return nil, validationf("accepted_value and rejected_value must not be negative")
	}

	now := s.now().UTC()
	return s.run(ctx, id, actor, now, func(o *Objection) ([]step, error) {
		if err := Allowed(o.State, ActionRespond); err != nil {
			return nil, err
		}
		if err := checkProvider(actor, o); err != nil {
			return nil, err
		}
		if exceeds(in.AcceptedValue, in.RejectedValue, o.DisputedValue) {
			return nil, &ValueError{Accepted: in.AcceptedValue, Rejected: in.RejectedValue, Disputed: o.DisputedValue}
		}
		late := o.ResponseDueAt != nil && now.After(*o.ResponseDueAt)
		o.Response = &Response{
			ReplyType:     in.ReplyType,
			AcceptedValue: in.AcceptedValue,
			RejectedValue: in.RejectedValue,
			Justification: strings.TrimSpace(in.Justification),
			Documents:     append([]string(nil), in.Documents...),
			RespondedBy:   actor.UserID,
			RespondedAt:   now,
			Late:          late,
			Outcome:       outcome,
		}
		return []step{{
			action: ActionRespond,
			fx:     effects{accepted: in.AcceptedValue, rejected: in.RejectedValue},
			event:  trace.EventObjectionResponded,
			details: map[string]any{
				"reply_type": string(in.ReplyType),
				"late":       late,
				"documents":  len(in.Documents),
			},
		}}, nil
	})
}
