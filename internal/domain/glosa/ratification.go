package glosa

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
)

type Decision string

const (
	DecisionAcceptResponse Decision = "accept_response"
	DecisionRatifyOriginal Decision = "ratify_original"
	DecisionAcceptPartial  Decision = "accept_partial"
	DecisionConciliate     Decision = "conciliate"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAcceptResponse, DecisionRatifyOriginal, DecisionAcceptPartial, DecisionConciliate:
		return true
	}
	return false
}

// Ratification is the insurer's decision on a provider's reply.
type Ratification struct {
	Decision      Decision  `json:"decision"`
	AcceptedValue float64   `json:"accepted_value"`
	DisputedValue float64   `json:"disputed_value"`
	Justification string    `json:"justification,omitempty"`
	RatifiedBy    string    `json:"ratified_by"`
	RatifiedAt    time.Time `json:"ratified_at"`
	Late          bool      `json:"late"`
}

// RatificationInput values are read only by accept_partial.
type RatificationInput struct {
	Decision      Decision `json:"decision" validate:"required"`
	AcceptedValue float64  `json:"accepted_value" validate:"gte=0"`
	DisputedValue float64  `json:"disputed_value" validate:"gte=0"`
	Justification string   `json:"justification"`
}

// settle returns the final accepted/rejected split for the decision.
func settle(o *Objection, in RatificationInput) (effects, error) {
	switch in.Decision {
	case DecisionAcceptResponse:
		return effects{accepted: 0, rejected: o.DisputedValue}, nil
	case DecisionRatifyOriginal:
		return effects{accepted: o.DisputedValue, rejected: 0}, nil
	case DecisionAcceptPartial:
		if strings.TrimSpace(in.Justification) == "" {
			return effects{}, justificationf("accept_partial requires a justification")
		}
		if exceeds(in.AcceptedValue, in.DisputedValue, o.DisputedValue) {
			return effects{}, &ValueError{Accepted: in.AcceptedValue, Rejected: in.DisputedValue, Disputed: o.DisputedValue}
		}
		return effects{accepted: in.AcceptedValue, rejected: in.DisputedValue}, nil
	case DecisionConciliate:
		return effects{accepted: o.AcceptedValue, rejected: o.RejectedValue}, nil
	}
	return effects{}, validationf("unknown ratification decision %q", in.Decision)
}

// Ratify records the insurer's decision on a responded objection.
func (s *Service) Ratify(ctx context.Context, id uuid.UUID, in RatificationInput) (*Objection, error) {
	actor := auth.IdentityFromContext(ctx)
	if err := requireRole(actor, auth.RoleInsurer); err != nil {
		return nil, err
	}
	if !in.Decision.Valid() {
		return nil, validationf("unknown ratification decision %q", in.Decision)
	}

	now := s.now().UTC()
	return s.run(ctx, id, actor, now, func(o *Objection) ([]step, error) {
		if err := Allowed(o.State, ActionRatify); err != nil {
			return nil, err
		}
		if o.Response == nil {
			return nil, validationf("objection %s has no provider response", o.ID)
		}
		fx, err := settle(o, in)
		if err != nil {
			return nil, err
		}
		late := o.RatificationDueAt != nil && now.After(*o.RatificationDueAt)
		o.Ratification = &Ratification{
			Decision:      in.Decision,
			AcceptedValue: fx.accepted,
			DisputedValue: fx.rejected,
			Justification: strings.TrimSpace(in.Justification),
			RatifiedBy:    actor.UserID,
			RatifiedAt:    now,
			Late:          late,
		}
		return []step{{
			action:  ActionRatify,
			payload: Payload{Decision: in.Decision, Outcome: o.Response.Outcome},
			fx:      fx,
			event:   trace.EventObjectionRatified,
			details: map[string]any{"decision": string(in.Decision), "late": late},
		}}, nil
	})
}
