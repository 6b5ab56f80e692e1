package conciliation

import (
	"time"

	"github.com/glosas/glosas/internal/domain/glosa"
)

// derive computes the state the contained objections put the case in.
// Closed is never derived; only minutes close a case.
func derive(objs []*glosa.Objection) State {
	decided := 0
	for _, o := range objs {
		if o.ConciliationStatus != glosa.ConciliationPending {
			decided++
		}
	}
	switch {
	case len(objs) > 0 && decided == len(objs):
		return StateConciliated
	case decided > 0:
		return StateInConciliation
	case awaitingProvider(objs):
		return StateAwaitingProviderResponse
	case len(objs) > 0:
		// Every reply is in; the mediator owes the next move.
		return StateInConciliation
	}
	return StateOpened
}

// awaitingProvider reports whether any objection still waits on the
// provider's reply.
func awaitingProvider(objs []*glosa.Objection) bool {
	for _, o := range objs {
		if o.State.AwaitingProvider() {
			return true
		}
	}
	return false
}

// advance moves cur towards next but never backwards.
func advance(cur, next State) State {
	if stateRank[next] > stateRank[cur] {
		return next
	}
	return cur
}

// overdue reports a case still waiting on the provider after its response
// deadline. The deadline is cleared once nothing awaits the provider.
func overdue(c *Case, now time.Time) bool {
	waiting := c.State == StateOpened || c.State == StateAwaitingProviderResponse
	return waiting && c.ResponseDueAt != nil && now.After(*c.ResponseDueAt)
}
