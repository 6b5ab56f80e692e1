package glosa

import "fmt"

type Action string

const (
	ActionNotify      Action = "notify"
	ActionAcknowledge Action = "acknowledge"
	ActionRespond     Action = "respond"
	ActionRatify      Action = "ratify"
	ActionEscalate    Action = "escalate"
	ActionClose       Action = "close"
	ActionSweepExpire Action = "sweep_expire"
	ActionAnnul       Action = "annul"
)

// Command is a side effect the caller of Transition must carry out.
type Command string

const (
	CmdStartResponseDeadline     Command = "start_response_deadline"
	CmdStartRatificationDeadline Command = "start_ratification_deadline"
	CmdClearDeadlines            Command = "clear_deadlines"
	CmdSetTacitProviderFlag      Command = "set_tacit_provider_flag"
	CmdSetTacitInsurerFlag       Command = "set_tacit_insurer_flag"
	CmdApplyFinancials           Command = "apply_financials"
	CmdWriteTrace                Command = "write_trace"
	CmdRecomputeCaseFinancials   Command = "recompute_case_financials"
	CmdPublishEvent              Command = "publish_event"
)

// Expiry names the deadline a sweep_expire transition is acting on.
type Expiry string

const (
	ExpiryResponse     Expiry = "response"
	ExpiryRatification Expiry = "ratification"
)

// Payload carries the action-specific inputs of a transition.
type Payload struct {
	// Decision and Outcome are read by ratify. Outcome is the state mapped
	// from the provider's reply type, used by accept_response.
	Decision Decision
	Outcome  State
	// Expiry is read by sweep_expire.
	Expiry Expiry
	// InCase is set when the objection belongs to a conciliation case.
	InCase bool
}

type Result struct {
	From     State
	To       State
	Action   Action
	Commands []Command
}

func (r Result) Has(cmd Command) bool {
	for _, c := range r.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

var edges = map[Action][]State{
	ActionNotify:      {StateFormulated},
	ActionAcknowledge: {StateNotified},
	ActionRespond:     {StateNotified, StateAwaitingResponse},
	ActionRatify:      {StateResponded},
	ActionEscalate: {StateResponded, StateRatifiedByInsurer, StateAcceptedFully,
		StateAcceptedPartially, StateObjected},
	ActionClose: {StateRatifiedByInsurer, StateAcceptedFully, StateAcceptedPartially,
		StateObjected, StateInConciliation},
	ActionSweepExpire: {StateNotified, StateAwaitingResponse, StateResponded},
	ActionAnnul: {StateFormulated, StateNotified, StateAwaitingResponse, StateResponded,
		StateRatifiedByInsurer, StateAcceptedFully, StateAcceptedPartially, StateObjected,
		StateInConciliation},
}

// Allowed returns a *TransitionError when action has no edge out of from.
func Allowed(from State, action Action) error {
	for _, s := range edges[action] {
		if s == from {
			return nil
		}
	}
	return &TransitionError{From: from, Action: action}
}

// Transition computes the next state and the commands that go with it. It
// never touches a record.
func Transition(from State, action Action, p Payload) (Result, error) {
	if err := Allowed(from, action); err != nil {
		return Result{}, err
	}
	res := Result{From: from, Action: action}

	switch action {
	case ActionNotify:
		res.To = StateNotified
		res.Commands = []Command{CmdStartResponseDeadline, CmdWriteTrace, CmdPublishEvent}
	case ActionAcknowledge:
		res.To = StateAwaitingResponse
		res.Commands = []Command{CmdWriteTrace}
	case ActionRespond:
		res.To = StateResponded
		res.Commands = []Command{CmdStartRatificationDeadline, CmdApplyFinancials, CmdWriteTrace, CmdPublishEvent}
	case ActionRatify:
		to, err := ratifiedState(p)
		if err != nil {
			return Result{}, err
		}
		res.To = to
		res.Commands = []Command{CmdClearDeadlines}
		if p.Decision != DecisionConciliate {
			res.Commands = append(res.Commands, CmdApplyFinancials)
		}
		res.Commands = append(res.Commands, CmdWriteTrace, CmdPublishEvent)
	case ActionEscalate:
		res.To = StateInConciliation
		res.Commands = []Command{CmdClearDeadlines, CmdWriteTrace, CmdPublishEvent}
	case ActionClose:
		res.To = StateClosed
		res.Commands = []Command{CmdClearDeadlines, CmdApplyFinancials, CmdWriteTrace, CmdPublishEvent}
	case ActionSweepExpire:
		flag, err := expiryFlag(from, p.Expiry)
		if err != nil {
			return Result{}, err
		}
		res.To = StateClosed
		res.Commands = []Command{CmdClearDeadlines, CmdApplyFinancials, flag, CmdWriteTrace, CmdPublishEvent}
	case ActionAnnul:
		res.To = StateAnnulled
		res.Commands = []Command{CmdClearDeadlines, CmdWriteTrace, CmdPublishEvent}
	}

	if p.InCase {
		res.Commands = append(res.Commands, CmdRecomputeCaseFinancials)
	}
	return res, nil
}

func ratifiedState(p Payload) (State, error) {
	switch p.Decision {
	case DecisionAcceptResponse:
		switch p.Outcome {
		case StateAcceptedFully, StateAcceptedPartially, StateObjected:
			return p.Outcome, nil
		}
		return "", validationf("response outcome %q cannot be accepted", p.Outcome)
	case DecisionRatifyOriginal:
		return StateRatifiedByInsurer, nil
	case DecisionAcceptPartial:
		return StateAcceptedPartially, nil
	case DecisionConciliate:
		return StateInConciliation, nil
	}
	return "", validationf("unknown ratification decision %q", p.Decision)
}

func expiryFlag(from State, e Expiry) (Command, error) {
	switch {
	case e == ExpiryResponse && from.AwaitingProvider():
		return CmdSetTacitProviderFlag, nil
	case e == ExpiryRatification && from == StateResponded:
		return CmdSetTacitInsurerFlag, nil
	}
	return "", &TransitionError{From: from, Action: Action(fmt.Sprintf("%s(%s)", ActionSweepExpire, e))}
}
