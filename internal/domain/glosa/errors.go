package glosa

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrValueExceedsDisputed     = errors.New("value exceeds disputed value")
	ErrMissingJustification     = errors.New("missing justification")
	ErrDuplicateActiveObjection = errors.New("duplicate active objection")
	ErrNotFound                 = errors.New("not found")
	ErrForbidden                = errors.New("forbidden")
	ErrConcurrentModification   = errors.New("concurrent modification")
	ErrValidation               = errors.New("validation failed")
)

// TransitionError names the state and the action that was refused.
type TransitionError struct {
	From   State
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s an objection in state %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValueError reports an accepted/rejected split larger than the disputed value.
type ValueError struct {
	Accepted float64
	Rejected float64
	Disputed float64
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("accepted %.2f + rejected %.2f exceeds disputed value %.2f", e.Accepted, e.Rejected, e.Disputed)
}

func (e *ValueError) Unwrap() error { return ErrValueExceedsDisputed }

type ForbiddenError struct {
	Role     string
	Required []string
}

func (e *ForbiddenError) Error() string {
	role := e.Role
	if role == "" {
		role = "anonymous"
	}
	return fmt.Sprintf("forbidden: role %s may not perform this action (requires %s)", role, strings.Join(e.Required, " or "))
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func justificationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingJustification, fmt.Sprintf(format, args...))
}
