package trace

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only: entries are never updated or deleted.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByObjection(ctx context.Context, objectionID uuid.UUID) ([]*Entry, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Entry, error)
}
