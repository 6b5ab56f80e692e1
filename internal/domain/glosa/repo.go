package glosa

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Objection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Objection, error)
	// Update writes o only if the stored version still equals o.Version,
	// then increments o.Version. A stale version yields
	// ErrConcurrentModification.
	Update(ctx context.Context, o *Objection) error
	// FindActive returns the non-terminal objection for the pair, or ErrNotFound.
	FindActive(ctx context.Context, serviceLineID uuid.UUID, reasonCode string) (*Objection, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Objection, int, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Objection, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Objection, error)
	// ListExpired returns ids whose active deadline passed before now and
	// whose tacit rule has not fired yet.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Aggregate(ctx context.Context, f ListFilter, by GroupBy) ([]Bucket, error)
}
