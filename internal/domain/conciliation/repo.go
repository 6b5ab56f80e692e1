package conciliation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with ErrCaseAlreadyExists when the batch already has a case.
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	GetByBatch(ctx context.Context, batchID uuid.UUID) (*Case, error)
	// Update writes c if its version is still current and bumps it.
	Update(ctx context.Context, c *Case) error
	// List returns a page of cases, newest first. A limit of 0 returns all.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error)
	// OpenByMediator counts the cases not yet closed per mediator.
	OpenByMediator(ctx context.Context) (map[string]int, error)
}
