package trace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glosas/glosas/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, objection_id, case_id, event, from_state, to_state,
	actor_id, actor_role, details, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var event string
	var details []byte
	if err := row.Scan(&e.ID, &e.ObjectionID, &e.CaseID, &event, &e.FromState, &e.ToState,
		&e.ActorID, &e.ActorRole, &details, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Event = Event(event)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode trace details: %w", err)
		}
	}
	return &e, nil
}

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode trace details: %w", err)
	}
	if e.Details == nil {
		details = []byte("{}")
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO trace_entry (id, objection_id, case_id, event, from_state, to_state,
			actor_id, actor_role, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.ObjectionID, e.CaseID, string(e.Event), e.FromState, e.ToState,
		e.ActorID, e.ActorRole, details, e.CreatedAt)
	return err
}

func (r *repoPG) ListByObjection(ctx context.Context, objectionID uuid.UUID) ([]*Entry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM trace_entry WHERE objection_id = $1 ORDER BY created_at, id`, objectionID)
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Entry, error) {
	return r.list(ctx, `SELECT `+entryCols+` FROM trace_entry WHERE case_id = $1 ORDER BY created_at, id`, caseID)
}

func (r *repoPG) list(ctx context.Context, sql string, id uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
