package conciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const batchIndex = "conciliation_case_batch_uq"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const caseCols = `id, version, batch_id, mediator, state, invoices, meetings, documents,
	summary, minutes, response_due_at, created_by, created_at, updated_at, closed_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var state string
	var invoices, meetings, documents, summary, minutes []byte
	err := row.Scan(&c.ID, &c.Version, &c.BatchID, &c.Mediator, &state,
		&invoices, &meetings, &documents, &summary, &minutes,
		&c.ResponseDueAt, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt)
	if err != nil {
		return nil, err
	}
	c.State = State(state)
	for _, col := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"invoices", invoices, &c.Invoices},
		{"meetings", meetings, &c.Meetings},
		{"documents", documents, &c.Documents},
		{"summary", summary, &c.Summary},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode %s of case %s: %w", col.name, c.ID, err)
		}
	}
	if len(minutes) > 0 {
		c.Minutes = &Minutes{}
		if err := json.Unmarshal(minutes, c.Minutes); err != nil {
			return nil, fmt.Errorf("decode minutes of case %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// columns encodes the JSONB columns of c in table order.
func columns(c *Case) (invoices, meetings, documents, summary, minutes []byte, err error) {
	if invoices, err = json.Marshal(nonNil(c.Invoices)); err != nil {
		return
	}
	if meetings, err = json.Marshal(nonNil(c.Meetings)); err != nil {
		return
	}
	if documents, err = json.Marshal(nonNil(c.Documents)); err != nil {
		return
	}
	if summary, err = json.Marshal(c.Summary); err != nil {
		return
	}
	if c.Minutes != nil {
		minutes, err = json.Marshal(c.Minutes)
	}
	return
}

// nonNil keeps empty collections as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r *repoPG) Create(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Version == 0 {
		c.Version = 1
	}
	invoices, meetings, documents, summary, minutes, err := columns(c)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO conciliation_case (id, version, batch_id, mediator, state, invoices, meetings,
			documents, summary, minutes, response_due_at, created_by, created_at, updated_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.Version, c.BatchID, c.Mediator, string(c.State), invoices, meetings,
		documents, summary, minutes, c.ResponseDueAt, c.CreatedBy, c.CreatedAt, c.UpdatedAt, c.ClosedAt)
	if db.IsUniqueViolation(err, batchIndex) {
		return fmt.Errorf("%w: batch %s", ErrCaseAlreadyExists, c.BatchID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	c, err := scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM conciliation_case WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return c, err
}

func (r *repoPG) GetByBatch(ctx context.Context, batchID uuid.UUID) (*Case, error) {
	c, err := scanCase(r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM conciliation_case WHERE batch_id = $1`, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conciliation case for batch %s: %w", batchID, glosa.ErrNotFound)
	}
	return c, err
}

func (r *repoPG) Update(ctx context.Context, c *Case) error {
	invoices, meetings, documents, summary, minutes, err := columns(c)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE conciliation_case SET version = version + 1, mediator=$3, state=$4,
			invoices=$5, meetings=$6, documents=$7, summary=$8, minutes=$9,
			response_due_at=$10, updated_at=$11, closed_at=$12
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, c.Mediator, string(c.State),
		invoices, meetings, documents, summary, minutes,
		c.ResponseDueAt, c.UpdatedAt, c.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conciliation_case WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return notFound(c.ID)
		}
		return fmt.Errorf("%w: conciliation case %s changed since version %d", glosa.ErrConcurrentModification, c.ID, c.Version)
	}
	c.Version++
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Case, int, error) {
	q := db.NewQuery("conciliation_case", caseCols)
	if f.State != "" {
		q.Eq("state", string(f.State))
	}
	if f.Mediator != "" {
		q.Eq("mediator", f.Mediator)
	}
	if f.ProviderID != nil {
		q.Add("invoices @> %s::jsonb", fmt.Sprintf(`[{"provider_id":%q}]`, f.ProviderID.String()))
	}
	if f.OnlyOverdue {
		q.Add("state IN ('opened', 'awaiting_provider_response') AND response_due_at < %s", f.Now)
	}
	q.OrderBy("created_at DESC, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) OpenByMediator(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT mediator, COUNT(*) FROM conciliation_case
		WHERE state <> 'closed' GROUP BY mediator`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var m string
		var n int
		if err := rows.Scan(&m, &n); err != nil {
			return nil, err
		}
		out[m] = n
	}
	return out, rows.Err()
}
