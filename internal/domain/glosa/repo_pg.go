package glosa

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

	"github.com/glosas/glosas/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const activeObjectionIndex = "objection_active_uq"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const objectionCols = `id, version, batch_id, invoice_id, service_line_id, provider_id,
	invoice_number, provider_name, service_code, service_type,
	category, reason_code, is_devolution, billed_value, disputed_value, justification, state,
	response_due_at, ratification_due_at, notified_at, responded_at, ratified_at, closed_at,
	tacit_acceptance_by_provider, tacit_rejection_by_insurer, accepted_value, rejected_value,
	response, ratification, case_id, conciliation_status, conciliation_note,
	created_by, created_at, updated_at`

func scanObjection(row pgx.Row) (*Objection, error) {
	var o Objection
	var category, state, concStatus string
	var response, ratification []byte
	err := row.Scan(&o.ID, &o.Version, &o.BatchID, &o.InvoiceID, &o.ServiceLineID, &o.ProviderID,
		&o.InvoiceNumber, &o.ProviderName, &o.ServiceCode, &o.ServiceType,
		&category, &o.ReasonCode, &o.IsDevolution, &o.BilledValue, &o.DisputedValue, &o.Justification, &state,
		&o.ResponseDueAt, &o.RatificationDueAt, &o.NotifiedAt, &o.RespondedAt, &o.RatifiedAt, &o.ClosedAt,
		&o.TacitAcceptanceByProvider, &o.TacitRejectionByInsurer, &o.AcceptedValue, &o.RejectedValue,
		&response, &ratification, &o.CaseID, &concStatus, &o.ConciliationNote,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Category = Category(category)
	o.State = State(state)
	o.ConciliationStatus = ConciliationStatus(concStatus)
	if len(response) > 0 {
		o.Response = &Response{}
		if err := json.Unmarshal(response, o.Response); err != nil {
			return nil, fmt.Errorf("decode response of objection %s: %w", o.ID, err)
		}
	}
	if len(ratification) > 0 {
		o.Ratification = &Ratification{}
		if err := json.Unmarshal(ratification, o.Ratification); err != nil {
			return nil, fmt.Errorf("decode ratification of objection %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

// jsonb encodes v, or returns nil for a nil pointer so the column stays NULL.
func jsonb[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *repoPG) Create(ctx context.Context, o *Objection) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Version == 0 {
		o.Version = 1
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO objection (id, version, batch_id, invoice_id, service_line_id, provider_id,
			invoice_number, provider_name, service_code, service_type,
			category, reason_code, is_devolution, billed_value, disputed_value, justification, state,
			created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		o.ID, o.Version, o.BatchID, o.InvoiceID, o.ServiceLineID, o.ProviderID,
		o.InvoiceNumber, o.ProviderName, o.ServiceCode, o.ServiceType,
		string(o.Category), o.ReasonCode, o.IsDevolution, o.BilledValue, o.DisputedValue, o.Justification, string(o.State),
		o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if db.IsUniqueViolation(err, activeObjectionIndex) {
		return fmt.Errorf("%w: service line %s already has an active objection with reason %s",
			ErrDuplicateActiveObjection, o.ServiceLineID, o.ReasonCode)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Objection, error) {
	o, err := scanObjection(r.conn(ctx).QueryRow(ctx, `SELECT `+objectionCols+` FROM objection WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("objection %s: %w", id, ErrNotFound)
	}
	return o, err
}

func (r *repoPG) Update(ctx context.Context, o *Objection) error {
	response, err := jsonb(o.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	ratification, err := jsonb(o.Ratification)
	if err != nil {
		return fmt.Errorf("encode ratification: %w", err)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE objection SET version = version + 1, state=$3,
			response_due_at=$4, ratification_due_at=$5,
			notified_at=$6, responded_at=$7, ratified_at=$8, closed_at=$9,
			tacit_acceptance_by_provider=$10, tacit_rejection_by_insurer=$11,
			accepted_value=$12, rejected_value=$13, response=$14, ratification=$15,
			case_id=$16, conciliation_status=$17, conciliation_note=$18, updated_at=$19
		WHERE id = $1 AND version = $2`,
		o.ID, o.Version, string(o.State),
		o.ResponseDueAt, o.RatificationDueAt,
		o.NotifiedAt, o.RespondedAt, o.RatifiedAt, o.ClosedAt,
		o.TacitAcceptanceByProvider, o.TacitRejectionByInsurer,
		o.AcceptedValue, o.RejectedValue, response, ratification,
		o.CaseID, string(o.ConciliationStatus), o.ConciliationNote, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM objection WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("objection %s: %w", o.ID, ErrNotFound)
		}
		return fmt.Errorf("%w: objection %s changed since version %d", ErrConcurrentModification, o.ID, o.Version)
	}
	o.Version++
	return nil
}

func (r *repoPG) FindActive(ctx context.Context, serviceLineID uuid.UUID, reasonCode string) (*Objection, error) {
	o, err := scanObjection(r.conn(ctx).QueryRow(ctx, `
		SELECT `+objectionCols+` FROM objection
		WHERE service_line_id = $1 AND reason_code = $2 AND state NOT IN ('closed', 'annulled')`,
		serviceLineID, reasonCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func applyFilter(q *db.Query, f ListFilter) {
	if f.ProviderID != nil {
		q.Eq("provider_id", *f.ProviderID)
	}
	if f.InvoiceID != nil {
		q.Eq("invoice_id", *f.InvoiceID)
	}
	if f.BatchID != nil {
		q.Eq("batch_id", *f.BatchID)
	}
	if f.CaseID != nil {
		q.Eq("case_id", *f.CaseID)
	}
	if f.Category != "" {
		q.Eq("category", string(f.Category))
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		q.In("state", states)
	}
	if f.CreatedFrom != nil {
		q.Add("created_at >= %s", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q.Add("created_at < %s", *f.CreatedTo)
	}
	if f.OnlyOverdue {
		q.Add(`((state IN ('notified', 'awaiting_response') AND response_due_at < %s)
			OR (state = 'responded' AND ratification_due_at < %s))`, f.Now, f.Now)
	}
	if f.OnlyDueSoon {
		q.Add(`((state IN ('notified', 'awaiting_response') AND response_due_at BETWEEN %s AND %s)
			OR (state = 'responded' AND ratification_due_at BETWEEN %s AND %s))`,
			f.Now, f.DueSoonUntil, f.Now, f.DueSoonUntil)
	}
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Objection, int, error) {
	q := db.NewQuery("objection", objectionCols)
	applyFilter(q, f)
	q.OrderBy("created_at DESC, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, q.DataSQL(limit), q.DataArgs(limit, offset)...)
	return items, total, err
}

func (r *repoPG) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Objection, error) {
	return r.query(ctx, `SELECT `+objectionCols+` FROM objection WHERE batch_id = $1 ORDER BY invoice_number, created_at`, batchID)
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Objection, error) {
	return r.query(ctx, `SELECT `+objectionCols+` FROM objection WHERE case_id = $1 ORDER BY invoice_number, created_at`, caseID)
}

func (r *repoPG) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM objection
		WHERE (state IN ('notified', 'awaiting_response') AND response IS NULL
				AND NOT tacit_acceptance_by_provider AND response_due_at < $1)
			OR (state = 'responded' AND ratification IS NULL
				AND NOT tacit_rejection_by_insurer AND ratification_due_at < $1)
		ORDER BY CASE WHEN state = 'responded' THEN ratification_due_at ELSE response_due_at END
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var groupKeys = map[GroupBy]string{
	GroupNone:     "''",
	GroupCategory: "category",
	GroupState:    "state",
	GroupProvider: "provider_id::text",
}

func (r *repoPG) Aggregate(ctx context.Context, f ListFilter, by GroupBy) ([]Bucket, error) {
	key, ok := groupKeys[by]
	if !ok {
		return nil, fmt.Errorf("unknown grouping %q", by)
	}
	label := "''"
	if by == GroupProvider {
		label = "MAX(provider_name)"
	}
	q := db.NewQuery("objection", fmt.Sprintf(`%s, %s, COUNT(*),
		COALESCE(SUM(disputed_value), 0), COALESCE(SUM(accepted_value), 0), COALESCE(SUM(rejected_value), 0)`, key, label))
	applyFilter(q, f)
	if by != GroupNone {
		q.GroupBy("1")
		q.OrderBy("1")
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(0), q.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Label, &b.Count, &b.Disputed, &b.Accepted, &b.Rejected); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repoPG) query(ctx context.Context, sql string, args ...any) ([]*Objection, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Objection
	for rows.Next() {
		o, err := scanObjection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
