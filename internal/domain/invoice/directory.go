package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glosas/glosas/internal/platform/db"
)

// Directory is the read-only view of claim data the engine consumes.
type Directory interface {
	GetServiceLine(ctx context.Context, id uuid.UUID) (*ServiceLine, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Invoice, error)
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (d *directoryPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return d.pool
}

const invoiceCols = `id, number, batch_id, provider_id, provider_name, issued_at, total_value`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	if err := row.Scan(&inv.ID, &inv.Number, &inv.BatchID, &inv.ProviderID,
		&inv.ProviderName, &inv.IssuedAt, &inv.TotalValue); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (d *directoryPG) GetServiceLine(ctx context.Context, id uuid.UUID) (*ServiceLine, error) {
	var sl ServiceLine
	err := d.conn(ctx).QueryRow(ctx, `
		SELECT sl.id, sl.invoice_id, i.batch_id, i.provider_id, i.number, i.provider_name,
			sl.service_code, sl.service_type, sl.description, sl.quantity, sl.billed_value
		FROM service_line sl
		JOIN invoice i ON i.id = sl.invoice_id
		WHERE sl.id = $1`, id).Scan(
		&sl.ID, &sl.InvoiceID, &sl.BatchID, &sl.ProviderID, &sl.InvoiceNumber, &sl.ProviderName,
		&sl.ServiceCode, &sl.ServiceType, &sl.Description, &sl.Quantity, &sl.BilledValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service line %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sl, nil
}

func (d *directoryPG) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(d.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return inv, err
}

func (d *directoryPG) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Invoice, error) {
	rows, err := d.conn(ctx).Query(ctx, `SELECT `+invoiceCols+` FROM invoice WHERE batch_id = $1 ORDER BY number`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	return items, rows.Err()
}
