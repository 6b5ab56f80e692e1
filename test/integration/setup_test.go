//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/glosas/glosas/internal/domain/conciliation"
	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
	"github.com/glosas/glosas/internal/platform/db"
	"github.com/glosas/glosas/internal/platform/events"
	"github.com/glosas/glosas/migrations"
)

// pool is shared by every test; tests isolate themselves with fresh batches.
var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("glosas"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				log.Printf("failed to terminate postgres container: %v", err)
			}
		}()

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
			return 1
		}
		pool, err = db.NewPool(ctx, connStr, 10, 1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect: %v\n", err)
			return 1
		}
		defer pool.Close()

		if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return 1
		}
		return m.Run()
	}()
	os.Exit(code)
}

type stack struct {
	glosas       *glosa.Service
	sweeper      *glosa.Sweeper
	conciliation *conciliation.Service
	objections   glosa.Repository
	cases        conciliation.Repository
	traces       trace.Repository
	bus          *events.Recorder
}

func newStack(t *testing.T) *stack {
	t.Helper()
	bus := &events.Recorder{}
	traces := trace.NewRepoPG(pool)
	log := trace.NewLog(traces, bus, zerolog.Nop())
	tx := db.NewTxManager(pool)
	invoices := invoice.NewDirectoryPG(pool)
	deadlines := glosa.NewDeadlineEngine(glosa.DefaultWindows(), time.UTC)

	objections := glosa.NewRepoPG(pool)
	glosas := glosa.NewService(objections, invoices, log, tx, deadlines, zerolog.Nop())
	cases := conciliation.NewRepoPG(pool)
	concSvc := conciliation.NewService(cases, glosas, invoices, blobstore.NewMemoryStore(), log, tx, deadlines, nil, zerolog.Nop())
	glosas.SetCaseHook(concSvc)

	return &stack{
		glosas:       glosas,
		sweeper:      glosa.NewSweeper(glosas, nil, glosa.DefaultSweeperConfig(), zerolog.Nop()),
		conciliation: concSvc,
		objections:   objections,
		cases:        cases,
		traces:       traces,
		bus:          bus,
	}
}

type seeded struct {
	batch    uuid.UUID
	provider uuid.UUID
	lines    []uuid.UUID
}

// seedInvoice writes one invoice with n service lines in a fresh batch.
func seedInvoice(t *testing.T, n int) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{batch: uuid.New(), provider: uuid.New()}
	invoiceID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO invoice (id, number, batch_id, provider_id, provider_name, total_value) VALUES ($1, $2, $3, $4, $5, $6)`,
		invoiceID, "FE-"+invoiceID.String()[:6], s.batch, s.provider, "Clinica Norte", 500000*n)
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	for i := 0; i < n; i++ {
		id := uuid.New()
		_, err := pool.Exec(ctx,
			`INSERT INTO service_line (id, invoice_id, service_code, service_type, billed_value) VALUES ($1, $2, $3, $4, $5)`,
			id, invoiceID, fmt.Sprintf("8902%02d", i), "consultation", 500000)
		if err != nil {
			t.Fatalf("seed line: %v", err)
		}
		s.lines = append(s.lines, id)
	}
	return s
}

func as(role string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: role + "-1", Roles: []string{role}})
}

func asProvider(s seeded) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{
		UserID:     "provider-1",
		Roles:      []string{auth.RoleProvider},
		ProviderID: s.provider.String(),
	})
}

func notify(t *testing.T, st *stack, line uuid.UUID, disputed float64) *glosa.Objection {
	t.Helper()
	o, err := st.glosas.Create(as(auth.RoleAuditor), glosa.CreateInput{
		ServiceLineID: line,
		Category:      glosa.CategoryTariff,
		ReasonCode:    "TA0201",
		DisputedValue: disputed,
		Justification: "Tariff above agreement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o, err = st.glosas.Notify(as(auth.RoleAuditor), o.ID); err != nil {
		t.Fatalf("notify: %v", err)
	}
	return o
}
