package glosa

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/db"
	"github.com/glosas/glosas/internal/platform/events"
)

// day0 is the reference instant the scenarios count deadlines from.
var day0 = time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepo
	dir      *invoice.MemoryDirectory
	traces   *trace.MemoryRepo
	bus      *events.Recorder
	clock    *testClock
	line     *invoice.ServiceLine
	provider uuid.UUID
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := invoice.NewMemoryDirectory()
	inv := dir.AddInvoice(invoice.Invoice{
		Number:       "FE-1001",
		BatchID:      uuid.New(),
		ProviderID:   uuid.New(),
		ProviderName: "Clinica Norte",
		IssuedAt:     day0.AddDate(0, 0, -30),
	})
	line, err := dir.AddLine(inv.ID, invoice.ServiceLine{
		ServiceCode: "890201",
		ServiceType: "consultation",
		Description: "General practice consultation",
		BilledValue: 150000,
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}

	clock := &testClock{t: day0}
	traces := trace.NewMemoryRepo()
	bus := &events.Recorder{}
	log := trace.NewLog(traces, bus, zerolog.Nop())
	log.SetClock(clock.Now)

	repo := NewMemoryRepo()
	svc := NewService(repo, dir, log, db.NopTransactor{}, NewDeadlineEngine(DefaultWindows(), time.UTC), zerolog.Nop())
	svc.SetClock(clock.Now)

	return &fixture{
		svc:      svc,
		repo:     repo,
		dir:      dir,
		traces:   traces,
		bus:      bus,
		clock:    clock,
		line:     line,
		provider: inv.ProviderID,
	}
}

func as(role string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: role + "-1", Roles: []string{role}})
}

// asProvider acts as a user of the fixture's provider.
func (f *fixture) asProvider() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{
		UserID:     "provider-1",
		Roles:      []string{auth.RoleProvider},
		ProviderID: f.provider.String(),
	})
}

func (f *fixture) create(t *testing.T, reason string, disputed float64) *Objection {
	t.Helper()
	o, err := f.svc.Create(as(auth.RoleAuditor), CreateInput{
		ServiceLineID: f.line.ID,
		Category:      Category(reason[:2]),
		ReasonCode:    reason,
		DisputedValue: disputed,
		Justification: "Tariff above agreement",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return o
}

// notified creates and notifies an objection under a fresh reason code.
func (f *fixture) notified(t *testing.T, disputed float64) *Objection {
	t.Helper()
	f.seq++
	o := f.create(t, fmt.Sprintf("TA%04d", 200+f.seq), disputed)
	o, err := f.svc.Notify(as(auth.RoleAuditor), o.ID)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	return o
}

func (f *fixture) responded(t *testing.T, disputed float64, in ResponseInput) *Objection {
	t.Helper()
	o := f.notified(t, disputed)
	o, err := f.svc.Respond(f.asProvider(), o.ID, in)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	return o
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *Objection {
	t.Helper()
	o, err := f.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return o
}

// hookedRepo runs beforeUpdate once, just before the next Update.
type hookedRepo struct {
	*MemoryRepo
	beforeUpdate func()
}

func (r *hookedRepo) Update(ctx context.Context, o *Objection) error {
	if h := r.beforeUpdate; h != nil {
		r.beforeUpdate = nil
		h()
	}
	return r.MemoryRepo.Update(ctx, o)
}

type recordingHook struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (h *recordingHook) RecomputeCase(_ context.Context, caseID uuid.UUID, _ auth.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, caseID)
	return h.err
}
