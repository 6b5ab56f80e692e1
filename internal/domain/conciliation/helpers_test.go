package conciliation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
	"github.com/glosas/glosas/internal/platform/db"
	"github.com/glosas/glosas/internal/platform/events"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

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

// party is one provider with an invoice in its own batch.
type party struct {
	batch    uuid.UUID
	provider uuid.UUID
	line     *invoice.ServiceLine
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	glosas *glosa.Service
	dir    *invoice.MemoryDirectory
	blobs  *blobstore.MemoryStore
	traces *trace.MemoryRepo
	bus    *events.Recorder
	clock  *testClock
	main   party
	seq    int
}

func newFixture(t *testing.T, roster ...string) *fixture {
	t.Helper()
	clock := &testClock{t: day0}
	traces := trace.NewMemoryRepo()
	bus := &events.Recorder{}
	log := trace.NewLog(traces, bus, zerolog.Nop())
	log.SetClock(clock.Now)

	dir := invoice.NewMemoryDirectory()
	deadlines := glosa.NewDeadlineEngine(glosa.DefaultWindows(), time.UTC)

	glosas := glosa.NewService(glosa.NewMemoryRepo(), dir, log, db.NopTransactor{}, deadlines, zerolog.Nop())
	glosas.SetClock(clock.Now)

	repo := NewMemoryRepo()
	blobs := blobstore.NewMemoryStore()
	svc := NewService(repo, glosas, dir, blobs, log, db.NopTransactor{}, deadlines, NewMediatorPolicy(roster), zerolog.Nop())
	svc.SetClock(clock.Now)
	glosas.SetCaseHook(svc)

	f := &fixture{
		svc:    svc,
		repo:   repo,
		glosas: glosas,
		dir:    dir,
		blobs:  blobs,
		traces: traces,
		bus:    bus,
		clock:  clock,
	}
	f.main = f.newParty(t, "FE-2001", "Clinica Norte")
	return f
}

func (f *fixture) newParty(t *testing.T, number, name string) party {
	t.Helper()
	inv := f.dir.AddInvoice(invoice.Invoice{
		Number:       number,
		BatchID:      uuid.New(),
		ProviderID:   uuid.New(),
		ProviderName: name,
		IssuedAt:     day0.AddDate(0, 0, -20),
	})
	line, err := f.dir.AddLine(inv.ID, invoice.ServiceLine{
		ServiceCode: "890201",
		ServiceType: "consultation",
		BilledValue: 500000,
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	return party{batch: inv.BatchID, provider: inv.ProviderID, line: line}
}

func as(role string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: role + "-1", Roles: []string{role}})
}

func asProvider(p party) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{
		UserID:     "provider-" + p.provider.String()[:8],
		Roles:      []string{auth.RoleProvider},
		ProviderID: p.provider.String(),
	})
}

// formulated creates an objection on the party's line under a fresh reason
// code.
func (f *fixture) formulated(t *testing.T, p party, disputed float64) *glosa.Objection {
	t.Helper()
	f.seq++
	o, err := f.glosas.Create(as(auth.RoleAuditor), glosa.CreateInput{
		ServiceLineID: p.line.ID,
		Category:      glosa.CategoryTariff,
		ReasonCode:    fmt.Sprintf("TA%04d", 100+f.seq),
		DisputedValue: disputed,
		Justification: "Tariff above agreement",
	})
	if err != nil {
		t.Fatalf("create objection: %v", err)
	}
	return o
}

func (f *fixture) notified(t *testing.T, p party, disputed float64) *glosa.Objection {
	t.Helper()
	o := f.formulated(t, p, disputed)
	o, err := f.glosas.Notify(as(auth.RoleAuditor), o.ID)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	return o
}

// rejection is a provider reply contesting the whole disputed value.
func rejection(disputed float64) glosa.ResponseInput {
	return glosa.ResponseInput{
		ReplyType:     glosa.ReplyNotAccepted,
		RejectedValue: disputed,
		Justification: "Service authorised under contract 44",
	}
}

// openCase notifies one objection per value in the main batch and opens
// their case with mediator "mediator-1".
func (f *fixture) openCase(t *testing.T, values ...float64) (*Case, []*glosa.Objection) {
	t.Helper()
	objs := make([]*glosa.Objection, len(values))
	for i, v := range values {
		objs[i] = f.notified(t, f.main, v)
	}
	c, err := f.svc.CreateFromInvoiceBatch(as(auth.RoleAuditor), f.main.batch, "mediator-1")
	if err != nil {
		t.Fatalf("open case: %v", err)
	}
	return c, objs
}

// respondAll has the provider contest every objection through the case.
func (f *fixture) respondAll(t *testing.T, c *Case, objs []*glosa.Objection) *Case {
	t.Helper()
	var err error
	for _, o := range objs {
		c, err = f.svc.RecordProviderResponse(asProvider(f.main), c.ID, o.ID, rejection(o.DisputedValue))
		if err != nil {
			t.Fatalf("respond %s: %v", o.ID, err)
		}
	}
	return c
}

func (f *fixture) decide(t *testing.T, c *Case, o *glosa.Objection, d Decision, note string) *Case {
	t.Helper()
	out, err := f.svc.Decide(as(auth.RoleMediator), c.ID, o.ID, d, note)
	if err != nil {
		t.Fatalf("decide %s: %v", d, err)
	}
	return out
}

func participants() []Participant {
	return []Participant{
		{Name: "Ana Rojas", Role: "mediator", Identification: "CC 5201"},
		{Name: "Luis Pardo", Role: "provider", Identification: "CC 7789", Organization: "Clinica Norte"},
	}
}

func hasKey(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}
