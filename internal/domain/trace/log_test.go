package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/events"
)

func newTestLog(pub events.Publisher) (*Log, *MemoryRepo) {
	repo := NewMemoryRepo()
	l := NewLog(repo, pub, zerolog.Nop())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	l.SetClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
	return l, repo
}

func TestLog_AppendAndList(t *testing.T) {
	l, _ := newTestLog(nil)
	ctx := context.Background()
	objID := uuid.New()
	caseID := uuid.New()
	actor := auth.Identity{UserID: "aud-1", Roles: []string{auth.RoleAuditor}}

	first := ForObjection(objID, EventObjectionCreated, actor).States("", "formulated")
	if err := l.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	second := ForObjection(objID, EventObjectionNotified, actor).States("formulated", "notified").With("response_due_at", "2026-03-06").InCase(&caseID)
	if err := l.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(ctx, ForCase(uuid.New(), EventCaseCreated, actor)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.ListByObjection(ctx, objID)
	if err != nil {
		t.Fatalf("ListByObjection: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Event != EventObjectionCreated || got[1].Event != EventObjectionNotified {
		t.Errorf("unexpected order %s, %s", got[0].Event, got[1].Event)
	}
	if got[1].ActorRole != auth.RoleAuditor || got[1].Details["response_due_at"] != "2026-03-06" {
		t.Errorf("unexpected entry %+v", got[1])
	}
	if got[0].ID == uuid.Nil || got[0].CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be assigned")
	}

	byCase, _ := l.ListByCase(ctx, caseID)
	if len(byCase) != 1 || byCase[0].Event != EventObjectionNotified {
		t.Errorf("expected the notified entry under the case, got %d", len(byCase))
	}
}

func TestLog_AppendRequiresSubject(t *testing.T) {
	l, repo := newTestLog(nil)
	err := l.Append(context.Background(), &Entry{Event: EventCaseCreated, ActorID: "x"})
	if err == nil {
		t.Fatal("expected error for entry without subject")
	}
	if len(repo.Events()) != 0 {
		t.Error("entry should not be stored")
	}
}

func TestLog_Publish(t *testing.T) {
	rec := &events.Recorder{}
	l, _ := newTestLog(rec)
	ctx := context.Background()
	e := ForObjection(uuid.New(), EventTacitAcceptance, auth.SystemIdentity)
	if err := l.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Publish(ctx, e)

	msgs := rec.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].RoutingKey != "objection.tacit_acceptance" || msgs[0].ID != e.ID.String() {
		t.Errorf("unexpected message %+v", msgs[0])
	}
}

func TestLog_PublishFailureIsSwallowed(t *testing.T) {
	rec := &events.Recorder{Err: errors.New("broker down")}
	l, repo := newTestLog(rec)
	ctx := context.Background()
	e := ForCase(uuid.New(), EventCaseMinutesGenerated, auth.SystemIdentity)
	if err := l.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Publish(ctx, e)
	if repo.Count(EventCaseMinutesGenerated) != 1 {
		t.Error("entry must stay in the log when publishing fails")
	}
}

func TestLog_DeferredPublish(t *testing.T) {
	rec := &events.Recorder{}
	l, _ := newTestLog(rec)
	ctx, flush := l.Deferred(context.Background())

	inner, innerFlush := l.Deferred(ctx)
	if err := l.Record(inner, ForObjection(uuid.New(), EventObjectionCreated, auth.SystemIdentity)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	innerFlush(inner)
	if len(rec.Messages()) != 0 {
		t.Fatal("nested flush must not publish")
	}

	if err := l.Record(ctx, ForObjection(uuid.New(), EventObjectionNotified, auth.SystemIdentity)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	flush(context.Background())

	keys := rec.Keys()
	if len(keys) != 2 || keys[0] != "objection.created" || keys[1] != "objection.notified" {
		t.Errorf("unexpected published keys %v", keys)
	}
}

func TestLog_DeferredDiscardedWithoutFlush(t *testing.T) {
	rec := &events.Recorder{}
	l, repo := newTestLog(rec)
	ctx, _ := l.Deferred(context.Background())
	if err := l.Record(ctx, ForCase(uuid.New(), EventCaseCreated, auth.SystemIdentity)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(rec.Messages()) != 0 {
		t.Error("queued entries must not be sent before flush")
	}
	if repo.Count(EventCaseCreated) != 1 {
		t.Error("entry should still be appended")
	}
}
