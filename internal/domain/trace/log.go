package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/platform/events"
)

// Log is the traceability log. Append runs inside the caller's unit of work;
// Publish is called once that work has committed.
type Log struct {
	repo   Repository
	pub    events.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewLog(repo Repository, pub events.Publisher, logger zerolog.Logger) *Log {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Log{repo: repo, pub: pub, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (l *Log) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Log) Append(ctx context.Context, e *Entry) error {
	if e.ObjectionID == nil && e.CaseID == nil {
		return fmt.Errorf("trace entry %s has no subject", e.Event)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append trace %s: %w", e.Event, err)
	}
	return nil
}

// Publish emits entries to the event bus. Under a Deferred context the
// entries are queued until the flush. Delivery is best effort: the entries
// are already durable in the log, so failures are only logged.
func (l *Log) Publish(ctx context.Context, entries ...*Entry) {
	if q, ok := ctx.Value(queueKey{}).(*queue); ok {
		q.mu.Lock()
		q.entries = append(q.entries, entries...)
		q.mu.Unlock()
		return
	}
	l.send(ctx, entries)
}

// Record appends e and publishes it.
func (l *Log) Record(ctx context.Context, e *Entry) error {
	if err := l.Append(ctx, e); err != nil {
		return err
	}
	l.Publish(ctx, e)
	return nil
}

type queueKey struct{}

type queue struct {
	mu      sync.Mutex
	entries []*Entry
}

// Deferred returns a context whose published entries wait for flush. Call
// flush only after the unit of work commits. Nested calls join the outer
// queue and get a no-op flush.
func (l *Log) Deferred(ctx context.Context) (context.Context, func(context.Context)) {
	if _, ok := ctx.Value(queueKey{}).(*queue); ok {
		return ctx, func(context.Context) {}
	}
	q := &queue{}
	return context.WithValue(ctx, queueKey{}, q), func(ctx context.Context) {
		q.mu.Lock()
		pending := q.entries
		q.entries = nil
		q.mu.Unlock()
		l.send(ctx, pending)
	}
}

func (l *Log) send(ctx context.Context, entries []*Entry) {
	for _, e := range entries {
		msg := events.Message{
			ID:         e.ID.String(),
			RoutingKey: string(e.Event),
			OccurredAt: e.CreatedAt,
			Payload:    e,
		}
		if err := l.pub.Publish(ctx, msg); err != nil {
			l.logger.Warn().Err(err).Str("event", string(e.Event)).Str("entry_id", e.ID.String()).Msg("failed to publish trace event")
		}
	}
}

func (l *Log) ListByObjection(ctx context.Context, objectionID uuid.UUID) ([]*Entry, error) {
	return l.repo.ListByObjection(ctx, objectionID)
}

func (l *Log) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Entry, error) {
	return l.repo.ListByCase(ctx, caseID)
}
