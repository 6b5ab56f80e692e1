package glosa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/glosas/glosas/internal/platform/lock"
)

const sweepLockKey = "expiry-sweep"

type SweeperConfig struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
	// LockTTL bounds how long a crashed replica can block the others.
	LockTTL time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    10 * time.Minute,
		Concurrency: 8,
		BatchSize:   500,
		LockTTL:     5 * time.Minute,
	}
}

// SweepReport summarises one sweep pass.
type SweepReport struct {
	At               time.Time     `json:"at"`
	Candidates       int           `json:"candidates"`
	TacitAcceptances int           `json:"tacit_acceptances"`
	TacitRejections  int           `json:"tacit_rejections"`
	Skipped          int           `json:"skipped"`
	Conflicts        int           `json:"conflicts"`
	Failed           int           `json:"failed"`
	Duration         time.Duration `json:"duration"`
}

// Sweeper periodically applies tacit resolutions to objections whose
// deadline elapsed in silence. Passes are idempotent: a record is re-read
// and re-checked before each transition, so running twice changes nothing.
type Sweeper struct {
	svc    *Service
	locker lock.Locker
	cfg    SweeperConfig
	logger zerolog.Logger
}

func NewSweeper(svc *Service, locker lock.Locker, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if locker == nil {
		locker = lock.LocalLocker{}
	}
	return &Sweeper{svc: svc, locker: locker, cfg: cfg, logger: logger}
}

// RunOnce processes every expired candidate as of now. Candidates are
// independent; one failing does not stop the others. Records lost to a
// concurrent writer are counted as conflicts and picked up next pass.
func (w *Sweeper) RunOnce(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()
	ids, err := w.svc.repo.ListExpired(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{At: now, Candidates: len(ids)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			fired, err := w.svc.Expire(gctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrConcurrentModification):
				report.Conflicts++
			case err != nil:
				report.Failed++
				w.logger.Error().Err(err).Str("objection_id", id.String()).Msg("tacit resolution failed")
			case fired == ExpiryResponse:
				report.TacitAcceptances++
			case fired == ExpiryRatification:
				report.TacitRejections++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(started)
	return report, nil
}

// Tick runs one pass if this replica wins the sweep lock. It returns a nil
// report when another replica holds the lock.
func (w *Sweeper) Tick(ctx context.Context) (*SweepReport, error) {
	token, ok, err := w.locker.TryLock(ctx, sweepLockKey, w.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		w.logger.Debug().Msg("expiry sweep held by another replica")
		return nil, nil
	}
	defer func() {
		if err := w.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release sweep lock")
		}
	}()

	report, err := w.RunOnce(ctx, w.svc.now().UTC())
	if err != nil {
		return nil, err
	}
	w.log(report)
	return report, nil
}

// Start sweeps on every interval until ctx is cancelled.
func (w *Sweeper) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.cfg.Interval).Int("concurrency", w.cfg.Concurrency).Msg("expiry sweep started")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				w.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

func (w *Sweeper) log(r *SweepReport) {
	ev := w.logger.Info()
	if r.Failed > 0 {
		ev = w.logger.Warn()
	}
	ev.Int("candidates", r.Candidates).
		Int("tacit_acceptances", r.TacitAcceptances).
		Int("tacit_rejections", r.TacitRejections).
		Int("conflicts", r.Conflicts).
		Int("failed", r.Failed).
		Dur("duration", r.Duration).
		Msg("expiry sweep completed")
}

// Candidates lists what a pass at now would examine, without touching it.
func (w *Sweeper) Candidates(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return w.svc.repo.ListExpired(ctx, now, w.cfg.BatchSize)
}
