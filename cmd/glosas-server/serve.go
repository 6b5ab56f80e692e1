package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/glosas/glosas/internal/config"
	"github.com/glosas/glosas/internal/domain/conciliation"
	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/domain/invoice"
	"github.com/glosas/glosas/internal/domain/trace"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
	"github.com/glosas/glosas/internal/platform/db"
	"github.com/glosas/glosas/internal/platform/events"
	"github.com/glosas/glosas/internal/platform/lock"
	"github.com/glosas/glosas/internal/platform/middleware"
)

// app holds the wired services shared by the serve and sweep commands.
type app struct {
	pool         *pgxpool.Pool
	redis        *redis.Client
	publisher    events.Publisher
	blobs        blobstore.Store
	glosas       *glosa.Service
	sweeper      *glosa.Sweeper
	conciliation *conciliation.Service
	checks       map[string]db.Check
	closers      []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func windows(cfg *config.Config) glosa.Windows {
	return glosa.Windows{
		ProviderResponse:    cfg.ResponseWindowDays,
		InsurerRatification: cfg.RatificationWindowDays,
		DevolutionResponse:  cfg.DevolutionWindowDays,
		CaseResponse:        cfg.CaseResponseWindowDays,
	}
}

func sweeperConfig(cfg *config.Config) glosa.SweeperConfig {
	sc := glosa.DefaultSweeperConfig()
	sc.Interval = cfg.SweepInterval
	sc.Concurrency = cfg.SweepConcurrency
	if cfg.SweepBatchSize > 0 {
		sc.BatchSize = cfg.SweepBatchSize
	}
	return sc
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

// buildApp connects to the configured backends and wires the services.
// Redis, AMQP and MinIO are optional: without them the sweeper locks
// locally, events are dropped and documents stay in memory.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{checks: map[string]db.Check{}}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	logger.Info().Msg("connected to database")

	var locker lock.Locker = lock.LocalLocker{}
	if cfg.RedisURL != "" {
		client, err := lock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		a.closers = append(a.closers, func() { client.Close() })
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		locker = lock.NewRedisLocker(client, "glosas:")
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set; sweep lock is local to this process")
	}

	a.publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to amqp: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, func() { pub.Close() })
		a.checks["amqp"] = pub.Ping
		logger.Info().Str("exchange", cfg.EventsExchange).Msg("publishing events to amqp")
	} else {
		logger.Warn().Msg("AMQP_URL not set; events are not published")
	}

	a.blobs = blobstore.NewMemoryStore()
	if cfg.MinioEndpoint != "" {
		store, err := blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to minio: %w", err)
		}
		a.blobs = store
		a.checks["minio"] = store.Ping
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("storing documents in minio")
	} else {
		logger.Warn().Msg("MINIO_ENDPOINT not set; documents are kept in memory")
	}

	tx := db.NewTxManager(pool)
	traceLog := trace.NewLog(trace.NewRepoPG(pool), a.publisher, logger)
	invoices := invoice.NewDirectoryPG(pool)
	deadlines := glosa.NewDeadlineEngine(windows(cfg), cfg.Location())

	a.glosas = glosa.NewService(glosa.NewRepoPG(pool), invoices, traceLog, tx, deadlines, logger)
	a.glosas.SetDueSoonWindow(time.Duration(cfg.DueSoonDays) * 24 * time.Hour)
	a.sweeper = glosa.NewSweeper(a.glosas, locker, sweeperConfig(cfg), logger)

	a.conciliation = conciliation.NewService(conciliation.NewRepoPG(pool), a.glosas, invoices, a.blobs,
		traceLog, tx, deadlines, conciliation.NewMediatorPolicy(cfg.Mediators), logger)
	a.glosas.SetCaseHook(a.conciliation)

	return a, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.close()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Secure())
	// Room for a full document upload plus multipart overhead.
	e.Use(echomw.BodyLimit("26M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Probes stay outside auth.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/ready", db.ReadinessHandler(a.checks))

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(jwtConfig(cfg))
	}
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rl))
	glosa.NewHandler(a.glosas, a.sweeper).RegisterRoutes(apiV1)
	conciliation.NewHandler(a.conciliation).RegisterRoutes(apiV1)

	// Expiry sweeper
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go a.sweeper.Start(sweepCtx)
	logger.Info().Dur("interval", cfg.SweepInterval).Msg("expiry sweeper started")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
