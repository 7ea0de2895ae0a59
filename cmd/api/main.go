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

	"nurture_backend/internal/adapters"
	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/events"
	"nurture_backend/internal/gmailauth"
	apphttp "nurture_backend/internal/http"
	"nurture_backend/internal/http/router"
	"nurture_backend/internal/leads"
	"nurture_backend/internal/replies"
	"nurture_backend/internal/scheduler"
	"nurture_backend/internal/webhook"
	"nurture_backend/platform/config"
	"nurture_backend/platform/db"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	caps, err := adapters.NewCapabilities(ctx, cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize capabilities", "error", err)
		panic("failed to initialize capabilities: " + err.Error())
	}

	lock, closeRedis := initLocker(cfg, pool, log)
	if closeRedis != nil {
		defer closeRedis()
	}
	queue, closeQueue := initScanQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	var enqueuer scheduler.Enqueuer
	if queue != nil {
		enqueuer = queue
	}
	scans := scheduler.NewTrigger(enqueuer)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	campaignsModule := campaigns.NewModule(pool, val, caps.Contacts, caps.Sender, adapters.BroadcastOptions(cfg), log)
	leadsModule := leads.NewModule(pool, eventBus, scans, val, log)

	replyStore := replies.NewRepository(pool)
	replyService := replies.NewService(replyStore, campaignsModule.Service(), caps.Sender, caps.Archive,
		cfg.GetFromName(), cfg.GetExternalCallTimeout())
	repliesModule := replies.NewModule(replyService, scans, val)

	gmailModule := gmailauth.NewModule(caps.OAuth, caps.GmailTokens, cfg.GetJWTAccessSecret(), caps.GmailTokens != nil, log)
	webhookModule := webhook.NewModule(leadsModule.Repository(), cfg.GetDeliveryWebhookKey(), log)

	// Without a queue the "scan now" endpoints run the scans in this process.
	// The Postgres advisory lock keeps them from overlapping the scheduler's
	// timer runs of the same job.
	if queue == nil {
		ledgers, err := adapters.NewLedgers(ctx, pool, log)
		if err != nil {
			log.Error("failed to load ledgers", "error", err)
			panic("failed to load ledgers: " + err.Error())
		}
		scanner := adapters.NewCaptureScanner(cfg, caps, ledgers.Capture,
			leadsModule.ManagementService(), leadsModule.Generator(), log)
		intake := adapters.NewReplyIntake(cfg, caps, ledgers.Reply, replyStore, campaignsModule.Service(), log)

		scans.Register(adapters.NewCaptureJob(scanner, lock, log))
		scans.Register(adapters.NewReplyJob(intake, lock, log))
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			campaignsModule,
			leadsModule,
			repliesModule,
			gmailModule,
			webhookModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initLocker returns the cross-process job lock: a Redis lease when
// REDIS_URL is set, otherwise a Postgres advisory lock.
func initLocker(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (scheduler.Locker, func()) {
	rdb, err := scheduler.NewRedis(cfg)
	if err != nil {
		log.Error("failed to initialize redis lease client, using postgres advisory locks", "error", err)
		return scheduler.NewAdvisoryLock(pool), nil
	}
	if rdb == nil {
		log.Info("REDIS_URL not configured; job locks use postgres advisory locks")
		return scheduler.NewAdvisoryLock(pool), nil
	}
	return scheduler.NewLocker(rdb, pool), func() { _ = rdb.Close() }
}

func initScanQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Info("REDIS_URL not configured; operator scans run inline")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scan queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
