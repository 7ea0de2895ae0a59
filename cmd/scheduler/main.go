package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nurture_backend/internal/adapters"
	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/management"
	leadrepo "nurture_backend/internal/leads/repository"
	"nurture_backend/internal/leads/sequence"
	"nurture_backend/internal/replies"
	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/config"
	"nurture_backend/platform/db"
	"nurture_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)

	caps, err := adapters.NewCapabilities(ctx, cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize capabilities", "error", err)
		panic("failed to initialize capabilities: " + err.Error())
	}

	ledgers, err := adapters.NewLedgers(ctx, pool, log)
	if err != nil {
		log.Error("failed to load ledgers", "error", err)
		panic("failed to load ledgers: " + err.Error())
	}

	var lock scheduler.Locker
	rdb, err := scheduler.NewRedis(cfg)
	switch {
	case err != nil:
		log.Error("failed to initialize redis lease client, using postgres advisory locks", "error", err)
		lock = scheduler.NewAdvisoryLock(pool)
	case rdb == nil:
		log.Info("REDIS_URL not configured; job locks use postgres advisory locks")
		lock = scheduler.NewAdvisoryLock(pool)
	default:
		lock = scheduler.NewLocker(rdb, pool)
		defer func() { _ = rdb.Close() }()
	}

	// Worker-side wiring (no HTTP handlers required).
	leadStore := leadrepo.New(pool)
	registry := management.New(leadStore, eventBus)
	registry.Subscribe(eventBus, log)
	generator := sequence.New(leadStore)
	campaignStore := campaigns.NewRepository(pool)
	campaignSvc := campaigns.NewService(campaignStore)
	replyStore := replies.NewRepository(pool)

	scanner := adapters.NewCaptureScanner(cfg, caps, ledgers.Capture, registry, generator, log)
	intake := adapters.NewReplyIntake(cfg, caps, ledgers.Reply, replyStore, campaignSvc, log)
	dispatcher := adapters.NewDispatcher(cfg, caps, leadStore, campaignSvc, eventBus, log)
	broadcaster := adapters.NewBroadcaster(cfg, caps, campaignStore, log)

	captureJob := adapters.NewCaptureJob(scanner, lock, log)
	replyJob := adapters.NewReplyJob(intake, lock, log)
	dispatchJob := adapters.NewDispatchJob(dispatcher, lock, log)
	campaignJob := adapters.NewCampaignJob(broadcaster, lock, log)

	var wg sync.WaitGroup
	timers := []struct {
		job      *scheduler.Job
		interval time.Duration
	}{
		{captureJob, cfg.GetCaptureScanInterval()},
		{replyJob, cfg.GetReplyScanInterval()},
		{dispatchJob, cfg.GetDispatchInterval()},
		{campaignJob, cfg.GetCampaignInterval()},
	}
	for _, t := range timers {
		if t.interval <= 0 {
			log.Warn("timer disabled", "job", t.job.Name())
			continue
		}
		log.Info("timer started", "job", t.job.Name(), "interval", t.interval)
		wg.Go(func() {
			t.job.Every(ctx, t.interval)
		})
	}

	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, []*scheduler.Job{captureJob, replyJob}, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		wg.Go(func() {
			worker.Run(ctx)
		})
	}

	wg.Wait()
	eventBus.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
