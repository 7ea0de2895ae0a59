package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is wrapped by the error Guard.Do returns when a run is already in flight.
var ErrBusy = errors.New("job already running")

// DefaultLeaseTTL bounds how long a crashed holder can block a job.
const DefaultLeaseTTL = 10 * time.Minute

// Locker is a named mutex shared by the api and scheduler processes.
// Lease (Redis) and AdvisoryLock (Postgres) implement it.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, name, token string) error
}

// NewLocker prefers the Redis lease and falls back to a Postgres advisory
// lock on the shared database.
func NewLocker(rdb *redis.Client, pool *pgxpool.Pool) Locker {
	if rdb != nil {
		return NewLease(rdb)
	}
	return NewAdvisoryLock(pool)
}

// Guard keeps at most one run of a job in flight. The mutex covers
// overlapping ticks inside one process and the optional Locker covers the api
// and scheduler processes running the same job.
type Guard struct {
	job   string
	mu    sync.Mutex
	lease Locker
	ttl   time.Duration
	log   *logger.Logger
}

// NewGuard creates a guard for job. lock may be nil.
func NewGuard(job string, lock Locker, ttl time.Duration, log *logger.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Guard{job: job, lease: lock, ttl: ttl, log: log}
}

// Do calls fn unless another run holds the guard. A skipped run returns an
// apperr Busy error wrapping ErrBusy.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if !g.mu.TryLock() {
		return g.skipped()
	}
	defer g.mu.Unlock()

	if g.lease != nil {
		token, ok, err := g.lease.Acquire(ctx, g.job, g.ttl)
		switch {
		case err != nil:
			// An unreachable lock store degrades to the local guard instead of stopping the job.
			g.log.Warn("lease unavailable, running with local guard", "job", g.job, "error", err)
		case !ok:
			return g.skipped()
		default:
			defer func() {
				if err := g.lease.Release(context.WithoutCancel(ctx), g.job, token); err != nil {
					g.log.Warn("lease release failed", "job", g.job, "error", err)
				}
			}()
		}
	}

	start := time.Now()
	err := fn(ctx)
	metrics.JobDuration.WithLabelValues(g.job).Observe(time.Since(start).Seconds())
	return err
}

func (g *Guard) skipped() error {
	metrics.JobSkippedTotal.WithLabelValues(g.job).Inc()
	g.log.TickSkipped(g.job)
	return apperr.Wrap(apperr.KindBusy, g.job+" is already running", ErrBusy)
}
