package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const advisoryKeyPrefix = "nurture:lock:"

// lockConn is the part of *pgxpool.Conn the advisory lock needs.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// AdvisoryLock is a cross-process Locker backed by Postgres session advisory
// locks. Each held lock pins one pooled connection until Release; a crashed
// holder's lock is freed with its connection, so ttl is not used.
type AdvisoryLock struct {
	acquire func(ctx context.Context) (lockConn, error)

	mu   sync.Mutex
	held map[string]lockConn
}

func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return newAdvisoryLock(func(ctx context.Context) (lockConn, error) {
		return pool.Acquire(ctx)
	})
}

func newAdvisoryLock(acquire func(ctx context.Context) (lockConn, error)) *AdvisoryLock {
	return &AdvisoryLock{acquire: acquire, held: make(map[string]lockConn)}
}

func (a *AdvisoryLock) Acquire(ctx context.Context, name string, _ time.Duration) (string, bool, error) {
	conn, err := a.acquire(ctx)
	if err != nil {
		return "", false, fmt.Errorf("acquire advisory lock %s: %w", name, err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, advisoryKeyPrefix+name).Scan(&ok); err != nil {
		conn.Release()
		return "", false, fmt.Errorf("acquire advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return "", false, nil
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.held[token] = conn
	a.mu.Unlock()
	return token, true, nil
}

func (a *AdvisoryLock) Release(ctx context.Context, name, token string) error {
	a.mu.Lock()
	conn, ok := a.held[token]
	delete(a.held, token)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, advisoryKeyPrefix+name); err != nil {
		return fmt.Errorf("release advisory lock %s: %w", name, err)
	}
	return nil
}
