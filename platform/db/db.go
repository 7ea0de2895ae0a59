// Package db opens the Postgres pool and applies the embedded migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"nurture_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minConns        = 1
	connLifetime    = time.Hour
	connIdleTimeout = 15 * time.Minute
)

// NewPool parses DATABASE_URL, applies the pool limits and fails fast if the
// server does not answer a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if n := cfg.GetDatabaseMaxConns(); n > 0 {
		pc.MaxConns = n
	}
	pc.MinConns = min(minConns, pc.MaxConns)
	pc.MaxConnLifetime = connLifetime
	pc.MaxConnIdleTime = connIdleTimeout

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
