package gmailauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SealedToken is a stored, encrypted OAuth token.
type SealedToken struct {
	Account   string
	Email     string
	Sealed    string
	UpdatedAt time.Time
}

// TokenRepository persists sealed tokens keyed by account.
type TokenRepository interface {
	Get(ctx context.Context, account string) (*SealedToken, error)
	Put(ctx context.Context, t SealedToken) error
	Delete(ctx context.Context, account string) error
}

// Repository stores sealed tokens in gmail_tokens.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns nil when the account has no token.
func (r *Repository) Get(ctx context.Context, account string) (*SealedToken, error) {
	var t SealedToken
	err := r.pool.QueryRow(ctx, `
		SELECT account, email, sealed_token, updated_at
		FROM gmail_tokens WHERE account = $1`, account).
		Scan(&t.Account, &t.Email, &t.Sealed, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get gmail token: %w", err)
	}
	return &t, nil
}

// Put upserts a token. An empty email keeps the stored one.
func (r *Repository) Put(ctx context.Context, t SealedToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gmail_tokens (account, email, sealed_token, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE gmail_tokens.email END,
			sealed_token = EXCLUDED.sealed_token,
			updated_at = now()`,
		t.Account, t.Email, t.Sealed)
	if err != nil {
		return fmt.Errorf("put gmail token: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, account string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM gmail_tokens WHERE account = $1`, account); err != nil {
		return fmt.Errorf("delete gmail token: %w", err)
	}
	return nil
}
