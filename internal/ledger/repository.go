package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres Store backed by processed_messages.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, stream Stream, messageID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_messages (stream, message_id)
		VALUES ($1, $2)
		ON CONFLICT (stream, message_id) DO NOTHING
	`, string(stream), messageID)
	return err
}

func (r *Repository) Exists(ctx context.Context, stream Stream, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_messages WHERE stream = $1 AND message_id = $2)
	`, string(stream), messageID).Scan(&exists)
	return exists, err
}

func (r *Repository) ListIDs(ctx context.Context, stream Stream) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT message_id FROM processed_messages WHERE stream = $1`, string(stream))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
