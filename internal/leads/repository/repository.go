package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	leadNotFoundMessage = "lead not found"
	hotScoreThreshold   = 80
)

// Repository implements LeadRepository with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ LeadRepository = (*Repository)(nil)

const leadColumns = `id, email, program, first_name, last_name, region, promo_code, enrollment_url,
	score, status, source_message_id, external_crm_ref, captured_at, converted_at, created_at, updated_at`

func scanLead(row pgx.Row, extra ...any) (domain.Lead, error) {
	var l domain.Lead
	var program, status string
	dest := []any{
		&l.ID, &l.Email, &program, &l.FirstName, &l.LastName, &l.Region, &l.PromoCode, &l.EnrollmentURL,
		&l.Score, &status, &l.SourceMessageID, &l.ExternalCRMRef, &l.CapturedAt, &l.ConvertedAt, &l.CreatedAt, &l.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Lead{}, err
	}
	l.Program = domain.Program(program)
	l.Status = domain.Status(status)
	return l, nil
}

// upsertLeadSQL refreshes only the offer fields of an existing (email,
// program) row. Names, region, status and the first source message id are
// kept; the score only ever rises.
const upsertLeadSQL = `
		INSERT INTO leads (email, program, first_name, last_name, region, promo_code, enrollment_url,
			score, status, source_message_id, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new', $9, $10)
		ON CONFLICT (email, program) DO UPDATE SET
			promo_code = EXCLUDED.promo_code,
			enrollment_url = EXCLUDED.enrollment_url,
			score = GREATEST(leads.score, EXCLUDED.score),
			source_message_id = COALESCE(leads.source_message_id, EXCLUDED.source_message_id),
			captured_at = EXCLUDED.captured_at,
			updated_at = now()
		RETURNING ` + leadColumns + `, (xmax = 0) AS inserted`

// Upsert inserts a lead or refreshes the existing (email, program) row. The
// returned bool is true when a row was inserted.
func (r *Repository) Upsert(ctx context.Context, p UpsertParams) (domain.Lead, bool, error) {
	row := r.pool.QueryRow(ctx, upsertLeadSQL,
		strings.ToLower(p.Email), string(p.Program), p.FirstName, p.LastName, p.Region, p.PromoCode, p.EnrollmentURL,
		p.Score, p.SourceMessageID, p.CapturedAt,
	)

	var inserted bool
	lead, err := scanLead(row, &inserted)
	if err != nil {
		return domain.Lead{}, false, fmt.Errorf("upsert lead: %w", err)
	}
	return lead, inserted, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (r *Repository) List(ctx context.Context, p ListParams) ([]domain.Lead, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if p.Program != nil {
		args = append(args, string(*p.Program))
		where = append(where, fmt.Sprintf("program = $%d", len(args)))
	}
	if p.Status != nil {
		args = append(args, string(*p.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("(email LIKE $%d OR lower(first_name || ' ' || last_name) LIKE $%d)", len(args), len(args)))
	}
	filter := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE `+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM leads WHERE %s
		ORDER BY captured_at DESC
		LIMIT $%d OFFSET $%d`, leadColumns, filter, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lead)
	}
	return items, total, rows.Err()
}

// SetStatus changes a lead's status. Unsubscribing cancels every pending step
// in the same transaction; converting stamps converted_at once. The int is the
// number of steps cancelled.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (domain.Lead, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads SET
			status = $2,
			converted_at = CASE WHEN $2 = 'converted' AND converted_at IS NULL THEN $3 ELSE converted_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, string(status), at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, 0, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, 0, fmt.Errorf("update lead status: %w", err)
	}

	cancelled := 0
	if status == domain.StatusUnsubscribed {
		tag, err := tx.Exec(ctx, `
			UPDATE sequence_steps SET status = 'cancelled', updated_at = now()
			WHERE lead_id = $1 AND status = 'pending'`, id)
		if err != nil {
			return domain.Lead{}, 0, fmt.Errorf("cancel pending steps: %w", err)
		}
		cancelled = int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, 0, err
	}
	return lead, cancelled, nil
}

func (r *Repository) MarkContacted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = 'contacted', updated_at = now()
		WHERE id = $1 AND status = 'new'`, id)
	if err != nil {
		return false, fmt.Errorf("mark lead contacted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetExternalCRMRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET external_crm_ref = $2, updated_at = now() WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set crm ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMessage)
	}
	return nil
}

func (r *Repository) Stats(ctx context.Context, since time.Time) (Stats, error) {
	s := Stats{ByStatus: map[string]int{}, ByProgram: map[string]int{}}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE captured_at >= $1),
			COUNT(*) FILTER (WHERE score >= $2),
			(SELECT COUNT(*) FROM sequence_steps WHERE status = 'sent')
		FROM leads`, since, hotScoreThreshold,
	).Scan(&s.Total, &s.ThisWeek, &s.Hot, &s.SequencesSent)
	if err != nil {
		return Stats{}, fmt.Errorf("lead stats: %w", err)
	}

	if err := r.countBy(ctx, "status", s.ByStatus); err != nil {
		return Stats{}, err
	}
	if err := r.countBy(ctx, "program", s.ByProgram); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (r *Repository) countBy(ctx context.Context, column string, into map[string]int) error {
	// column is one of two literals above, never user input
	rows, err := r.pool.Query(ctx, `SELECT `+column+`, COUNT(*) FROM leads GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("count leads by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
