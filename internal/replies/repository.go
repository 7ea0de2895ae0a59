package replies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nurture_backend/internal/classifier"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const replyNotFoundMessage = "reply not found"

// Store persists replies.
type Store interface {
	Insert(ctx context.Context, r Reply) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (Reply, error)
	List(ctx context.Context, params ListParams) ([]Reply, int, error)
	MarkResponded(ctx context.Context, id string, at time.Time) (Reply, error)
	Dismiss(ctx context.Context, id string) (Reply, error)
	LinkCampaign(ctx context.Context, id string, campaignID uuid.UUID) (Reply, error)
}

// ListParams filters the reply list. Unlinked selects replies without a campaign.
type ListParams struct {
	Status     *Status
	CampaignID *uuid.UUID
	Unlinked   bool
	Offset     int
	Limit      int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const replyColumns = `id, campaign_id, from_email, from_name, subject, body, category, summary,
	suggested_action, interests, requires_review, status, contact_ref, archive_key,
	follow_up_sent, received_at, responded_at, created_at, updated_at`

func scanReply(row pgx.Row) (Reply, error) {
	var r Reply
	var category, status string
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.FromEmail, &r.FromName, &r.Subject, &r.Body, &category, &r.Classification.Summary,
		&r.Classification.SuggestedAction, &r.Classification.Interests, &r.Classification.RequiresReview, &status,
		&r.ContactRef, &r.ArchiveKey, &r.FollowUpSent, &r.ReceivedAt, &r.RespondedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reply{}, apperr.NotFound(replyNotFoundMessage)
	}
	if err != nil {
		return Reply{}, err
	}
	r.Classification.Category = classifier.Category(category)
	r.Status = Status(status)
	return r, nil
}

// Insert stores a reply once. A second insert of the same id is a no-op
// and reports false.
func (r *Repository) Insert(ctx context.Context, rep Reply) (bool, error) {
	interests := rep.Classification.Interests
	if interests == nil {
		interests = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO replies (id, campaign_id, from_email, from_name, subject, body, category, summary,
			suggested_action, interests, requires_review, status, contact_ref, archive_key, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		rep.ID, rep.CampaignID, rep.FromEmail, rep.FromName, rep.Subject, rep.Body,
		string(rep.Classification.Category), rep.Classification.Summary, rep.Classification.SuggestedAction,
		interests, rep.Classification.RequiresReview, string(rep.Status), rep.ContactRef, rep.ArchiveKey, rep.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert reply: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM replies WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *Repository) GetByID(ctx context.Context, id string) (Reply, error) {
	return scanReply(r.pool.QueryRow(ctx, `SELECT `+replyColumns+` FROM replies WHERE id = $1`, id))
}

func (r *Repository) List(ctx context.Context, p ListParams) ([]Reply, int, error) {
	var where []string
	var args []any
	if p.Status != nil {
		args = append(args, string(*p.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.CampaignID != nil {
		args = append(args, *p.CampaignID)
		where = append(where, fmt.Sprintf("campaign_id = $%d", len(args)))
	}
	if p.Unlinked {
		where = append(where, "campaign_id IS NULL")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM replies`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count replies: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+replyColumns+` FROM replies`+clause+
		fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	items := make([]Reply, 0)
	for rows.Next() {
		rep, err := scanReply(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

// MarkResponded closes an open reply after the follow-up went out.
func (r *Repository) MarkResponded(ctx context.Context, id string, at time.Time) (Reply, error) {
	return r.transition(ctx, id, `
		UPDATE replies
		SET status = 'responded', follow_up_sent = TRUE, responded_at = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending_review', 'ready_to_send')
		RETURNING `+replyColumns, at)
}

func (r *Repository) Dismiss(ctx context.Context, id string) (Reply, error) {
	return r.transition(ctx, id, `
		UPDATE replies
		SET status = 'dismissed', updated_at = now()
		WHERE id = $1 AND status IN ('pending_review', 'ready_to_send')
		RETURNING `+replyColumns)
}

func (r *Repository) LinkCampaign(ctx context.Context, id string, campaignID uuid.UUID) (Reply, error) {
	rep, err := scanReply(r.pool.QueryRow(ctx, `
		UPDATE replies SET campaign_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+replyColumns, id, campaignID))
	if err != nil {
		return Reply{}, err
	}
	return rep, nil
}

// transition runs a status update guarded on the reply being open. A miss
// is NotFound when the reply does not exist and Conflict when it is closed.
func (r *Repository) transition(ctx context.Context, id, query string, extra ...any) (Reply, error) {
	rep, err := scanReply(r.pool.QueryRow(ctx, query, append([]any{id}, extra...)...))
	if err == nil {
		return rep, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return Reply{}, err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return Reply{}, getErr
	}
	return Reply{}, apperr.Conflict("reply is already closed")
}
