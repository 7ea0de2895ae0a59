// Package campaigns owns outbound campaigns and the tracking tokens that
// correlate inbound replies with them.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const campaignNotFoundMessage = "campaign not found"

// Campaign statuses. Only draft and scheduled campaigns can change.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusSent      = "sent"
)

var (
	// ErrTokenTaken is returned by Create when the tracking token already exists.
	ErrTokenTaken = errors.New("tracking token already in use")
	// ErrLocked is returned by conditional writes when the campaign is
	// sending, sent or gone.
	ErrLocked = errors.New("campaign is not editable")
)

// Recipient is the delivery outcome for one contact of a broadcast.
type Recipient struct {
	ContactID string `json:"contactId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Sent      bool   `json:"sent"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Campaign is an outbound mailing whose messages carry one tracking token.
// Program campaigns anchor the nurture sequences; the rest are broadcasts.
type Campaign struct {
	ID            uuid.UUID
	Name          string
	Program       *string
	TrackingToken string
	Subject       string
	Body          string
	Status        string
	ContactIDs    []string
	ScheduledTime *time.Time
	SentAt        *time.Time
	Recipients    []Recipient
	CreatedAt     time.Time
}

// Editable reports whether content and schedule may still change.
func (c Campaign) Editable() bool {
	return c.Status == StatusDraft || c.Status == StatusScheduled
}

// Draft is the operator-authored content of a campaign.
type Draft struct {
	Name          string
	Subject       string
	Body          string
	ContactIDs    []string
	ScheduledTime *time.Time
}

// Store is the persistence boundary of the campaigns context.
type Store interface {
	Create(ctx context.Context, draft Draft, program *string, token string) (Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (Campaign, error)
	GetByToken(ctx context.Context, token string) (Campaign, error)
	GetByProgram(ctx context.Context, program string) (Campaign, error)
	List(ctx context.Context) ([]Campaign, error)

	// Update, Delete and SetSchedule only touch editable campaigns.
	Update(ctx context.Context, id uuid.UUID, draft Draft) (Campaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetSchedule(ctx context.Context, id uuid.UUID, status string, at *time.Time) (Campaign, error)

	// Claim moves an editable campaign to sending; exactly one caller wins.
	Claim(ctx context.Context, id uuid.UUID) (Campaign, error)
	Finish(ctx context.Context, id uuid.UUID, recipients []Recipient, sentAt time.Time) (Campaign, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Campaign, error)
}

// Repository implements Store with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const campaignColumns = `id, name, program, tracking_token, subject, body, status, contact_ids,
	scheduled_time, sent_at, recipients, created_at`

const editable = `status IN ('draft', 'scheduled')`

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Program, &c.TrackingToken, &c.Subject, &c.Body, &c.Status,
		&c.ContactIDs, &c.ScheduledTime, &c.SentAt, &c.Recipients, &c.CreatedAt)
	if c.ContactIDs == nil {
		c.ContactIDs = []string{}
	}
	if c.Recipients == nil {
		c.Recipients = []Recipient{}
	}
	return c, err
}

func (r *Repository) Create(ctx context.Context, draft Draft, program *string, token string) (Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (name, program, tracking_token, subject, body, contact_ids, scheduled_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+campaignColumns,
		draft.Name, program, token, draft.Subject, draft.Body, nonNil(draft.ContactIDs), draft.ScheduledTime,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "campaigns_tracking_token_key" {
				return Campaign{}, ErrTokenTaken
			}
			return Campaign{}, apperr.Conflict("a campaign already exists for this program")
		}
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Campaign, error) {
	return r.getOne(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
}

func (r *Repository) GetByToken(ctx context.Context, token string) (Campaign, error) {
	return r.getOne(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE tracking_token = $1`, token)
}

func (r *Repository) GetByProgram(ctx context.Context, program string) (Campaign, error) {
	return r.getOne(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE program = $1`, program)
}

func (r *Repository) List(ctx context.Context) ([]Campaign, error) {
	return r.list(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, draft Draft) (Campaign, error) {
	return r.updateOne(ctx, `
		UPDATE campaigns
		SET name = $2, subject = $3, body = $4, contact_ids = $5, scheduled_time = $6
		WHERE id = $1 AND `+editable+`
		RETURNING `+campaignColumns,
		id, draft.Name, draft.Subject, draft.Body, nonNil(draft.ContactIDs), draft.ScheduledTime)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1 AND `+editable, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.Conflict("campaign has linked replies")
		}
		return fmt.Errorf("delete campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocked
	}
	return nil
}

func (r *Repository) SetSchedule(ctx context.Context, id uuid.UUID, status string, at *time.Time) (Campaign, error) {
	return r.updateOne(ctx, `
		UPDATE campaigns SET status = $2, scheduled_time = $3
		WHERE id = $1 AND `+editable+`
		RETURNING `+campaignColumns,
		id, status, at)
}

func (r *Repository) Claim(ctx context.Context, id uuid.UUID) (Campaign, error) {
	return r.updateOne(ctx, `
		UPDATE campaigns SET status = 'sending'
		WHERE id = $1 AND `+editable+`
		RETURNING `+campaignColumns,
		id)
}

func (r *Repository) Finish(ctx context.Context, id uuid.UUID, recipients []Recipient, sentAt time.Time) (Campaign, error) {
	if recipients == nil {
		recipients = []Recipient{}
	}
	c, err := scanCampaign(r.pool.QueryRow(ctx, `
		UPDATE campaigns SET status = 'sent', sent_at = $2, recipients = $3
		WHERE id = $1
		RETURNING `+campaignColumns,
		id, sentAt, recipients))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
		}
		return Campaign{}, fmt.Errorf("finish campaign: %w", err)
	}
	return c, nil
}

func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Campaign, error) {
	return r.list(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'scheduled' AND scheduled_time <= $1
		ORDER BY scheduled_time
		LIMIT $2`, now, limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Campaign, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	items := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
		}
		return Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *Repository) updateOne(ctx context.Context, query string, args ...any) (Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrLocked
		}
		return Campaign{}, fmt.Errorf("update campaign: %w", err)
	}
	return c, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
