package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const templateNotFoundMessage = "sequence template step not found"

const templateColumns = `id, program, step, delay_days, subject_template, body_template, enabled, created_at, updated_at`

func scanTemplate(row pgx.Row) (domain.TemplateStep, error) {
	var t domain.TemplateStep
	var program string
	if err := row.Scan(&t.ID, &program, &t.Step, &t.DelayDays, &t.SubjectTemplate, &t.BodyTemplate, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.TemplateStep{}, err
	}
	t.Program = domain.Program(program)
	return t, nil
}

func collectTemplates(rows pgx.Rows) ([]domain.TemplateStep, error) {
	defer rows.Close()
	items := make([]domain.TemplateStep, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *Repository) ListTemplates(ctx context.Context, program *domain.Program) ([]domain.TemplateStep, error) {
	var rows pgx.Rows
	var err error
	if program != nil {
		rows, err = r.pool.Query(ctx, `SELECT `+templateColumns+` FROM sequence_templates WHERE program = $1 ORDER BY step`, string(*program))
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+templateColumns+` FROM sequence_templates ORDER BY program, step`)
	}
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return collectTemplates(rows)
}

func (r *Repository) ListEnabledTemplates(ctx context.Context, program domain.Program) ([]domain.TemplateStep, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+` FROM sequence_templates
		WHERE program = $1 AND enabled
		ORDER BY step`, string(program))
	if err != nil {
		return nil, fmt.Errorf("list enabled templates: %w", err)
	}
	return collectTemplates(rows)
}

func (r *Repository) CreateTemplate(ctx context.Context, p CreateTemplateParams) (domain.TemplateStep, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `
		INSERT INTO sequence_templates (program, step, delay_days, subject_template, body_template, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+templateColumns,
		string(p.Program), p.Step, p.DelayDays, p.SubjectTemplate, p.BodyTemplate, p.Enabled))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.TemplateStep{}, apperr.Conflict("a template already exists for this program and step")
		}
		return domain.TemplateStep{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (r *Repository) UpdateTemplate(ctx context.Context, id uuid.UUID, p UpdateTemplateParams) (domain.TemplateStep, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx, `
		UPDATE sequence_templates SET
			delay_days = COALESCE($2, delay_days),
			subject_template = COALESCE($3, subject_template),
			body_template = COALESCE($4, body_template),
			enabled = COALESCE($5, enabled),
			updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns,
		id, p.DelayDays, p.SubjectTemplate, p.BodyTemplate, p.Enabled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TemplateStep{}, apperr.NotFound(templateNotFoundMessage)
		}
		return domain.TemplateStep{}, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

func (r *Repository) HasSteps(ctx context.Context, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sequence_steps WHERE lead_id = $1)`, leadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check steps: %w", err)
	}
	return exists, nil
}

// CreateStepsIfNone inserts steps for a lead unless it already has any. The
// lead row is locked for the transaction so concurrent generators serialize,
// and UNIQUE (lead_id, step) backs the check.
func (r *Repository) CreateStepsIfNone(ctx context.Context, leadID uuid.UUID, steps []NewStep) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM leads WHERE id = $1 FOR UPDATE`, leadID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperr.NotFound(leadNotFoundMessage)
		}
		return false, fmt.Errorf("lock lead: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sequence_steps WHERE lead_id = $1)`, leadID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check steps: %w", err)
	}
	if exists {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, s := range steps {
		batch.Queue(`
			INSERT INTO sequence_steps (lead_id, step, subject, body, scheduled_for, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')
			ON CONFLICT (lead_id, step) DO NOTHING`,
			leadID, s.Step, s.Subject, s.Body, s.ScheduledFor)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("insert steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

const stepColumns = `s.id, s.lead_id, s.step, s.subject, s.body, s.scheduled_for, s.status, s.sent_at,
	s.delivery_ref, s.failure_reason, s.opened, s.clicked, s.created_at`

func scanStep(row pgx.Row, extra ...any) (domain.InstanceStep, error) {
	var s domain.InstanceStep
	var status string
	dest := []any{&s.ID, &s.LeadID, &s.Step, &s.Subject, &s.Body, &s.ScheduledFor, &status, &s.SentAt,
		&s.DeliveryRef, &s.FailureReason, &s.Opened, &s.Clicked, &s.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.InstanceStep{}, err
	}
	s.Status = domain.StepStatus(status)
	return s, nil
}

func (r *Repository) ListSteps(ctx context.Context, leadID uuid.UUID) ([]domain.InstanceStep, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stepColumns+` FROM sequence_steps s WHERE s.lead_id = $1 ORDER BY s.step`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InstanceStep, 0)
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// ListDue returns pending steps due at now whose lead still accepts nurture
// mail, oldest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DueStep, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stepColumns+`, l.email, l.first_name, l.program
		FROM sequence_steps s
		JOIN leads l ON l.id = s.lead_id
		WHERE s.status = 'pending'
		  AND s.scheduled_for <= $1
		  AND l.status NOT IN ('converted', 'unsubscribed')
		ORDER BY s.scheduled_for ASC, s.step ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due steps: %w", err)
	}
	defer rows.Close()

	items := make([]domain.DueStep, 0)
	for rows.Next() {
		var d domain.DueStep
		var program string
		step, err := scanStep(rows, &d.Email, &d.FirstName, &program)
		if err != nil {
			return nil, err
		}
		d.InstanceStep = step
		d.Program = domain.Program(program)
		items = append(items, d)
	}
	return items, rows.Err()
}

// MarkStepSent records a successful send. Only pending steps transition, so
// a step cancelled mid-flight stays cancelled.
func (r *Repository) MarkStepSent(ctx context.Context, id uuid.UUID, deliveryRef string, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_steps
		SET status = 'sent', sent_at = $2, delivery_ref = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id, sentAt, deliveryRef)
	if err != nil {
		return false, fmt.Errorf("mark step sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkStepFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_steps
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark step failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordEngagement ORs open/click flags into a step.
func (r *Repository) RecordEngagement(ctx context.Context, id uuid.UUID, opened, clicked bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_steps
		SET opened = opened OR $2, clicked = clicked OR $3, updated_at = now()
		WHERE id = $1`, id, opened, clicked)
	if err != nil {
		return false, fmt.Errorf("record engagement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
