package repository

import (
	"context"
	"time"

	"nurture_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces
// =====================================

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

// LeadWriter provides lead mutations.
type LeadWriter interface {
	Upsert(ctx context.Context, params UpsertParams) (domain.Lead, bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) (domain.Lead, int, error)
	SetExternalCRMRef(ctx context.Context, id uuid.UUID, ref string) error
	// MarkContacted moves a new lead to contacted and reports whether it did.
	MarkContacted(ctx context.Context, id uuid.UUID) (bool, error)
}

// TemplateStore manages sequence template steps.
type TemplateStore interface {
	ListTemplates(ctx context.Context, program *domain.Program) ([]domain.TemplateStep, error)
	ListEnabledTemplates(ctx context.Context, program domain.Program) ([]domain.TemplateStep, error)
	CreateTemplate(ctx context.Context, params CreateTemplateParams) (domain.TemplateStep, error)
	UpdateTemplate(ctx context.Context, id uuid.UUID, params UpdateTemplateParams) (domain.TemplateStep, error)
}

// StepWriter persists generated steps.
type StepWriter interface {
	HasSteps(ctx context.Context, leadID uuid.UUID) (bool, error)
	CreateStepsIfNone(ctx context.Context, leadID uuid.UUID, steps []NewStep) (bool, error)
}

// StepReader lists a lead's generated steps.
type StepReader interface {
	ListSteps(ctx context.Context, leadID uuid.UUID) ([]domain.InstanceStep, error)
}

// DispatchStore is what the dispatcher reads and writes.
type DispatchStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DueStep, error)
	MarkStepSent(ctx context.Context, id uuid.UUID, deliveryRef string, sentAt time.Time) (bool, error)
	MarkStepFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// EngagementWriter records provider open/click events.
type EngagementWriter interface {
	RecordEngagement(ctx context.Context, id uuid.UUID, opened, clicked bool) (bool, error)
}

// LeadRepository is the full leads persistence surface.
type LeadRepository interface {
	LeadReader
	LeadWriter
	TemplateStore
	StepWriter
	StepReader
	DispatchStore
	EngagementWriter
}

// =====================================
// Params
// =====================================

// UpsertParams is a scored candidate ready to persist.
type UpsertParams struct {
	Email           string
	Program         domain.Program
	FirstName       string
	LastName        string
	Region          string
	PromoCode       string
	EnrollmentURL   string
	Score           int
	SourceMessageID *string
	CapturedAt      time.Time
}

// ListParams filters the lead list.
type ListParams struct {
	Program *domain.Program
	Status  *domain.Status
	Search  string
	Offset  int
	Limit   int
}

// Stats is the lead dashboard summary.
type Stats struct {
	Total         int            `json:"total"`
	ThisWeek      int            `json:"thisWeek"`
	Hot           int            `json:"hot"`
	SequencesSent int            `json:"sequencesSent"`
	ByStatus      map[string]int `json:"byStatus"`
	ByProgram     map[string]int `json:"byProgram"`
}

// CreateTemplateParams adds a template step.
type CreateTemplateParams struct {
	Program         domain.Program
	Step            int
	DelayDays       int
	SubjectTemplate string
	BodyTemplate    string
	Enabled         bool
}

// UpdateTemplateParams patches a template step. Nil fields are left alone.
type UpdateTemplateParams struct {
	DelayDays       *int
	SubjectTemplate *string
	BodyTemplate    *string
	Enabled         *bool
}

// NewStep is a rendered step awaiting insert.
type NewStep struct {
	Step         int
	Subject      string
	Body         string
	ScheduledFor time.Time
}
