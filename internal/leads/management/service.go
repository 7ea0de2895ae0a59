// Package management is the lead registry: capture upserts, operator status
// transitions, listing and the sequence template catalogue.
package management

import (
	"context"
	"time"

	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/internal/leads/scoring"
	"nurture_backend/internal/leads/transport"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	statsWindow     = 7 * 24 * time.Hour
)

// Repository defines the data access interface needed by the management service.
// This is a consumer-driven interface - only what management needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.StepReader
	repository.TemplateStore
}

// Service handles lead registry operations.
type Service struct {
	repo     Repository
	eventBus events.Bus
	now      func() time.Time
}

// New creates a new lead management service.
func New(repo Repository, eventBus events.Bus) *Service {
	return &Service{repo: repo, eventBus: eventBus, now: time.Now}
}

// Subscribe registers the registry's event handlers on bus.
func (s *Service) Subscribe(bus events.Bus, log *logger.Logger) {
	events.On(bus, s.onStepDispatched)
	events.On(bus, func(ctx context.Context, e events.LeadStatusChanged) error {
		log.Info("lead status changed",
			"lead_id", e.LeadID, "from", e.OldStatus, "to", e.NewStatus, "cancelled_steps", e.CancelledSteps)
		return nil
	})
	events.On(bus, func(ctx context.Context, e events.LeadCaptured) error {
		if e.Inserted {
			log.Info("lead captured", "lead_id", e.LeadID, "program", e.Program, "score", e.Score)
		}
		return nil
	})
}

// onStepDispatched moves a new lead to contacted once its first step is
// delivered. Later transitions belong to the operator.
func (s *Service) onStepDispatched(ctx context.Context, e events.StepDispatched) error {
	if !e.Sent {
		return nil
	}
	changed, err := s.repo.MarkContacted(ctx, e.LeadID)
	if err != nil || !changed {
		return err
	}
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    e.LeadID,
			OldStatus: string(domain.StatusNew),
			NewStatus: string(domain.StatusContacted),
		})
	}
	return nil
}

// Capture scores a parsed candidate and upserts it. Re-capture keeps the
// higher score and refreshes promo code, enrollment URL and capture time.
func (s *Service) Capture(ctx context.Context, c domain.Candidate, messageID string) (domain.Lead, bool, error) {
	params := repository.UpsertParams{
		Email:         c.Email,
		Program:       c.Program,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Region:        c.Region,
		PromoCode:     c.PromoCode,
		EnrollmentURL: c.EnrollmentURL,
		Score:         scoring.Score(c.Program, c.Email, c.Region),
		CapturedAt:    s.now(),
	}
	if params.Region == "" {
		params.Region = domain.RegionUnknown
	}
	if messageID != "" {
		params.SourceMessageID = &messageID
	}

	lead, inserted, err := s.repo.Upsert(ctx, params)
	if err != nil {
		return domain.Lead{}, false, err
	}
	metrics.LeadsCapturedTotal.WithLabelValues(string(lead.Program)).Inc()

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.LeadCaptured{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Email:     lead.Email,
			Program:   string(lead.Program),
			Score:     lead.Score,
			Inserted:  inserted,
			MessageID: messageID,
		})
	}
	return lead, inserted, nil
}

// AttachContact stores the directory reference for a lead.
func (s *Service) AttachContact(ctx context.Context, id uuid.UUID, ref string) error {
	if ref == "" {
		return nil
	}
	return s.repo.SetExternalCRMRef(ctx, id, ref)
}

// SetStatus transitions a lead. Moving to unsubscribed cancels every pending
// step; moving to converted stamps convertedAt the first time.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) (transport.StatusUpdateResponse, error) {
	if !status.Valid() {
		return transport.StatusUpdateResponse{}, apperr.Validation("unknown lead status")
	}

	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.StatusUpdateResponse{}, err
	}

	lead, cancelled, err := s.repo.SetStatus(ctx, id, status, s.now())
	if err != nil {
		return transport.StatusUpdateResponse{}, err
	}

	if s.eventBus != nil && before.Status != lead.Status {
		s.eventBus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			OldStatus:      string(before.Status),
			NewStatus:      string(lead.Status),
			CancelledSteps: cancelled,
		})
	}

	return transport.StatusUpdateResponse{Lead: ToLeadResponse(lead), CancelledSteps: cancelled}, nil
}

// Get returns a lead with its generated steps.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.LeadDetailResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.LeadDetailResponse{}, err
	}
	steps, err := s.repo.ListSteps(ctx, id)
	if err != nil {
		return transport.LeadDetailResponse{}, err
	}
	return transport.LeadDetailResponse{LeadResponse: ToLeadResponse(lead), Steps: toStepResponses(steps)}, nil
}

// List returns a page of leads, newest capture first.
func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size < 1 {
		size = defaultPageSize
	}

	params := repository.ListParams{Search: req.Search, Offset: (page - 1) * size, Limit: size}
	if req.Program != "" {
		program, ok := domain.ParseProgram(req.Program)
		if !ok {
			return transport.LeadListResponse{}, apperr.Validation("unknown program")
		}
		params.Program = &program
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		if !status.Valid() {
			return transport.LeadListResponse{}, apperr.Validation("unknown lead status")
		}
		params.Status = &status
	}

	leads, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, err
	}

	items := make([]transport.LeadResponse, len(leads))
	for i, l := range leads {
		items[i] = ToLeadResponse(l)
	}
	return transport.LeadListResponse{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Stats summarises the registry. ThisWeek counts captures in the last seven days.
func (s *Service) Stats(ctx context.Context) (repository.Stats, error) {
	return s.repo.Stats(ctx, s.now().Add(-statsWindow))
}

// ListTemplates returns template steps, optionally for one program.
func (s *Service) ListTemplates(ctx context.Context, req transport.ListTemplatesRequest) ([]transport.TemplateResponse, error) {
	var filter *domain.Program
	if req.Program != "" {
		program, ok := domain.ParseProgram(req.Program)
		if !ok {
			return nil, apperr.Validation("unknown program")
		}
		filter = &program
	}

	items, err := s.repo.ListTemplates(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]transport.TemplateResponse, len(items))
	for i, t := range items {
		out[i] = toTemplateResponse(t)
	}
	return out, nil
}

// CreateTemplate adds a template step. Existing lead sequences are not
// touched; only leads generated afterwards pick it up.
func (s *Service) CreateTemplate(ctx context.Context, req transport.CreateTemplateRequest) (transport.TemplateResponse, error) {
	program, ok := domain.ParseProgram(req.Program)
	if !ok {
		return transport.TemplateResponse{}, apperr.Validation("unknown program")
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	t, err := s.repo.CreateTemplate(ctx, repository.CreateTemplateParams{
		Program:         program,
		Step:            req.Step,
		DelayDays:       req.DelayDays,
		SubjectTemplate: req.SubjectTemplate,
		BodyTemplate:    req.BodyTemplate,
		Enabled:         enabled,
	})
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toTemplateResponse(t), nil
}

// UpdateTemplate patches a template step.
func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, req transport.UpdateTemplateRequest) (transport.TemplateResponse, error) {
	if req.DelayDays == nil && req.SubjectTemplate == nil && req.BodyTemplate == nil && req.Enabled == nil {
		return transport.TemplateResponse{}, apperr.BadRequest("no fields to update")
	}

	t, err := s.repo.UpdateTemplate(ctx, id, repository.UpdateTemplateParams{
		DelayDays:       req.DelayDays,
		SubjectTemplate: req.SubjectTemplate,
		BodyTemplate:    req.BodyTemplate,
		Enabled:         req.Enabled,
	})
	if err != nil {
		return transport.TemplateResponse{}, err
	}
	return toTemplateResponse(t), nil
}
