// Package leads is the lead capture and nurture bounded context: the lead
// registry, sequence templates and generated steps, and the capture scan.
package leads

import (
	"nurture_backend/internal/events"
	apphttp "nurture_backend/internal/http"
	"nurture_backend/internal/leads/handler"
	"nurture_backend/internal/leads/management"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/internal/leads/sequence"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	repo       *repository.Repository
	management *management.Service
	generator  *sequence.Generator
}

// NewModule wires the leads repository, registry and sequence generator.
// scans serves the "run capture scan now" endpoint.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, scans handler.ScanTrigger, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	mgmtSvc := management.New(repo, eventBus)
	generator := sequence.New(repo)

	mgmtSvc.Subscribe(eventBus, log)

	return &Module{
		handler:    handler.New(mgmtSvc, scans, val),
		repo:       repo,
		management: mgmtSvc,
		generator:  generator,
	}
}

func (m *Module) Name() string {
	return "leads"
}

// ManagementService returns the lead registry for the capture scan.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// Generator returns the sequence generator for the capture scan.
func (m *Module) Generator() *sequence.Generator {
	return m.generator
}

// Repository returns the leads repository for the dispatcher and webhook.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
	m.handler.RegisterTemplateRoutes(ctx.Protected.Group("/sequence-templates"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
