package campaigns

import (
	"nurture_backend/internal/directory"
	"nurture_backend/internal/email"
	apphttp "nurture_backend/internal/http"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the campaigns bounded context implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(pool *pgxpool.Pool, val *validator.Validator, contacts directory.ContactReader, sender email.Sender, opts BroadcastOptions, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo)
	broadcaster := NewBroadcaster(repo, contacts, sender, opts, log)
	return &Module{handler: NewHandler(svc, broadcaster, val), service: svc}
}

func (m *Module) Name() string {
	return "campaigns"
}

// Service returns the campaign service for correlation by other modules.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/campaigns")
	g.GET("", m.handler.List)
	g.POST("", m.handler.Create)
	g.GET("/:id", m.handler.Get)
	g.PUT("/:id", m.handler.Update)
	g.DELETE("/:id", m.handler.Delete)
	g.POST("/:id/duplicate", m.handler.Duplicate)
	g.POST("/:id/schedule", m.handler.Schedule)
	g.POST("/:id/cancel", m.handler.Cancel)
	g.POST("/:id/send", m.handler.Send)
}

var _ apphttp.Module = (*Module)(nil)
