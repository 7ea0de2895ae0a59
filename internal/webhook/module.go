// Package webhook receives delivery provider callbacks and records open and
// click engagement on sent sequence steps.
package webhook

import (
	apphttp "nurture_backend/internal/http"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/logger"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	apiKey  string
	log     *logger.Logger
}

// NewModule wires the delivery webhook. With an empty apiKey no routes are
// mounted.
func NewModule(steps repository.EngagementWriter, apiKey string, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(NewService(steps, log)),
		apiKey:  apiKey,
		log:     log,
	}
}

func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.apiKey == "" {
		m.log.Info("delivery webhook disabled: DELIVERY_WEBHOOK_KEY not set")
		return
	}
	group := ctx.V1.Group("/webhooks")
	group.Use(APIKeyAuthMiddleware(m.apiKey))
	group.POST("/delivery", m.handler.HandleDeliveryEvents)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
