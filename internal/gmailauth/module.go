package gmailauth

import (
	apphttp "nurture_backend/internal/http"
	"nurture_backend/platform/logger"

	"golang.org/x/oauth2"
)

// Module registers the Gmail connect endpoints.
type Module struct {
	handler *Handler
}

func NewModule(oauth *oauth2.Config, store *Store, stateSecret string, enabled bool, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(oauth, store, stateSecret, enabled, log)}
}

func (m *Module) Name() string {
	return "gmailauth"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/auth/gmail/callback", m.handler.Callback)

	g := ctx.Protected.Group("/auth/gmail")
	g.GET("/url", m.handler.URL)
	g.GET("/status", m.handler.Status)
	g.DELETE("", m.handler.Disconnect)
}

var _ apphttp.Module = (*Module)(nil)
