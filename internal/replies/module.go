package replies

import (
	apphttp "nurture_backend/internal/http"
	"nurture_backend/platform/validator"
)

// Module is the replies bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(svc *Service, scans ScanTrigger, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, scans, val)}
}

func (m *Module) Name() string {
	return "replies"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/replies")
	g.GET("", m.handler.List)
	g.GET("/unlinked", m.handler.Unlinked)
	g.POST("/scan", m.handler.Scan)
	g.GET("/:id", m.handler.Get)
	g.GET("/:id/raw", m.handler.Raw)
	g.POST("/:id/respond", m.handler.Respond)
	g.POST("/:id/dismiss", m.handler.Dismiss)
	g.POST("/:id/link", m.handler.Link)
}

var _ apphttp.Module = (*Module)(nil)
