package replies

import (
	"context"
	"net/http"

	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// ScanTrigger runs or queues an operator-requested scan.
type ScanTrigger interface {
	Trigger(ctx context.Context, taskType, requestedBy string) (scheduler.Outcome, error)
}

type Handler struct {
	svc   *Service
	scans ScanTrigger
	val   *validator.Validator
}

func NewHandler(svc *Service, scans ScanTrigger, val *validator.Validator) *Handler {
	return &Handler{svc: svc, scans: scans, val: val}
}

// GET /api/v1/replies
func (h *Handler) List(c *gin.Context) {
	var req ListRepliesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	q := ListQuery{Page: req.Page, PageSize: req.PageSize}
	if req.Status != "" {
		status := Status(req.Status)
		q.Status = &status
	}
	if req.CampaignID != "" {
		id, err := uuid.Parse(req.CampaignID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, nil)
			return
		}
		q.CampaignID = &id
	}

	page, err := h.svc.List(c.Request.Context(), q)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toListResponse(page))
}

// Unlinked lists replies no campaign could be matched to.
// GET /api/v1/replies/unlinked
func (h *Handler) Unlinked(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), ListQuery{Unlinked: true, PageSize: 100})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toListResponse(page))
}

// GET /api/v1/replies/:id
func (h *Handler) Get(c *gin.Context) {
	rep, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(rep))
}

// POST /api/v1/replies/:id/respond
func (h *Handler) Respond(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	rep, err := h.svc.Respond(c.Request.Context(), c.Param("id"), req.Body)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(rep))
}

// POST /api/v1/replies/:id/dismiss
func (h *Handler) Dismiss(c *gin.Context) {
	rep, err := h.svc.Dismiss(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(rep))
}

// POST /api/v1/replies/:id/link
func (h *Handler) Link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	rep, err := h.svc.Link(c.Request.Context(), c.Param("id"), req.CampaignID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(rep))
}

// Raw returns a short-lived link to the archived original message.
// GET /api/v1/replies/:id/raw
func (h *Handler) Raw(c *gin.Context) {
	url, err := h.svc.RawURL(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"url": url})
}

// Scan runs the reply scan now, or queues it for the scheduler.
// POST /api/v1/replies/scan
func (h *Handler) Scan(c *gin.Context) {
	out, err := h.scans.Trigger(c.Request.Context(), scheduler.TaskReplyScan, httpkit.OperatorID(c))
	if httpkit.HandleError(c, err) {
		return
	}
	resp := gin.H{
		"queued":    out.Queued,
		"listed":    out.Report.Listed,
		"processed": out.Report.Processed,
		"skipped":   out.Report.Skipped,
		"failed":    out.Report.Failed,
	}
	if out.Queued {
		httpkit.Accepted(c, resp)
		return
	}
	httpkit.OK(c, resp)
}
