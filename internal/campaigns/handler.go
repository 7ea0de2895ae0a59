package campaigns

import (
	"net/http"
	"time"

	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid campaign ID"
)

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	Name       string   `json:"name" validate:"required,min=1,max=200"`
	Program    *string  `json:"program,omitempty" validate:"omitempty,program"`
	Subject    string   `json:"subject" validate:"max=500"`
	Body       string   `json:"body" validate:"max=100000"`
	ContactIDs []string `json:"contactIds" validate:"max=5000,dive,required"`
}

// UpdateCampaignRequest is the body of PUT /campaigns/:id. Absent fields are kept.
type UpdateCampaignRequest struct {
	Name          *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Subject       *string    `json:"subject" validate:"omitempty,max=500"`
	Body          *string    `json:"body" validate:"omitempty,max=100000"`
	ContactIDs    []string   `json:"contactIds" validate:"omitempty,max=5000,dive,required"`
	ScheduledTime *time.Time `json:"scheduledTime"`
}

// ScheduleCampaignRequest is the body of POST /campaigns/:id/schedule.
type ScheduleCampaignRequest struct {
	ScheduledTime time.Time `json:"scheduledTime" validate:"required"`
}

// CampaignResponse is the API shape of a campaign.
type CampaignResponse struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Program       *string     `json:"program,omitempty"`
	TrackingToken string      `json:"trackingToken"`
	Subject       string      `json:"subject"`
	Body          string      `json:"body"`
	Status        string      `json:"status"`
	ContactIDs    []string    `json:"contactIds"`
	ScheduledTime *time.Time  `json:"scheduledTime,omitempty"`
	SentAt        *time.Time  `json:"sentAt,omitempty"`
	Recipients    []Recipient `json:"recipients"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Handler serves the operator campaign endpoints.
type Handler struct {
	svc         *Service
	broadcaster *Broadcaster
	val         *validator.Validator
}

func NewHandler(svc *Service, broadcaster *Broadcaster, val *validator.Validator) *Handler {
	return &Handler{svc: svc, broadcaster: broadcaster, val: val}
}

// List returns all campaigns.
// GET /api/v1/campaigns
func (h *Handler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]CampaignResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	httpkit.OK(c, gin.H{"items": out})
}

// Get returns one campaign.
// GET /api/v1/campaigns/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(item))
}

// Create registers a campaign and returns its tracking token.
// POST /api/v1/campaigns
func (h *Handler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	item, err := h.svc.Create(c.Request.Context(), Draft{
		Name:       req.Name,
		Subject:    req.Subject,
		Body:       req.Body,
		ContactIDs: req.ContactIDs,
	}, req.Program)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toResponse(item))
}

// Update edits a broadcast that has not been sent.
// PUT /api/v1/campaigns/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	item, err := h.svc.Update(c.Request.Context(), id, Patch{
		Name:          req.Name,
		Subject:       req.Subject,
		Body:          req.Body,
		ContactIDs:    req.ContactIDs,
		ScheduledTime: req.ScheduledTime,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(item))
}

// Delete removes a broadcast that has not been sent.
// DELETE /api/v1/campaigns/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Duplicate copies a campaign into a new draft.
// POST /api/v1/campaigns/:id/duplicate
func (h *Handler) Duplicate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.svc.Duplicate(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toResponse(item))
}

// Schedule queues a broadcast for the campaign timer.
// POST /api/v1/campaigns/:id/schedule
func (h *Handler) Schedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ScheduleCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	item, err := h.svc.Schedule(c.Request.Context(), id, req.ScheduledTime)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(item))
}

// Cancel returns a scheduled broadcast to draft.
// POST /api/v1/campaigns/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.svc.Cancel(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(item))
}

// Send delivers a broadcast now and reports per-recipient counts.
// POST /api/v1/campaigns/:id/send
func (h *Handler) Send(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.broadcaster.Send(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func toResponse(c Campaign) CampaignResponse {
	recipients := c.Recipients
	if recipients == nil {
		recipients = []Recipient{}
	}
	return CampaignResponse{
		ID:            c.ID,
		Name:          c.Name,
		Program:       c.Program,
		TrackingToken: c.TrackingToken,
		Subject:       c.Subject,
		Body:          c.Body,
		Status:        c.Status,
		ContactIDs:    nonNil(c.ContactIDs),
		ScheduledTime: c.ScheduledTime,
		SentAt:        c.SentAt,
		Recipients:    recipients,
		CreatedAt:     c.CreatedAt,
	}
}
