package webhook

import (
	"net/http"

	"nurture_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	maxBatchSize      = 1000
)

// Handler handles provider webhook requests.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleDeliveryEvents processes a provider event batch.
// POST /api/v1/webhooks/delivery
func (h *Handler) HandleDeliveryEvents(c *gin.Context) {
	var batch []DeliveryEvent
	if err := c.ShouldBindJSON(&batch); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if len(batch) > maxBatchSize {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "too many events in one batch", nil)
		return
	}

	res := h.service.ProcessBatch(c.Request.Context(), batch)
	httpkit.OK(c, res)
}
