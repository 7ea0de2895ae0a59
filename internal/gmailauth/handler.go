package gmailauth

import (
	"context"
	"net/http"
	"time"

	"nurture_backend/platform/apperr"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const exchangeTimeout = 15 * time.Second

var errNotEnabled = apperr.Unavailable("gmail oauth is not configured")

// Handler serves the Gmail connect flow.
type Handler struct {
	oauth   *oauth2.Config
	store   *Store
	secret  string
	enabled bool
	log     *logger.Logger
	now     func() time.Time
}

func NewHandler(oauth *oauth2.Config, store *Store, stateSecret string, enabled bool, log *logger.Logger) *Handler {
	return &Handler{oauth: oauth, store: store, secret: stateSecret, enabled: enabled, log: log, now: time.Now}
}

// URL returns the Google consent URL.
// GET /api/v1/auth/gmail/url
func (h *Handler) URL(c *gin.Context) {
	if !h.enabled {
		httpkit.HandleError(c, errNotEnabled)
		return
	}
	state, err := signState(h.secret, httpkit.OperatorID(c), h.now())
	if httpkit.HandleError(c, err) {
		return
	}
	url := h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	httpkit.OK(c, gin.H{"url": url})
}

// Callback completes the flow Google redirects back to.
// GET /api/v1/auth/gmail/callback
func (h *Handler) Callback(c *gin.Context) {
	if !h.enabled {
		httpkit.HandleError(c, errNotEnabled)
		return
	}
	if errParam := c.Query("error"); errParam != "" {
		httpkit.Error(c, http.StatusBadRequest, "authorization was declined", errParam)
		return
	}
	operator, err := verifyState(h.secret, c.Query("state"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid state parameter", nil)
		return
	}
	code := c.Query("code")
	if code == "" {
		httpkit.Error(c, http.StatusBadRequest, "missing authorization code", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("gmail oauth exchange failed", "error", err, "operator", operator)
		httpkit.Error(c, http.StatusBadGateway, "token exchange failed", nil)
		return
	}

	email, err := profileEmail(ctx, h.oauth, tok)
	if err != nil {
		// The token works without the address; status just shows it blank.
		h.log.Warn("gmail profile lookup failed", "error", err)
	}

	if httpkit.HandleError(c, h.store.Connect(ctx, tok, email)) {
		return
	}
	h.log.Info("gmail account connected", "operator", operator, "email", email)
	httpkit.OK(c, gin.H{"connected": true, "email": email})
}

// Status reports the connected mailbox.
// GET /api/v1/auth/gmail/status
func (h *Handler) Status(c *gin.Context) {
	if !h.enabled {
		httpkit.OK(c, gin.H{"enabled": false})
		return
	}
	conn, err := h.store.Status(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"enabled": h.enabled, "connection": conn})
}

// Disconnect removes the stored token.
// DELETE /api/v1/auth/gmail
func (h *Handler) Disconnect(c *gin.Context) {
	if !h.enabled {
		httpkit.HandleError(c, errNotEnabled)
		return
	}
	if httpkit.HandleError(c, h.store.Disconnect(c.Request.Context())) {
		return
	}
	c.Status(http.StatusNoContent)
}
