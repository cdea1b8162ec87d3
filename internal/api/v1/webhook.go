package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/service"
	"github.com/siteassist/billing-engine/internal/types"
)

// WebhookHandler receives gateway webhook deliveries. The route is
// unauthenticated; each adapter authenticates the delivery by its
// signature before any content is trusted.
type WebhookHandler struct {
	service service.ReconcilerService
	log     *logger.Logger
}

func NewWebhookHandler(service service.ReconcilerService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// @Summary Receive a gateway webhook
// @Description Verify and apply a gateway event to the ledger
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param gateway path string true "Payment gateway"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/{gateway} [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	gw := types.PaymentGateway(c.Param("gateway"))
	if err := gw.Validate(); err != nil {
		c.Error(err)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}

	if err := h.service.ProcessWebhook(c.Request.Context(), gw, payload, headers); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
