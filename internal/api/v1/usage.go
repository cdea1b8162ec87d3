package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/siteassist/billing-engine/internal/api/dto"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/service"
	"github.com/siteassist/billing-engine/internal/types"
)

type UsageHandler struct {
	service    service.UsageService
	subService service.SubscriptionService
	log        *logger.Logger
}

func NewUsageHandler(service service.UsageService, subService service.SubscriptionService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{service: service, subService: subService, log: log}
}

func (h *UsageHandler) activeSubscriptionID(c *gin.Context) (string, bool) {
	sub, err := h.subService.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return "", false
	}
	return sub.ID, true
}

// @Summary Record usage
// @Description Add usage to the site's current-period counter for a metric
// @Tags Usage
// @Accept json
// @Produce json
// @Param usage body dto.RecordUsageRequest true "Usage delta"
// @Success 202
// @Failure 400 {object} ierr.ErrorResponse
// @Router /sites/{id}/usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	subID, ok := h.activeSubscriptionID(c)
	if !ok {
		return
	}

	if err := h.service.RecordUsage(c.Request.Context(), subID, &req); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusAccepted)
}

// @Summary Check a usage limit
// @Description Answer whether one more unit of the metric is allowed
// @Tags Usage
// @Produce json
// @Param metric query string true "Metric name"
// @Success 200 {object} dto.CheckLimitResult
// @Failure 400 {object} ierr.ErrorResponse
// @Router /sites/{id}/usage/check [get]
func (h *UsageHandler) CheckLimit(c *gin.Context) {
	metric := types.Metric(c.Query("metric"))
	if err := metric.Validate(); err != nil {
		c.Error(err)
		return
	}

	subID, ok := h.activeSubscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.CheckLimit(c.Request.Context(), subID, metric)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Usage summary
// @Description Report every metric against its plan limit for the period
// @Tags Usage
// @Produce json
// @Success 200 {object} dto.UsageSummaryResponse
// @Router /sites/{id}/usage [get]
func (h *UsageHandler) GetUsageSummary(c *gin.Context) {
	subID, ok := h.activeSubscriptionID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetUsageSummary(c.Request.Context(), subID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
