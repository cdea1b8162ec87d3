package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/siteassist/billing-engine/internal/api/dto"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/service"
)

// SubscriptionHandler exposes the site-scoped subscription surface. A
// site holds at most one live subscription, so routes address it through
// the site rather than by subscription ID.
type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log}
}

// @Summary Create a subscription
// @Description Create the site's subscription on a plan
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.CreateSubscriptionRequest true "Subscription configuration"
// @Success 201 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /sites/{id}/subscription [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateSubscription(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get the site's subscription
// @Description Get the site's current non-cancelled subscription
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /sites/{id}/subscription [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	resp, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel the site's subscription
// @Description Cancel immediately or at the end of the current period
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param cancellation body dto.CancelSubscriptionRequest true "Cancellation options"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /sites/{id}/subscription/cancel [post]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.CancelSubscription(c.Request.Context(), sub.ID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Reactivate the site's subscription
// @Description Revoke a scheduled cancellation before the period ends
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /sites/{id}/subscription/reactivate [post]
func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.ReactivateSubscription(c.Request.Context(), sub.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Change the site's plan
// @Description Switch the subscription to a different plan or cycle
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param change body dto.ChangePlanRequest true "Target plan"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /sites/{id}/subscription/change-plan [post]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.ChangePlan(c.Request.Context(), sub.ID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Subscription history
// @Description List the audit trail of subscription transitions
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionHistoryResponse
// @Router /sites/{id}/subscription/history [get]
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.GetHistory(c.Request.Context(), sub.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Auto-pay status
// @Description Report auto-pay configuration and the upcoming charge
// @Tags AutoPay
// @Produce json
// @Success 200 {object} dto.AutoPayStatusResponse
// @Router /sites/{id}/autopay [get]
func (h *SubscriptionHandler) GetAutoPayStatus(c *gin.Context) {
	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.GetAutoPayStatus(c.Request.Context(), sub.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update auto-pay
// @Description Enable or disable auto-pay, or swap the stored method
// @Tags AutoPay
// @Accept json
// @Produce json
// @Param autopay body dto.UpdateAutoPayRequest true "Auto-pay settings"
// @Success 200 {object} dto.AutoPayStatusResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /sites/{id}/autopay [put]
func (h *SubscriptionHandler) UpdateAutoPay(c *gin.Context) {
	var req dto.UpdateAutoPayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	sub, err := h.service.GetActiveSubscription(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	resp, err := h.service.UpdateAutoPay(c.Request.Context(), sub.ID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
