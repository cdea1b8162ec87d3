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

// AdminHandler is the operator surface: cross-tenant reads, refunds, and
// out-of-band renewal retries.
type AdminHandler struct {
	subService     service.SubscriptionService
	paymentService service.PaymentService
	autoPayService service.AutoPayService
	log            *logger.Logger
}

func NewAdminHandler(
	subService service.SubscriptionService,
	paymentService service.PaymentService,
	autoPayService service.AutoPayService,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		subService:     subService,
		paymentService: paymentService,
		autoPayService: autoPayService,
		log:            log,
	}
}

// @Summary List subscriptions
// @Description List subscriptions with filtering across sites
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.ListSubscriptionsResponse
// @Router /admin/subscriptions [get]
func (h *AdminHandler) ListSubscriptions(c *gin.Context) {
	var filter types.SubscriptionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.subService.ListSubscriptions(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a subscription
// @Description Get any subscription by ID
// @Tags Admin
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /admin/subscriptions/{id} [get]
func (h *AdminHandler) GetSubscription(c *gin.Context) {
	resp, err := h.subService.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Subscription history
// @Description List a subscription's audit trail
// @Tags Admin
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} dto.SubscriptionHistoryResponse
// @Router /admin/subscriptions/{id}/history [get]
func (h *AdminHandler) GetSubscriptionHistory(c *gin.Context) {
	resp, err := h.subService.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Retry a renewal charge
// @Description Run the renewal charge for a subscription out of band
// @Tags Admin
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 202
// @Failure 404 {object} ierr.ErrorResponse
// @Router /admin/subscriptions/{id}/charge [post]
func (h *AdminHandler) ChargeSubscription(c *gin.Context) {
	if err := h.autoPayService.ChargeSubscription(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusAccepted)
}

// @Summary List payments
// @Description List payments across sites
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.ListPaymentsResponse
// @Router /admin/payments [get]
func (h *AdminHandler) ListPayments(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.paymentService.ListPayments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List invoices
// @Description List invoices across sites
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.ListInvoicesResponse
// @Router /admin/invoices [get]
func (h *AdminHandler) ListInvoices(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.paymentService.ListInvoices(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List payment logs
// @Description List the gateway interaction audit trail
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.ListPaymentLogsResponse
// @Router /admin/payment-logs [get]
func (h *AdminHandler) ListPaymentLogs(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.paymentService.ListPaymentLogs(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Refund a payment
// @Description Refund a settled payment fully or partially
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param refund body dto.RefundPaymentRequest true "Refund options"
// @Success 200 {object} dto.PaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /admin/payments/{id}/refund [post]
func (h *AdminHandler) RefundPayment(c *gin.Context) {
	var req dto.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.paymentService.RefundPayment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
