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

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

func parseGateway(c *gin.Context) (types.PaymentGateway, error) {
	gw := types.PaymentGateway(c.Param("gateway"))
	if err := gw.Validate(); err != nil {
		return "", err
	}
	return gw, nil
}

// @Summary Create a payment order
// @Description Open a gateway order for an unpaid invoice
// @Tags Payments
// @Accept json
// @Produce json
// @Param gateway path string true "Payment gateway"
// @Param order body dto.CreateOrderRequest true "Invoice to pay"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /sites/{id}/checkout/{gateway}/create-order [post]
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	gw, err := parseGateway(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), gw, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Verify a payment
// @Description Settle a client-confirmed payment against the gateway
// @Tags Payments
// @Accept json
// @Produce json
// @Param gateway path string true "Payment gateway"
// @Param verification body dto.VerifyPaymentRequest true "Checkout artifacts"
// @Success 200 {object} dto.PaymentResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Router /sites/{id}/checkout/{gateway}/verify [post]
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	gw, err := parseGateway(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.VerifyPayment(c.Request.Context(), gw, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Create a registration order
// @Description Open a gateway order for a signup before the site exists
// @Tags Registration
// @Accept json
// @Produce json
// @Param gateway path string true "Payment gateway"
// @Param order body dto.RegistrationOrderRequest true "Signup details"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /registration/payments/{gateway}/create-order [post]
func (h *PaymentHandler) CreateRegistrationOrder(c *gin.Context) {
	gw, err := parseGateway(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.RegistrationOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateRegistrationOrder(c.Request.Context(), gw, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Verify a registration payment
// @Description Settle a signup payment and materialize the site
// @Tags Registration
// @Accept json
// @Produce json
// @Param gateway path string true "Payment gateway"
// @Param verification body dto.RegistrationVerifyRequest true "Checkout artifacts"
// @Success 200 {object} dto.PaymentResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Router /registration/payments/{gateway}/verify [post]
func (h *PaymentHandler) VerifyRegistrationPayment(c *gin.Context) {
	gw, err := parseGateway(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req dto.RegistrationVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.VerifyRegistrationPayment(c.Request.Context(), gw, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List payments
// @Description List the site's payments
// @Tags Payments
// @Produce json
// @Success 200 {object} dto.ListPaymentsResponse
// @Router /sites/{id}/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListPayments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a payment
// @Description Get a payment by ID
// @Tags Payments
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /sites/{id}/payments/{paymentId} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	resp, err := h.service.GetPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List invoices
// @Description List the site's invoices
// @Tags Invoices
// @Produce json
// @Success 200 {object} dto.ListInvoicesResponse
// @Router /sites/{id}/invoices [get]
func (h *PaymentHandler) ListInvoices(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListInvoices(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get an invoice
// @Description Get an invoice by ID
// @Tags Invoices
// @Produce json
// @Param invoiceId path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /sites/{id}/invoices/{invoiceId} [get]
func (h *PaymentHandler) GetInvoice(c *gin.Context) {
	resp, err := h.service.GetInvoice(c.Request.Context(), c.Param("invoiceId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
