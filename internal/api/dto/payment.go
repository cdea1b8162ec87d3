package dto

import (
	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
)

// CreateOrderRequest opens a payment for an invoice through a gateway.
// The amount is resolved server side from the invoice, never trusted
// from the client.
type CreateOrderRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
}

func (r *CreateOrderRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// VerifyPaymentRequest carries the client-side checkout artifacts back
// for server-side settlement.
type VerifyPaymentRequest struct {
	PaymentID        string `json:"payment_id" validate:"required"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (r *VerifyPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// RegistrationOrderRequest is the pre-auth variant used during site
// signup, keyed by a generated payment reference instead of a session.
type RegistrationOrderRequest struct {
	PlanID       string             `json:"plan_id" validate:"required"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	Currency     string             `json:"currency"`
	Email        string             `json:"email" validate:"required,email"`
	CouponCode   *string            `json:"coupon_code,omitempty"`
}

func (r *RegistrationOrderRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingCycle.Validate()
}

type RegistrationVerifyRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (r *RegistrationVerifyRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type RefundPaymentRequest struct {
	// Amount refunds partially when set; a full refund of the remaining
	// balance otherwise.
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason"`
}

type OrderResponse struct {
	PaymentID        string          `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	ClientSecret     string          `json:"client_secret,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

type PaymentResponse struct {
	*payment.Payment
}

type InvoiceResponse struct {
	*invoice.Invoice
}

type ListPaymentsResponse struct {
	Items      []*PaymentResponse       `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}

type ListInvoicesResponse struct {
	Items      []*InvoiceResponse       `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}

type PaymentLogResponse struct {
	*paymentlog.Log
}

type ListPaymentLogsResponse struct {
	Items      []*PaymentLogResponse    `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}
