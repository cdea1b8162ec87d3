package payment

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Payment is one attempt to collect money through a gateway. The row is
// created before the gateway is contacted so every external call has a
// local anchor, and the status only moves forward from there.
type Payment struct {
	ID        string  `db:"id" json:"id"`
	InvoiceID *string `db:"invoice_id" json:"invoice_id,omitempty"`

	// PaymentReference is the human-facing short id handed to the
	// client and echoed back on verification.
	PaymentReference string `db:"payment_reference" json:"payment_reference"`

	// IdempotencyKey dedupes retried charge attempts. Unique per
	// tenant when set.
	IdempotencyKey *string `db:"idempotency_key" json:"idempotency_key,omitempty"`

	Gateway       types.PaymentGateway `db:"gateway" json:"gateway"`
	PaymentStatus types.PaymentStatus  `db:"payment_status" json:"payment_status"`

	Currency string          `db:"currency" json:"currency"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`

	// AmountRefunded accumulates across partial refunds, never exceeds Amount
	AmountRefunded decimal.Decimal `db:"amount_refunded" json:"amount_refunded"`

	// GatewayOrderID is the gateway-side order/intent created up front;
	// GatewayPaymentID is the settled charge reference.
	GatewayOrderID   *string `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`

	FailureReason *string `db:"failure_reason" json:"failure_reason,omitempty"`

	SucceededAt *time.Time `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt    *time.Time `db:"failed_at" json:"failed_at,omitempty"`

	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	types.BaseModel
}

func (p *Payment) Validate() error {
	if p.Amount.IsNegative() || p.Amount.IsZero() {
		return ierr.NewError("payment amount must be positive").
			WithHint("Payment amount must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("payment currency is required").
			WithHint("Payment currency is required").
			Mark(ierr.ErrValidation)
	}
	if err := p.Gateway.Validate(); err != nil {
		return err
	}
	return nil
}

// TransitionTo applies a forward-only status change. Returns false when
// the payment is already in the target status, which callers treat as a
// duplicate delivery rather than an error.
func (p *Payment) TransitionTo(status types.PaymentStatus, at time.Time) (bool, error) {
	if p.PaymentStatus == status {
		return false, nil
	}
	if !p.PaymentStatus.CanTransitionTo(status) {
		return false, ierr.NewError("invalid payment status transition").
			WithHintf("Payment cannot move from %s to %s", p.PaymentStatus, status).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"from":       p.PaymentStatus,
				"to":         status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	p.PaymentStatus = status
	switch status {
	case types.PaymentStatusSucceeded:
		p.SucceededAt = &at
	case types.PaymentStatusFailed:
		p.FailedAt = &at
	}
	return true, nil
}

// RefundableAmount is what remains collectible back to the customer.
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.AmountRefunded)
}

// Refund is a child record of a payment, one row per refund issued.
type Refund struct {
	ID        string `db:"id" json:"id"`
	PaymentID string `db:"payment_id" json:"payment_id"`

	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`

	GatewayRefundID *string `db:"gateway_refund_id" json:"gateway_refund_id,omitempty"`
	Reason          *string `db:"reason" json:"reason,omitempty"`

	types.BaseModel
}
