package types

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentGateway identifies which external gateway processed a payment.
type PaymentGateway string

const (
	PaymentGatewayStripe   PaymentGateway = "stripe"
	PaymentGatewayRazorpay PaymentGateway = "razorpay"
	PaymentGatewayPayPal   PaymentGateway = "paypal"
)

func (g PaymentGateway) String() string {
	return string(g)
}

func (g PaymentGateway) Validate() error {
	allowed := []PaymentGateway{
		PaymentGatewayStripe,
		PaymentGatewayRazorpay,
		PaymentGatewayPayPal,
	}
	if !lo.Contains(allowed, g) {
		return ierr.NewError("invalid payment gateway").
			WithHint("Payment gateway must be stripe, razorpay or paypal").
			WithReportableDetails(map[string]any{
				"gateway":        g,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GatewayResult is the normalized outcome of any gateway capability call.
// Adapters translate gateway-specific payloads (minor units, provider
// error codes) into this shape; they never touch the ledger themselves.
type GatewayResult struct {
	Succeeded        bool            `json:"succeeded"`
	GatewayReference string          `json:"gateway_reference"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	// Transient marks failures that may still succeed out-of-band
	// (timeouts, gateway 5xx). These are reconciled via webhooks rather
	// than treated as permanent declines.
	Transient bool            `json:"transient,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	// ClientSecret is returned on order creation for gateways that need
	// a client-side confirmation step.
	ClientSecret string `json:"client_secret,omitempty"`
}

// GatewayEventType is the normalized webhook event type across gateways.
type GatewayEventType string

const (
	GatewayEventPaymentSucceeded     GatewayEventType = "payment_succeeded"
	GatewayEventPaymentFailed        GatewayEventType = "payment_failed"
	GatewayEventInvoicePaid          GatewayEventType = "invoice_paid"
	GatewayEventInvoicePaymentFailed GatewayEventType = "invoice_payment_failed"
	GatewayEventSubscriptionUpdated  GatewayEventType = "subscription_updated"
	GatewayEventSubscriptionDeleted  GatewayEventType = "subscription_deleted"
	GatewayEventChargeRefunded       GatewayEventType = "charge_refunded"
	GatewayEventUnhandled            GatewayEventType = "unhandled"
)

// GatewayEvent is a webhook event translated out of a gateway payload.
// Correlation ids are the gateway's identifiers; the reconciler maps them
// to local rows via stored foreign references, never by recomputation.
type GatewayEvent struct {
	ID                    string           `json:"id"`
	Type                  GatewayEventType `json:"type"`
	Gateway               PaymentGateway   `json:"gateway"`
	GatewayPaymentID      string           `json:"gateway_payment_id,omitempty"`
	GatewayOrderID        string           `json:"gateway_order_id,omitempty"`
	GatewayInvoiceID      string           `json:"gateway_invoice_id,omitempty"`
	GatewaySubscriptionID string           `json:"gateway_subscription_id,omitempty"`
	Amount                decimal.Decimal  `json:"amount"`
	Currency              string           `json:"currency,omitempty"`
	FailureReason         string           `json:"failure_reason,omitempty"`
	OccurredAt            time.Time        `json:"occurred_at"`

	// Metadata echoes the key-value pairs we attached at order creation
	// (buyer email, intended plan). It is what lets an orphaned payment
	// be reconciled by hand later.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PaymentLogAction is the gateway interaction recorded in the audit log.
type PaymentLogAction string

const (
	PaymentLogActionCreateOrder     PaymentLogAction = "create_order"
	PaymentLogActionVerify          PaymentLogAction = "verify"
	PaymentLogActionCharge          PaymentLogAction = "charge"
	PaymentLogActionRefund          PaymentLogAction = "refund"
	PaymentLogActionWebhook         PaymentLogAction = "webhook"
	PaymentLogActionGatewayTimeout  PaymentLogAction = "gateway_timeout"
	PaymentLogActionOrphanedPayment PaymentLogAction = "orphaned_payment"
)

// PaymentLogStatus is the outcome recorded for a gateway interaction.
type PaymentLogStatus string

const (
	PaymentLogStatusSuccess PaymentLogStatus = "success"
	PaymentLogStatusFailure PaymentLogStatus = "failure"
	PaymentLogStatusSkipped PaymentLogStatus = "skipped"
)
