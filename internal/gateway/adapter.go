package gateway

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/types"
)

// CreateOrderRequest asks a gateway to open a payment for client-side
// confirmation. Amount is in major units; adapters convert to whatever
// the gateway wire format expects.
type CreateOrderRequest struct {
	PaymentID        string
	PaymentReference string
	Amount           decimal.Decimal
	Currency         string
	CustomerEmail    string
	Description      string
	Metadata         map[string]string
}

// VerifyRequest carries the artifacts the client hands back after
// completing a gateway checkout.
type VerifyRequest struct {
	PaymentID        string
	GatewayOrderID   string
	GatewayPaymentID string
	// Signature is the client-supplied proof for gateways that sign the
	// order and payment ids (razorpay).
	Signature string
}

// ChargeRequest is a server-initiated charge against a stored payment
// method, used by renewal billing.
type ChargeRequest struct {
	PaymentID         string
	Amount            decimal.Decimal
	Currency          string
	GatewayCustomerID string
	PaymentMethodID   string
	IdempotencyKey    string
	Description       string
	Metadata          map[string]string
}

// RefundRequest reverses a settled charge, fully or partially.
type RefundRequest struct {
	PaymentID        string
	GatewayPaymentID string
	Amount           decimal.Decimal
	Currency         string
	Reason           string
}

// Adapter is the capability surface every payment gateway implements.
// Adapters translate to and from gateway wire formats and report
// normalized results; ledger writes stay with the calling service.
type Adapter interface {
	Gateway() types.PaymentGateway

	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*types.GatewayResult, error)

	// VerifyOrCapture settles a client-confirmed payment. It must fail
	// closed: any doubt about authenticity or state is a failure.
	VerifyOrCapture(ctx context.Context, req *VerifyRequest) (*types.GatewayResult, error)

	ChargeStoredMethod(ctx context.Context, req *ChargeRequest) (*types.GatewayResult, error)

	Refund(ctx context.Context, req *RefundRequest) (*types.GatewayResult, error)

	// VerifyWebhookSignature authenticates a raw webhook delivery before
	// any of its content is trusted.
	VerifyWebhookSignature(payload []byte, headers map[string]string) error

	// ParseWebhookEvent translates an authenticated payload into a
	// normalized event. Unrecognized event types map to
	// GatewayEventUnhandled, never an error.
	ParseWebhookEvent(payload []byte) (*types.GatewayEvent, error)
}
