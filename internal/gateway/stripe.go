package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/config"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeAdapter drives card payments through Stripe PaymentIntents.
type stripeAdapter struct {
	client *stripe.Client
	config *config.StripeConfig
	logger *logger.Logger
}

func NewStripeAdapter(cfg *config.StripeConfig, log *logger.Logger) Adapter {
	return &stripeAdapter{
		client: stripe.NewClient(cfg.SecretKey, nil),
		config: cfg,
		logger: log,
	}
}

func (a *stripeAdapter) Gateway() types.PaymentGateway {
	return types.PaymentGatewayStripe
}

func (a *stripeAdapter) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*types.GatewayResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.Description),
		Metadata:    orderMetadata(req),
	}

	intent, err := a.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, a.translateError(err, "Failed to create payment intent")
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: intent.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		ClientSecret:     intent.ClientSecret,
	}, nil
}

func (a *stripeAdapter) VerifyOrCapture(ctx context.Context, req *VerifyRequest) (*types.GatewayResult, error) {
	// Verification queries Stripe for the intent state rather than
	// trusting anything the client reported.
	intent, err := a.client.V1PaymentIntents.Retrieve(ctx, req.GatewayOrderID, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to retrieve payment intent")
	}

	amount := fromMinorUnits(intent.Amount)
	currency := strings.ToLower(string(intent.Currency))

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return &types.GatewayResult{
			Succeeded:        false,
			GatewayReference: intent.ID,
			FailureReason:    "payment intent status is " + string(intent.Status),
			Amount:           amount,
			Currency:         currency,
		}, nil
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: intent.ID,
		Amount:           amount,
		Currency:         currency,
	}, nil
}

func (a *stripeAdapter) ChargeStoredMethod(ctx context.Context, req *ChargeRequest) (*types.GatewayResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.GatewayCustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		Metadata:      req.Metadata,
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := a.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		if result, ok := a.declineResult(err, req.Amount, req.Currency); ok {
			return result, nil
		}
		return nil, a.translateError(err, "Failed to charge stored payment method")
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return &types.GatewayResult{
			Succeeded:        false,
			GatewayReference: intent.ID,
			FailureReason:    "payment intent status is " + string(intent.Status),
			Amount:           req.Amount,
			Currency:         req.Currency,
		}, nil
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: intent.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *stripeAdapter) Refund(ctx context.Context, req *RefundRequest) (*types.GatewayResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.GatewayPaymentID),
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
	}

	refund, err := a.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return nil, a.translateError(err, "Failed to create refund")
	}

	return &types.GatewayResult{
		Succeeded:        refund.Status != stripe.RefundStatusFailed,
		GatewayReference: refund.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *stripeAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) error {
	signature := headers["Stripe-Signature"]
	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	if _, err := webhook.ConstructEventWithOptions(payload, signature, a.config.WebhookSecret, options); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrSignature)
	}
	return nil
}

func (a *stripeAdapter) ParseWebhookEvent(payload []byte) (*types.GatewayEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrValidation)
	}

	out := &types.GatewayEvent{
		ID:         event.ID,
		Gateway:    types.PaymentGatewayStripe,
		Type:       types.GatewayEventUnhandled,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed payment intent payload").
				Mark(ierr.ErrValidation)
		}
		out.GatewayPaymentID = intent.ID
		out.GatewayOrderID = intent.ID
		out.Amount = fromMinorUnits(intent.Amount)
		out.Currency = strings.ToLower(string(intent.Currency))
		out.Metadata = intent.Metadata
		if event.Type == "payment_intent.succeeded" {
			out.Type = types.GatewayEventPaymentSucceeded
		} else {
			out.Type = types.GatewayEventPaymentFailed
			if intent.LastPaymentError != nil {
				out.FailureReason = intent.LastPaymentError.Msg
			}
		}

	case "invoice.paid", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed invoice payload").
				Mark(ierr.ErrValidation)
		}
		out.GatewayInvoiceID = inv.ID
		out.Amount = fromMinorUnits(inv.AmountPaid)
		out.Currency = strings.ToLower(string(inv.Currency))
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			out.GatewaySubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		if event.Type == "invoice.paid" {
			out.Type = types.GatewayEventInvoicePaid
		} else {
			out.Type = types.GatewayEventInvoicePaymentFailed
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed subscription payload").
				Mark(ierr.ErrValidation)
		}
		out.GatewaySubscriptionID = sub.ID
		if event.Type == "customer.subscription.deleted" {
			out.Type = types.GatewayEventSubscriptionDeleted
		} else {
			out.Type = types.GatewayEventSubscriptionUpdated
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Malformed charge payload").
				Mark(ierr.ErrValidation)
		}
		out.Type = types.GatewayEventChargeRefunded
		if charge.PaymentIntent != nil {
			out.GatewayPaymentID = charge.PaymentIntent.ID
		}
		out.Amount = fromMinorUnits(charge.AmountRefunded)
		out.Currency = strings.ToLower(string(charge.Currency))

	default:
		a.logger.Debugw("ignoring unhandled stripe event", "event_type", event.Type, "event_id", event.ID)
	}

	return out, nil
}

// declineResult converts an explicit card decline into a failed result
// instead of an error, so the caller records the failure and moves on.
func (a *stripeAdapter) declineResult(err error, amount decimal.Decimal, currency string) (*types.GatewayResult, bool) {
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return nil, false
	}
	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined,
		stripe.ErrorCodeExpiredCard,
		stripe.ErrorCodeIncorrectCVC,
		stripe.ErrorCodeAuthenticationRequired:
		result := &types.GatewayResult{
			Succeeded:     false,
			FailureReason: string(stripeErr.Code),
			Amount:        amount,
			Currency:      currency,
		}
		if stripeErr.PaymentIntent != nil {
			result.GatewayReference = stripeErr.PaymentIntent.ID
		}
		return result, true
	}
	return nil, false
}

func (a *stripeAdapter) translateError(err error, hint string) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		builder := ierr.WithError(err).
			WithHint(hint).
			WithReportableDetails(map[string]any{
				"stripe_error_code": stripeErr.Code,
			})
		if stripeErr.HTTPStatusCode >= 500 {
			return builder.Mark(ierr.ErrGatewayTransient)
		}
		if stripeErr.Type == stripe.ErrorTypeCard {
			return builder.Mark(ierr.ErrGatewayDeclined)
		}
		return builder.Mark(ierr.ErrInvalidOperation)
	}
	// Transport failures may have gone through on the gateway side.
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrGatewayTransient)
}

func orderMetadata(req *CreateOrderRequest) map[string]string {
	md := map[string]string{
		"payment_id":        req.PaymentID,
		"payment_reference": req.PaymentReference,
	}
	for k, v := range req.Metadata {
		md[k] = v
	}
	return md
}

// Gateways bill in minor units; amounts cross this boundary exactly twice.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}
