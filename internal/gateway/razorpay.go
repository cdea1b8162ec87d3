package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/siteassist/billing-engine/internal/config"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/types"
)

// razorpayAdapter drives regional payments (UPI, netbanking, wallets,
// cards) through Razorpay orders.
type razorpayAdapter struct {
	client *razorpay.Client
	config *config.RazorpayConfig
	logger *logger.Logger
}

func NewRazorpayAdapter(cfg *config.RazorpayConfig, log *logger.Logger) Adapter {
	return &razorpayAdapter{
		client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		config: cfg,
		logger: log,
	}
}

func (a *razorpayAdapter) Gateway() types.PaymentGateway {
	return types.PaymentGatewayRazorpay
}

func (a *razorpayAdapter) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*types.GatewayResult, error) {
	notes := map[string]interface{}{}
	for k, v := range orderMetadata(req) {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   toMinorUnits(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.PaymentReference,
		"notes":    notes,
	}

	order, err := a.client.Order.Create(data, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to create razorpay order")
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, ierr.NewError("razorpay order response missing id").
			WithHint("Razorpay returned an unexpected order response").
			Mark(ierr.ErrGatewayTransient)
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: orderID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *razorpayAdapter) VerifyOrCapture(ctx context.Context, req *VerifyRequest) (*types.GatewayResult, error) {
	// Razorpay signs order_id|payment_id with the key secret. The
	// signature check runs before any state is read from the gateway.
	if !a.verifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return nil, ierr.NewError("razorpay payment signature mismatch").
			WithHint("Payment verification failed").
			WithReportableDetails(map[string]any{
				"gateway_order_id":   req.GatewayOrderID,
				"gateway_payment_id": req.GatewayPaymentID,
			}).
			Mark(ierr.ErrSignature)
	}

	pmt, err := a.client.Payment.Fetch(req.GatewayPaymentID, nil, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to fetch razorpay payment")
	}

	status, _ := pmt["status"].(string)
	amountMinor := asInt64(pmt["amount"])
	currency, _ := pmt["currency"].(string)

	// Authorized payments still need an explicit capture.
	if status == "authorized" {
		captured, err := a.client.Payment.Capture(req.GatewayPaymentID, int(amountMinor), map[string]interface{}{
			"currency": currency,
		}, nil)
		if err != nil {
			return nil, a.translateError(err, "Failed to capture razorpay payment")
		}
		status, _ = captured["status"].(string)
	}

	if status != "captured" {
		reason, _ := pmt["error_description"].(string)
		if reason == "" {
			reason = "payment status is " + status
		}
		return &types.GatewayResult{
			Succeeded:        false,
			GatewayReference: req.GatewayPaymentID,
			FailureReason:    reason,
			Amount:           fromMinorUnits(amountMinor),
			Currency:         strings.ToLower(currency),
		}, nil
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: req.GatewayPaymentID,
		Amount:           fromMinorUnits(amountMinor),
		Currency:         strings.ToLower(currency),
	}, nil
}

func (a *razorpayAdapter) ChargeStoredMethod(ctx context.Context, req *ChargeRequest) (*types.GatewayResult, error) {
	order, err := a.client.Order.Create(map[string]interface{}{
		"amount":   toMinorUnits(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.IdempotencyKey,
		"notes": map[string]interface{}{
			"payment_id": req.PaymentID,
		},
	}, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to create razorpay renewal order")
	}
	orderID, _ := order["id"].(string)

	pmt, err := a.client.Payment.CreateRecurringPayment(map[string]interface{}{
		"amount":      toMinorUnits(req.Amount),
		"currency":    strings.ToUpper(req.Currency),
		"order_id":    orderID,
		"customer_id": req.GatewayCustomerID,
		"token":       req.PaymentMethodID,
		"recurring":   "1",
		"description": req.Description,
	}, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to charge razorpay token")
	}

	paymentID, _ := pmt["razorpay_payment_id"].(string)
	if paymentID == "" {
		paymentID, _ = pmt["id"].(string)
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: paymentID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *razorpayAdapter) Refund(ctx context.Context, req *RefundRequest) (*types.GatewayResult, error) {
	refund, err := a.client.Payment.Refund(req.GatewayPaymentID, int(toMinorUnits(req.Amount)), map[string]interface{}{
		"notes": map[string]interface{}{
			"reason": req.Reason,
		},
	}, nil)
	if err != nil {
		return nil, a.translateError(err, "Failed to refund razorpay payment")
	}

	refundID, _ := refund["id"].(string)
	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: refundID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *razorpayAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) error {
	signature := headers["X-Razorpay-Signature"]

	secret := a.config.WebhookSecret
	if secret == "" {
		secret = a.config.KeySecret
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ierr.NewError("webhook signature verification failed").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrSignature)
	}
	return nil
}

type razorpayWebhookEvent struct {
	Entity    string `json:"entity"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity razorpayPaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
				Currency  string `json:"currency"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type razorpayPaymentEntity struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	OrderID          string            `json:"order_id"`
	Email            string            `json:"email"`
	Notes            map[string]string `json:"notes"`
	ErrorCode        string            `json:"error_code"`
	ErrorDescription string            `json:"error_description"`
}

// eventMetadata folds the payer email razorpay reports into the notes we
// attached at order creation.
func (p *razorpayPaymentEntity) eventMetadata() map[string]string {
	if len(p.Notes) == 0 && p.Email == "" {
		return nil
	}
	md := map[string]string{}
	for k, v := range p.Notes {
		md[k] = v
	}
	if p.Email != "" && md["email"] == "" {
		md["email"] = p.Email
	}
	return md
}

func (a *razorpayAdapter) ParseWebhookEvent(payload []byte) (*types.GatewayEvent, error) {
	var event razorpayWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrValidation)
	}

	out := &types.GatewayEvent{
		Gateway:    types.PaymentGatewayRazorpay,
		Type:       types.GatewayEventUnhandled,
		OccurredAt: time.Unix(event.CreatedAt, 0).UTC(),
	}

	pmt := event.Payload.Payment.Entity

	switch event.Event {
	case "payment.captured":
		out.Type = types.GatewayEventPaymentSucceeded
		out.ID = pmt.ID
		out.GatewayPaymentID = pmt.ID
		out.GatewayOrderID = pmt.OrderID
		out.Amount = fromMinorUnits(pmt.Amount)
		out.Currency = strings.ToLower(pmt.Currency)
		out.Metadata = pmt.eventMetadata()

	case "payment.failed":
		out.Type = types.GatewayEventPaymentFailed
		out.ID = pmt.ID
		out.GatewayPaymentID = pmt.ID
		out.GatewayOrderID = pmt.OrderID
		out.Amount = fromMinorUnits(pmt.Amount)
		out.Currency = strings.ToLower(pmt.Currency)
		out.Metadata = pmt.eventMetadata()
		out.FailureReason = pmt.ErrorDescription
		if out.FailureReason == "" {
			out.FailureReason = pmt.ErrorCode
		}

	case "refund.processed":
		ref := event.Payload.Refund.Entity
		out.Type = types.GatewayEventChargeRefunded
		out.ID = ref.ID
		out.GatewayPaymentID = ref.PaymentID
		out.Amount = fromMinorUnits(ref.Amount)
		out.Currency = strings.ToLower(ref.Currency)

	default:
		a.logger.Debugw("ignoring unhandled razorpay event", "event_type", event.Event)
	}

	return out, nil
}

func (a *razorpayAdapter) verifyPaymentSignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.config.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *razorpayAdapter) translateError(err error, hint string) error {
	// The SDK surfaces transport and API failures as opaque errors, so
	// anything that is not a clean decline is treated as reconcilable
	// via webhooks.
	msg := err.Error()
	if strings.Contains(msg, "BAD_REQUEST_ERROR") {
		return ierr.WithError(err).
			WithHint(hint).
			Mark(ierr.ErrGatewayDeclined)
	}
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrGatewayTransient)
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}
