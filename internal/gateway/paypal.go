package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/config"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/httpclient"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/types"
)

// paypalAdapter drives wallet payments through the PayPal Orders v2 API.
// PayPal has no public webhook signing key, so webhook authenticity is
// checked by calling verify-webhook-signature.
type paypalAdapter struct {
	client httpclient.Client
	config *config.PayPalConfig
	logger *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalAdapter(cfg *config.PayPalConfig, client httpclient.Client, log *logger.Logger) Adapter {
	return &paypalAdapter{
		client: client,
		config: cfg,
		logger: log,
	}
}

func (a *paypalAdapter) Gateway() types.PaymentGateway {
	return types.PaymentGatewayPayPal
}

// getAccessToken returns a cached OAuth token, refreshing it when it is
// within a minute of expiry.
func (a *paypalAdapter) getAccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(a.config.ClientID + ":" + a.config.ClientSecret))
	form := url.Values{"grant_type": {"client_credentials"}}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method: "POST",
		URL:    a.config.BaseURL + "/v1/oauth2/token",
		Headers: map[string]string{
			"Authorization": "Basic " + basic,
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return "", a.translateError(err, "Failed to authenticate with paypal")
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return "", ierr.WithError(err).
			WithHint("Malformed paypal token response").
			Mark(ierr.ErrGatewayTransient)
	}

	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func (a *paypalAdapter) send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	token, err := a.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to encode paypal request").
				Mark(ierr.ErrSystem)
		}
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method: method,
		URL:    a.config.BaseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		Body: payload,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string       `json:"reference_id"`
		Amount      paypalAmount `json:"amount"`
		Payments    struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (a *paypalAdapter) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*types.GatewayResult, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.PaymentReference,
			"custom_id":    req.PaymentID,
			"description":  req.Description,
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
		}},
	}

	respBody, err := a.send(ctx, "POST", "/v2/checkout/orders", body)
	if err != nil {
		return nil, a.translateError(err, "Failed to create paypal order")
	}

	var order paypalOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed paypal order response").
			Mark(ierr.ErrGatewayTransient)
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: order.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *paypalAdapter) VerifyOrCapture(ctx context.Context, req *VerifyRequest) (*types.GatewayResult, error) {
	// Capture settles the approved order server side. An already
	// captured order is fetched instead so retries stay safe.
	respBody, err := a.send(ctx, "POST", "/v2/checkout/orders/"+req.GatewayOrderID+"/capture", map[string]interface{}{})
	if err != nil {
		if _, ok := httpclient.IsHTTPError(err); ok {
			respBody, err = a.send(ctx, "GET", "/v2/checkout/orders/"+req.GatewayOrderID, nil)
		}
		if err != nil {
			return nil, a.translateError(err, "Failed to capture paypal order")
		}
	}

	var order paypalOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed paypal capture response").
			Mark(ierr.ErrGatewayTransient)
	}

	result := &types.GatewayResult{
		GatewayReference: order.ID,
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.Currency = strings.ToLower(unit.Amount.CurrencyCode)
		result.Amount, _ = decimal.NewFromString(unit.Amount.Value)
		if len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			result.GatewayReference = capture.ID
			result.Amount, _ = decimal.NewFromString(capture.Amount.Value)
			result.Currency = strings.ToLower(capture.Amount.CurrencyCode)
		}
	}

	if order.Status != "COMPLETED" {
		result.Succeeded = false
		result.FailureReason = "order status is " + order.Status
		return result, nil
	}

	result.Succeeded = true
	return result, nil
}

func (a *paypalAdapter) ChargeStoredMethod(ctx context.Context, req *ChargeRequest) (*types.GatewayResult, error) {
	// Charges a vaulted payment token through Orders v2.
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"custom_id":   req.PaymentID,
			"description": req.Description,
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
		}},
		"payment_source": map[string]interface{}{
			"token": map[string]interface{}{
				"id":   req.PaymentMethodID,
				"type": "PAYMENT_METHOD_TOKEN",
			},
		},
	}

	respBody, err := a.send(ctx, "POST", "/v2/checkout/orders", body)
	if err != nil {
		return nil, a.translateError(err, "Failed to charge paypal payment token")
	}

	var order paypalOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed paypal order response").
			Mark(ierr.ErrGatewayTransient)
	}

	if order.Status != "COMPLETED" {
		return &types.GatewayResult{
			Succeeded:        false,
			GatewayReference: order.ID,
			FailureReason:    "order status is " + order.Status,
			Amount:           req.Amount,
			Currency:         req.Currency,
		}, nil
	}

	reference := order.ID
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		reference = order.PurchaseUnits[0].Payments.Captures[0].ID
	}

	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: reference,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *paypalAdapter) Refund(ctx context.Context, req *RefundRequest) (*types.GatewayResult, error) {
	body := map[string]interface{}{
		"amount": paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        req.Amount.StringFixed(2),
		},
		"note_to_payer": req.Reason,
	}

	respBody, err := a.send(ctx, "POST", "/v2/payments/captures/"+req.GatewayPaymentID+"/refund", body)
	if err != nil {
		return nil, a.translateError(err, "Failed to refund paypal capture")
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &refund); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed paypal refund response").
			Mark(ierr.ErrGatewayTransient)
	}

	return &types.GatewayResult{
		Succeeded:        refund.Status == "COMPLETED" || refund.Status == "PENDING",
		GatewayReference: refund.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (a *paypalAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) error {
	body := map[string]interface{}{
		"auth_algo":         headers["Paypal-Auth-Algo"],
		"cert_url":          headers["Paypal-Cert-Url"],
		"transmission_id":   headers["Paypal-Transmission-Id"],
		"transmission_sig":  headers["Paypal-Transmission-Sig"],
		"transmission_time": headers["Paypal-Transmission-Time"],
		"webhook_id":        a.config.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	respBody, err := a.send(context.Background(), "POST", "/v1/notifications/verify-webhook-signature", body)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to verify paypal webhook signature").
			Mark(ierr.ErrSignature)
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.VerificationStatus != "SUCCESS" {
		return ierr.NewError("webhook signature verification failed").
			WithHint("Invalid webhook signature").
			Mark(ierr.ErrSignature)
	}
	return nil
}

type paypalWebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	CreateTime   time.Time       `json:"create_time"`
	Resource     json.RawMessage `json:"resource"`
	ResourceType string          `json:"resource_type"`
}

func (a *paypalAdapter) ParseWebhookEvent(payload []byte) (*types.GatewayEvent, error) {
	var event paypalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrValidation)
	}

	out := &types.GatewayEvent{
		ID:         event.ID,
		Gateway:    types.PaymentGatewayPayPal,
		Type:       types.GatewayEventUnhandled,
		OccurredAt: event.CreateTime.UTC(),
	}

	var resource struct {
		ID               string       `json:"id"`
		Status           string       `json:"status"`
		CustomID         string       `json:"custom_id"`
		Amount           paypalAmount `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	}
	if err := json.Unmarshal(event.Resource, &resource); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook resource").
			Mark(ierr.ErrValidation)
	}

	out.GatewayPaymentID = resource.ID
	out.GatewayOrderID = resource.SupplementaryData.RelatedIDs.OrderID
	out.Amount, _ = decimal.NewFromString(resource.Amount.Value)
	out.Currency = strings.ToLower(resource.Amount.CurrencyCode)
	if resource.CustomID != "" {
		// PayPal carries a single custom value, the payment id we set at
		// order creation.
		out.Metadata = map[string]string{"payment_id": resource.CustomID}
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Type = types.GatewayEventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		out.Type = types.GatewayEventPaymentFailed
		out.FailureReason = "capture " + strings.ToLower(resource.Status)
	case "PAYMENT.CAPTURE.REFUNDED":
		out.Type = types.GatewayEventChargeRefunded
	default:
		a.logger.Debugw("ignoring unhandled paypal event", "event_type", event.EventType)
	}

	return out, nil
}

func (a *paypalAdapter) translateError(err error, hint string) error {
	var httpErr *httpclient.Error
	if ierr.As(err, &httpErr) {
		builder := ierr.WithError(err).
			WithHint(hint).
			WithReportableDetails(map[string]any{
				"status_code": httpErr.StatusCode,
			})
		if httpErr.Transient() {
			return builder.Mark(ierr.ErrGatewayTransient)
		}
		if httpErr.StatusCode == 422 {
			return builder.Mark(ierr.ErrGatewayDeclined)
		}
		return builder.Mark(ierr.ErrInvalidOperation)
	}
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrGatewayTransient)
}
