package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/types"
)

var _ gateway.Adapter = (*FakeGatewayAdapter)(nil)

// FakeGatewayAdapter is a scriptable stand-in for a payment gateway.
// Each capability returns the queued result, or a generic success when
// nothing is scripted.
type FakeGatewayAdapter struct {
	mu sync.Mutex

	gw types.PaymentGateway

	CreateOrderResult *types.GatewayResult
	CreateOrderErr    error
	VerifyResult      *types.GatewayResult
	VerifyErr         error
	ChargeResult      *types.GatewayResult
	ChargeErr         error
	RefundResult      *types.GatewayResult
	RefundErr         error
	SignatureErr      error
	ParsedEvent       *types.GatewayEvent
	ParseErr          error

	// Call counters for asserting interaction counts
	CreateOrderCalls int
	VerifyCalls      int
	ChargeCalls      int
	RefundCalls      int

	counter int
}

func NewFakeGatewayAdapter(gw types.PaymentGateway) *FakeGatewayAdapter {
	return &FakeGatewayAdapter{gw: gw}
}

func (f *FakeGatewayAdapter) Gateway() types.PaymentGateway {
	return f.gw
}

func (f *FakeGatewayAdapter) nextRef(kind string) string {
	f.counter++
	return fmt.Sprintf("%s_%s_%d", kind, f.gw, f.counter)
}

func (f *FakeGatewayAdapter) CreateOrder(ctx context.Context, req *gateway.CreateOrderRequest) (*types.GatewayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateOrderCalls++
	if f.CreateOrderErr != nil {
		return nil, f.CreateOrderErr
	}
	if f.CreateOrderResult != nil {
		return f.CreateOrderResult, nil
	}
	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: f.nextRef("order"),
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (f *FakeGatewayAdapter) VerifyOrCapture(ctx context.Context, req *gateway.VerifyRequest) (*types.GatewayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.VerifyCalls++
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	if f.VerifyResult != nil {
		return f.VerifyResult, nil
	}
	ref := req.GatewayPaymentID
	if ref == "" {
		ref = f.nextRef("charge")
	}
	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: ref,
	}, nil
}

func (f *FakeGatewayAdapter) ChargeStoredMethod(ctx context.Context, req *gateway.ChargeRequest) (*types.GatewayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ChargeCalls++
	if f.ChargeErr != nil {
		return nil, f.ChargeErr
	}
	if f.ChargeResult != nil {
		return f.ChargeResult, nil
	}
	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: f.nextRef("charge"),
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (f *FakeGatewayAdapter) Refund(ctx context.Context, req *gateway.RefundRequest) (*types.GatewayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RefundCalls++
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	if f.RefundResult != nil {
		return f.RefundResult, nil
	}
	return &types.GatewayResult{
		Succeeded:        true,
		GatewayReference: f.nextRef("refund"),
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (f *FakeGatewayAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SignatureErr
}

func (f *FakeGatewayAdapter) ParseWebhookEvent(payload []byte) (*types.GatewayEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ParseErr != nil {
		return nil, f.ParseErr
	}
	if f.ParsedEvent != nil {
		return f.ParsedEvent, nil
	}

	// Payloads written by EncodeWebhookEvent round-trip as-is.
	var event types.GatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Webhook payload could not be parsed").
			Mark(ierr.ErrValidation)
	}
	if event.Type == "" {
		event.Type = types.GatewayEventUnhandled
	}
	event.Gateway = f.gw
	return &event, nil
}

// EncodeWebhookEvent serializes an event the way the fake adapter's
// ParseWebhookEvent expects it.
func EncodeWebhookEvent(event *types.GatewayEvent) []byte {
	b, _ := json.Marshal(event)
	return b
}
