package service

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/types"
)

// ReconcilerService applies gateway webhook events to the local ledger.
// Events correlate to local rows only through stored gateway references;
// an event that matches nothing is logged as an orphan and acknowledged
// so the gateway stops retrying a delivery we can never place.
type ReconcilerService interface {
	ProcessWebhook(ctx context.Context, gw types.PaymentGateway, payload []byte, headers map[string]string) error
}

type reconcilerService struct {
	ServiceParams
	pay    *paymentService
	subSvc SubscriptionService
}

func NewReconcilerService(params ServiceParams) ReconcilerService {
	return &reconcilerService{
		ServiceParams: params,
		pay:           NewPaymentService(params).(*paymentService),
		subSvc:        NewSubscriptionService(params),
	}
}

func (s *reconcilerService) ProcessWebhook(ctx context.Context, gw types.PaymentGateway, payload []byte, headers map[string]string) error {
	adapter, err := s.Gateways.Get(gw)
	if err != nil {
		return err
	}

	// Nothing in the payload is trusted before the signature checks out.
	if err := adapter.VerifyWebhookSignature(payload, headers); err != nil {
		s.Logger.Warnw("webhook signature verification failed",
			"gateway", gw,
			"error", err)
		return err
	}

	event, err := adapter.ParseWebhookEvent(payload)
	if err != nil {
		return err
	}

	s.Logger.Debugw("webhook event received",
		"gateway", gw,
		"event_id", event.ID,
		"event_type", event.Type)

	switch event.Type {
	case types.GatewayEventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case types.GatewayEventPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case types.GatewayEventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case types.GatewayEventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	case types.GatewayEventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case types.GatewayEventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case types.GatewayEventChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	default:
		s.Logger.Debugw("webhook event ignored",
			"gateway", gw,
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}
}

func (s *reconcilerService) handlePaymentSucceeded(ctx context.Context, event *types.GatewayEvent) error {
	pmt, err := s.correlatePayment(ctx, event)
	if err != nil || pmt == nil {
		return err
	}
	ctx = types.SetTenantID(ctx, pmt.TenantID)

	// A verify call or an earlier delivery may have settled this already.
	if pmt.PaymentStatus == types.PaymentStatusSucceeded {
		s.Logger.Debugw("duplicate payment success delivery",
			"payment_id", pmt.ID,
			"event_id", event.ID)
		return nil
	}
	if pmt.PaymentStatus != types.PaymentStatusPending {
		s.Logger.Warnw("success event for non-pending payment",
			"payment_id", pmt.ID,
			"payment_status", pmt.PaymentStatus,
			"event_id", event.ID)
		return nil
	}

	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if pmt.InvoiceID != nil {
		return s.pay.settleInvoicePayment(ctx, pmt, event.GatewayPaymentID, now)
	}
	return s.pay.settleRegistrationPayment(ctx, pmt, event.GatewayPaymentID, now)
}

func (s *reconcilerService) handlePaymentFailed(ctx context.Context, event *types.GatewayEvent) error {
	pmt, err := s.correlatePayment(ctx, event)
	if err != nil || pmt == nil {
		return err
	}
	ctx = types.SetTenantID(ctx, pmt.TenantID)

	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	changed, err := pmt.TransitionTo(types.PaymentStatusFailed, now)
	if err != nil {
		// A success already landed for this payment; the late failure
		// delivery is stale, not an inconsistency.
		s.Logger.Warnw("ignoring stale payment failure delivery",
			"payment_id", pmt.ID,
			"payment_status", pmt.PaymentStatus,
			"event_id", event.ID)
		return nil
	}
	if !changed {
		return nil
	}

	if event.FailureReason != "" {
		pmt.FailureReason = &event.FailureReason
	}
	if event.GatewayPaymentID != "" {
		pmt.GatewayPaymentID = &event.GatewayPaymentID
	}
	if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
		return err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:      notification.KindPaymentFailed,
		TenantID:  pmt.TenantID,
		PaymentID: pmt.ID,
		Data:      map[string]string{"reason": event.FailureReason},
	})
	return nil
}

func (s *reconcilerService) handleInvoicePaid(ctx context.Context, event *types.GatewayEvent) error {
	if event.GatewayInvoiceID == "" {
		return s.logOrphan(ctx, event, "event carries no invoice reference")
	}

	inv, err := s.InvoiceRepo.GetByGatewayInvoiceID(ctx, event.GatewayInvoiceID)
	if ierr.IsNotFound(err) {
		return s.logOrphan(ctx, event, "no invoice matches gateway reference")
	}
	if err != nil {
		return err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if !inv.MarkPaid(now) {
		s.Logger.Debugw("duplicate invoice paid delivery",
			"invoice_id", inv.ID,
			"event_id", event.ID)
		return nil
	}
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return err
	}

	if inv.SubscriptionID != nil {
		sub, err := s.SubRepo.Get(ctx, *inv.SubscriptionID)
		if err != nil {
			return err
		}
		if inv.PeriodStart != nil && inv.PeriodStart.Equal(sub.CurrentPeriodEnd) {
			return s.subSvc.ProcessRenewalSuccess(ctx, sub.ID, nil)
		}
		if inv.PeriodStart != nil && inv.PeriodStart.Equal(sub.CurrentPeriodStart) {
			return s.subSvc.ActivateOnFirstPayment(ctx, sub.ID)
		}
	}
	return nil
}

func (s *reconcilerService) handleInvoicePaymentFailed(ctx context.Context, event *types.GatewayEvent) error {
	if event.GatewaySubscriptionID != "" {
		sub, err := s.SubRepo.GetByGatewaySubscriptionID(ctx, event.GatewaySubscriptionID)
		if ierr.IsNotFound(err) {
			return s.logOrphan(ctx, event, "no subscription matches gateway reference")
		}
		if err != nil {
			return err
		}
		ctx = types.SetTenantID(ctx, sub.TenantID)
		return s.subSvc.ProcessRenewalFailure(ctx, sub.ID, event.FailureReason)
	}

	if event.GatewayInvoiceID != "" {
		inv, err := s.InvoiceRepo.GetByGatewayInvoiceID(ctx, event.GatewayInvoiceID)
		if ierr.IsNotFound(err) {
			return s.logOrphan(ctx, event, "no invoice matches gateway reference")
		}
		if err != nil {
			return err
		}
		if inv.SubscriptionID == nil {
			return nil
		}
		ctx = types.SetTenantID(ctx, inv.TenantID)
		return s.subSvc.ProcessRenewalFailure(ctx, *inv.SubscriptionID, event.FailureReason)
	}

	return s.logOrphan(ctx, event, "event carries no correlatable reference")
}

func (s *reconcilerService) handleSubscriptionDeleted(ctx context.Context, event *types.GatewayEvent) error {
	sub, err := s.SubRepo.GetByGatewaySubscriptionID(ctx, event.GatewaySubscriptionID)
	if ierr.IsNotFound(err) {
		return s.logOrphan(ctx, event, "no subscription matches gateway reference")
	}
	if err != nil {
		return err
	}
	if sub.IsCancelled() {
		return nil
	}
	ctx = types.SetTenantID(ctx, sub.TenantID)

	_, err = s.subSvc.CancelSubscription(ctx, sub.ID, &dto.CancelSubscriptionRequest{
		Reason: "cancelled at gateway",
	})
	return err
}

func (s *reconcilerService) handleSubscriptionUpdated(ctx context.Context, event *types.GatewayEvent) error {
	sub, err := s.SubRepo.GetByGatewaySubscriptionID(ctx, event.GatewaySubscriptionID)
	if ierr.IsNotFound(err) {
		return s.logOrphan(ctx, event, "no subscription matches gateway reference")
	}
	if err != nil {
		return err
	}

	// Local state is authoritative; the update is recorded for operators
	// but drives no transition.
	s.Logger.Infow("gateway subscription updated",
		"subscription_id", sub.ID,
		"gateway", event.Gateway,
		"event_id", event.ID)
	return nil
}

func (s *reconcilerService) handleChargeRefunded(ctx context.Context, event *types.GatewayEvent) error {
	if event.GatewayPaymentID == "" {
		return s.logOrphan(ctx, event, "event carries no payment reference")
	}

	pmt, err := s.PaymentRepo.GetByGatewayPaymentID(ctx, event.GatewayPaymentID)
	if ierr.IsNotFound(err) {
		return s.logOrphan(ctx, event, "no payment matches gateway reference")
	}
	if err != nil {
		return err
	}
	ctx = types.SetTenantID(ctx, pmt.TenantID)

	if pmt.PaymentStatus == types.PaymentStatusRefunded {
		return nil
	}

	amount := event.Amount
	if !amount.IsPositive() || amount.GreaterThan(pmt.RefundableAmount()) {
		// A refund issued through our own API already moved the amounts;
		// the webhook echo carries nothing left to apply.
		s.Logger.Debugw("refund delivery already applied",
			"payment_id", pmt.ID,
			"event_id", event.ID)
		return nil
	}

	now := event.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		pmt.AmountRefunded = pmt.AmountRefunded.Add(amount)
		target := types.PaymentStatusPartiallyRefunded
		if pmt.AmountRefunded.Equal(pmt.Amount) {
			target = types.PaymentStatusRefunded
		}
		if _, err := pmt.TransitionTo(target, now); err != nil {
			return err
		}
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return err
		}

		var gatewayRefundID *string
		if event.ID != "" {
			gatewayRefundID = &event.ID
		}
		return s.PaymentRepo.CreateRefund(ctx, &payment.Refund{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_REFUND),
			PaymentID:       pmt.ID,
			Amount:          amount,
			Currency:        pmt.Currency,
			GatewayRefundID: gatewayRefundID,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		})
	})
}

// correlatePayment resolves the local payment row for a payment-level
// event, logging an orphan when nothing matches.
func (s *reconcilerService) correlatePayment(ctx context.Context, event *types.GatewayEvent) (*payment.Payment, error) {
	if event.GatewayOrderID != "" {
		pmt, err := s.PaymentRepo.GetByGatewayOrderID(ctx, event.GatewayOrderID)
		if err == nil {
			return pmt, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}
	if event.GatewayPaymentID != "" {
		pmt, err := s.PaymentRepo.GetByGatewayPaymentID(ctx, event.GatewayPaymentID)
		if err == nil {
			return pmt, nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, s.logOrphan(ctx, event, "no payment matches gateway references")
}

// logOrphan records an uncorrelatable event in the audit trail. The
// delivery is acknowledged; operators chase orphans from the log. The
// entry carries the amount and whatever buyer email and intended plan
// the gateway echoed back, so the charge can be backfilled by hand.
func (s *reconcilerService) logOrphan(ctx context.Context, event *types.GatewayEvent, detail string) error {
	s.Logger.Warnw("orphaned webhook event",
		"gateway", event.Gateway,
		"event_id", event.ID,
		"event_type", event.Type,
		"amount", event.Amount,
		"currency", event.Currency,
		"detail", detail)

	meta := types.Metadata{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"detail":     detail,
		"amount":     event.Amount.String(),
	}
	if event.Currency != "" {
		meta["currency"] = event.Currency
	}
	if event.GatewayOrderID != "" {
		meta["gateway_order_id"] = event.GatewayOrderID
	}
	if event.GatewayPaymentID != "" {
		meta["gateway_payment_id"] = event.GatewayPaymentID
	}
	if event.GatewayInvoiceID != "" {
		meta["gateway_invoice_id"] = event.GatewayInvoiceID
	}
	if event.GatewaySubscriptionID != "" {
		meta["gateway_subscription_id"] = event.GatewaySubscriptionID
	}
	if email := event.Metadata["email"]; email != "" {
		meta["email"] = email
	}
	if planID := event.Metadata["plan_id"]; planID != "" {
		meta["plan_id"] = planID
	}

	var ref *string
	if event.GatewayPaymentID != "" {
		ref = &event.GatewayPaymentID
	}

	s.pay.logGateway(ctx, nil, event.Gateway, types.PaymentLogActionOrphanedPayment,
		types.PaymentLogStatusSkipped, ref, meta, nil, nil, time.Now())
	return nil
}
