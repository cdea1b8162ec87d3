package service

import (
	"context"
	"fmt"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/types"
)

// AutoPayService charges stored payment methods for subscriptions whose
// period ends within the lead window. Each charge carries an idempotency
// key derived from the subscription and period, so a crashed or repeated
// sweep never double-charges.
type AutoPayService interface {
	ProcessDueSubscriptions(ctx context.Context, now time.Time) error

	// ChargeSubscription runs one renewal charge. Exposed for the admin
	// surface to retry a specific subscription out of band.
	ChargeSubscription(ctx context.Context, subscriptionID string) error
}

type autoPayService struct {
	ServiceParams
	subSvc SubscriptionService
}

func NewAutoPayService(params ServiceParams) AutoPayService {
	return &autoPayService{
		ServiceParams: params,
		subSvc:        NewSubscriptionService(params),
	}
}

func (s *autoPayService) ProcessDueSubscriptions(ctx context.Context, now time.Time) error {
	cutoff := now.Add(s.Config.Billing.AutoPayLeadWindow)
	subs, err := s.SubRepo.ListDueForRenewal(ctx, cutoff)
	if err != nil {
		return err
	}

	s.Logger.Infow("autopay sweep", "due", len(subs), "cutoff", cutoff)

	for _, sub := range subs {
		// One bad subscription never stalls the sweep.
		if err := s.chargeOne(ctx, sub, now); err != nil {
			s.Logger.Errorw("autopay charge failed",
				"subscription_id", sub.ID,
				"error", err)
		}
	}
	return nil
}

func (s *autoPayService) ChargeSubscription(ctx context.Context, subscriptionID string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.chargeOne(ctx, sub, time.Now().UTC())
}

func (s *autoPayService) chargeOne(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	ctx = types.SetTenantID(ctx, sub.TenantID)

	if !sub.AutoPayEnabled || sub.IsCancelled() || sub.CancelAtPeriodEnd {
		return nil
	}
	if sub.PaymentMethodID == nil {
		s.Logger.Warnw("autopay enabled without a stored method",
			"subscription_id", sub.ID)
		return nil
	}

	// The key pins the charge to this subscription and period. A repeat
	// sweep for the same period finds the existing payment and stops.
	idempotencyKey := renewalIdempotencyKey(sub)
	if existing, err := s.PaymentRepo.GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
		return s.resumeExisting(ctx, sub, existing, now)
	} else if !ierr.IsNotFound(err) {
		return err
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	price, err := p.PriceFor(sub.BillingCycle, sub.Currency)
	if err != nil {
		return err
	}

	pmt := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentReference: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT_REFERENCE),
		IdempotencyKey:   &idempotencyKey,
		Gateway:          sub.Gateway,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         sub.Currency,
		Amount:           price,
		Metadata: types.Metadata{
			"subscription_id": sub.ID,
			"period_end":      sub.CurrentPeriodEnd.Format(time.RFC3339),
		},
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentRepo.Create(ctx, pmt); err != nil {
		// A concurrent sweep created the payment between our lookup and
		// insert; that sweep owns the charge.
		if ierr.IsAlreadyExists(err) {
			s.Logger.Debugw("renewal charge already in flight",
				"subscription_id", sub.ID,
				"idempotency_key", idempotencyKey)
			return nil
		}
		return err
	}

	return s.issueCharge(ctx, sub, pmt, now)
}

// issueCharge runs the gateway charge for a renewal payment and applies
// the outcome. Re-issuing for the same payment is safe: the idempotency
// key pins the charge on the gateway side.
func (s *autoPayService) issueCharge(ctx context.Context, sub *subscription.Subscription, pmt *payment.Payment, now time.Time) error {
	adapter, err := s.Gateways.Get(sub.Gateway)
	if err != nil {
		return err
	}

	chargeCtx := ctx
	if s.Config.Gateways.Timeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, s.Config.Gateways.Timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := adapter.ChargeStoredMethod(chargeCtx, &gateway.ChargeRequest{
		PaymentID:         pmt.ID,
		Amount:            pmt.Amount,
		Currency:          pmt.Currency,
		GatewayCustomerID: derefOr(sub.GatewayCustomerID, ""),
		PaymentMethodID:   derefOr(sub.PaymentMethodID, ""),
		IdempotencyKey:    derefOr(pmt.IdempotencyKey, ""),
		Description:       fmt.Sprintf("Renewal for subscription %s", sub.ID),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"payment_id":      pmt.ID,
		},
	})
	if err != nil {
		// The outcome is unknown on timeouts and gateway errors. The
		// payment stays pending for the webhook to settle; a later sweep
		// re-issues the charge once the retry delay passes.
		s.logCharge(ctx, pmt, types.PaymentLogActionGatewayTimeout, types.PaymentLogStatusFailure, "", err, started)
		s.touchAttempt(ctx, pmt, now)
		return err
	}

	if !result.Succeeded {
		if result.Transient {
			// Declined but retriable. Stamp the attempt so the next sweep
			// waits out the retry delay before charging again.
			s.logCharge(ctx, pmt, types.PaymentLogActionCharge, types.PaymentLogStatusFailure, result.FailureReason, nil, started)
			s.touchAttempt(ctx, pmt, now)
			return nil
		}

		s.logCharge(ctx, pmt, types.PaymentLogActionCharge, types.PaymentLogStatusFailure, result.FailureReason, nil, started)
		if _, terr := pmt.TransitionTo(types.PaymentStatusFailed, now); terr == nil {
			pmt.FailureReason = &result.FailureReason
			if result.GatewayReference != "" {
				pmt.GatewayPaymentID = &result.GatewayReference
			}
			if uerr := s.PaymentRepo.Update(ctx, pmt); uerr != nil {
				return uerr
			}
		}
		return s.subSvc.ProcessRenewalFailure(ctx, sub.ID, result.FailureReason)
	}

	s.logCharge(ctx, pmt, types.PaymentLogActionCharge, types.PaymentLogStatusSuccess, "", nil, started)

	if _, terr := pmt.TransitionTo(types.PaymentStatusSucceeded, now); terr == nil {
		if result.GatewayReference != "" {
			pmt.GatewayPaymentID = &result.GatewayReference
		}
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return err
		}
	}

	return s.subSvc.ProcessRenewalSuccess(ctx, sub.ID, &pmt.ID)
}

// resumeExisting finishes a renewal whose charge landed but whose ledger
// work was interrupted, and re-issues charges that never resolved.
func (s *autoPayService) resumeExisting(ctx context.Context, sub *subscription.Subscription, pmt *payment.Payment, now time.Time) error {
	switch pmt.PaymentStatus {
	case types.PaymentStatusPending:
		// The outcome of the last attempt may still arrive by webhook.
		// Once the retry delay passes without one, the charge is re-issued
		// under the same idempotency key.
		if now.Sub(pmt.UpdatedAt) < s.Config.Billing.AutoPayRetryDelay {
			s.Logger.Debugw("renewal charge still pending",
				"subscription_id", sub.ID,
				"payment_id", pmt.ID)
			return nil
		}
		return s.issueCharge(ctx, sub, pmt, now)
	case types.PaymentStatusSucceeded:
		if pmt.InvoiceID == nil {
			return s.subSvc.ProcessRenewalSuccess(ctx, sub.ID, nil)
		}
		return nil
	default:
		return nil
	}
}

// touchAttempt stamps the payment so the retry delay counts from the
// latest attempt rather than from creation.
func (s *autoPayService) touchAttempt(ctx context.Context, pmt *payment.Payment, now time.Time) {
	pmt.UpdatedAt = now
	if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
		s.Logger.Errorw("failed to stamp charge attempt",
			"payment_id", pmt.ID,
			"error", err)
	}
}

// logCharge appends the charge attempt to the payment audit trail.
// Logging never fails the charge it describes.
func (s *autoPayService) logCharge(ctx context.Context, pmt *payment.Payment, action types.PaymentLogAction, status types.PaymentLogStatus, failureReason string, callErr error, started time.Time) {
	var errMsg *string
	if callErr != nil {
		msg := callErr.Error()
		errMsg = &msg
	}

	var response types.Metadata
	if failureReason != "" {
		response = types.Metadata{"failure_reason": failureReason}
	}

	entry := &paymentlog.Log{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_LOG),
		PaymentID:    &pmt.ID,
		Gateway:      pmt.Gateway,
		Action:       action,
		Status:       status,
		Request:      types.Metadata{"idempotency_key": derefOr(pmt.IdempotencyKey, "")},
		Response:     response,
		ErrorMessage: errMsg,
		DurationMs:   time.Since(started).Milliseconds(),
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentLogRepo.Create(ctx, entry); err != nil {
		s.Logger.Errorw("failed to write payment log",
			"action", action,
			"payment_id", pmt.ID,
			"error", err)
	}
}

func renewalIdempotencyKey(sub *subscription.Subscription) string {
	return fmt.Sprintf("renewal-%s-%d", sub.ID, sub.CurrentPeriodEnd.Unix())
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
