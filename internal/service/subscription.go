package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/types"
)

// SubscriptionService is the single writer of subscription status and
// period bounds. Every transition appends exactly one history entry.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	GetActiveSubscription(ctx context.Context) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error)
	GetHistory(ctx context.Context, id string) (*dto.SubscriptionHistoryResponse, error)

	CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	ReactivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	ChangePlan(ctx context.Context, id string, req *dto.ChangePlanRequest) (*dto.SubscriptionResponse, error)

	GetAutoPayStatus(ctx context.Context, id string) (*dto.AutoPayStatusResponse, error)
	UpdateAutoPay(ctx context.Context, id string, req *dto.UpdateAutoPayRequest) (*dto.AutoPayStatusResponse, error)

	// ProcessRenewalSuccess advances the period bounds by exactly one
	// cycle and issues the paid invoice. The version CAS guards against
	// a concurrent renewal of the same period; a conflict means the work
	// is already done and is not an error.
	ProcessRenewalSuccess(ctx context.Context, subscriptionID string, paymentID *string) error

	// ProcessRenewalFailure moves the subscription to past_due. Repeat
	// failures in the same period are no-ops with no history entry.
	ProcessRenewalFailure(ctx context.Context, subscriptionID string, reason string) error

	// ProcessBillingBoundaries sweeps subscriptions past a boundary:
	// trial expiry, scheduled cancellation, and grace-window expiry.
	ProcessBillingBoundaries(ctx context.Context, now time.Time) error

	// ActivateOnFirstPayment moves a subscription waiting on its opening
	// invoice into active. A no-op on any other state.
	ActivateOnFirstPayment(ctx context.Context, subscriptionID string) error
}

type subscriptionService struct {
	ServiceParams
	couponSvc CouponService
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		couponSvc:     NewCouponService(params),
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	if existing, err := s.SubRepo.GetActiveByTenant(ctx, tenantID); err == nil && existing != nil {
		return nil, ierr.NewError("tenant already has a subscription").
			WithHint("Cancel the current subscription before creating a new one").
			WithReportableDetails(map[string]any{"subscription_id": existing.ID}).
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ierr.NewError("plan is not active").
			WithHintf("Plan %s is not open for new subscriptions", p.ID).
			Mark(ierr.ErrInvalidOperation)
	}

	currency := req.Currency
	if currency == "" {
		currency = p.Currency
	}
	price, err := p.PriceFor(req.BillingCycle, currency)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	periodEnd, err := types.NextBillingDate(now, req.BillingCycle)
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:             p.ID,
		BillingCycle:       req.BillingCycle,
		Currency:           currency,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		AutoPayEnabled:     req.AutoPayEnabled,
		Gateway:            req.Gateway,
		PaymentMethodID:    req.PaymentMethodID,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	trial := req.StartTrial && p.TrialDays > 0
	eventType := types.SubscriptionEventCreated
	if trial {
		trialEnd := now.AddDate(0, 0, p.TrialDays)
		sub.SubscriptionStatus = types.SubscriptionStatusTrialing
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
		// The trial is the first period; billing starts when it ends.
		sub.CurrentPeriodEnd = trialEnd
		eventType = types.SubscriptionEventTrialStarted
	} else {
		// A paid start opens the first-period invoice and holds the
		// subscription out of active until it settles.
		sub.SubscriptionStatus = types.SubscriptionStatusPastDue
	}

	discount := decimal.Zero
	couponCode := ""
	if req.CouponCode != nil && *req.CouponCode != "" {
		if trial {
			return nil, ierr.NewError("coupon cannot apply to a trial").
				WithHint("Coupons discount the first invoice; a trial has none").
				Mark(ierr.ErrValidation)
		}
		check, err := s.couponSvc.ValidateCoupon(ctx, *req.CouponCode, price)
		if err != nil {
			return nil, err
		}
		if !check.Valid {
			return nil, ierr.NewError("coupon is not valid").
				WithHint(check.Reason).
				Mark(ierr.ErrValidation)
		}
		discount = check.Discount
		couponCode = *req.CouponCode
	}

	var inv *invoice.Invoice
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}

		if !trial {
			number, err := s.InvoiceRepo.NextInvoiceNumber(ctx)
			if err != nil {
				return err
			}
			total := price.Sub(discount)
			inv = &invoice.Invoice{
				ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
				SubscriptionID: &sub.ID,
				InvoiceNumber:  number,
				InvoiceStatus:  types.InvoiceStatusOpen,
				Currency:       currency,
				Subtotal:       price,
				Tax:            decimal.Zero,
				Discount:       discount,
				Total:          total,
				AmountPaid:     decimal.Zero,
				AmountDue:      total,
				PeriodStart:    &sub.CurrentPeriodStart,
				PeriodEnd:      &sub.CurrentPeriodEnd,
				BaseModel:      types.GetDefaultBaseModel(ctx),
			}
			if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
				return err
			}
			if couponCode != "" {
				if _, err := s.couponSvc.RedeemCoupon(ctx, couponCode, price, &sub.ID, &inv.ID); err != nil {
					return err
				}
			}
		}

		return s.appendHistory(ctx, sub, eventType, "", sub.SubscriptionStatus, nil, lo.ToPtr(sub.PlanID), "subscription created")
	})
	if err != nil {
		return nil, err
	}

	// With a stored method the opening charge happens inline; otherwise
	// the tenant settles the invoice through checkout.
	if inv != nil && sub.PaymentMethodID != nil {
		if err := s.chargeFirstInvoice(ctx, sub, inv, now); err != nil {
			s.Logger.Warnw("opening charge did not settle",
				"subscription_id", sub.ID,
				"invoice_id", inv.ID,
				"error", err)
		}
	}

	s.Logger.Infow("subscription created",
		"subscription_id", sub.ID,
		"plan_id", p.ID,
		"status", sub.SubscriptionStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

// chargeFirstInvoice runs the opening charge against the stored method.
// The subscription activates only when the invoice settles; a declined or
// unresolved charge leaves it waiting on checkout.
func (s *subscriptionService) chargeFirstInvoice(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, now time.Time) error {
	adapter, err := s.Gateways.Get(sub.Gateway)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("initial-%s", sub.ID)
	pmt := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentReference: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT_REFERENCE),
		InvoiceID:        &inv.ID,
		IdempotencyKey:   &key,
		Gateway:          sub.Gateway,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         inv.Currency,
		Amount:           inv.Total,
		Metadata:         types.Metadata{"subscription_id": sub.ID},
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentRepo.Create(ctx, pmt); err != nil {
		return err
	}

	result, err := adapter.ChargeStoredMethod(ctx, &gateway.ChargeRequest{
		PaymentID:         pmt.ID,
		Amount:            pmt.Amount,
		Currency:          pmt.Currency,
		GatewayCustomerID: derefOr(sub.GatewayCustomerID, ""),
		PaymentMethodID:   *sub.PaymentMethodID,
		IdempotencyKey:    key,
		Description:       fmt.Sprintf("Opening invoice for subscription %s", sub.ID),
	})
	if err != nil {
		// Outcome unknown; a checkout verification or webhook settles it.
		return err
	}

	if !result.Succeeded {
		if _, terr := pmt.TransitionTo(types.PaymentStatusFailed, now); terr == nil {
			pmt.FailureReason = &result.FailureReason
			if result.GatewayReference != "" {
				pmt.GatewayPaymentID = &result.GatewayReference
			}
			if uerr := s.PaymentRepo.Update(ctx, pmt); uerr != nil {
				return uerr
			}
		}
		s.Notifier.Notify(ctx, &notification.Notification{
			Kind:           notification.KindPaymentFailed,
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
		})
		return ierr.NewError("opening charge declined").
			WithHint(result.FailureReason).
			Mark(ierr.ErrGatewayDeclined)
	}

	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if _, err := pmt.TransitionTo(types.PaymentStatusSucceeded, now); err != nil {
			return err
		}
		if result.GatewayReference != "" {
			pmt.GatewayPaymentID = &result.GatewayReference
		}
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return err
		}
		if inv.MarkPaid(now) {
			if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
				return err
			}
		}
		return s.activate(ctx, sub)
	})
}

func (s *subscriptionService) ActivateOnFirstPayment(ctx context.Context, subscriptionID string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.SubscriptionStatus != types.SubscriptionStatusPastDue {
		return nil
	}
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.activate(ctx, sub)
	})
}

func (s *subscriptionService) activate(ctx context.Context, sub *subscription.Subscription) error {
	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	return s.appendHistory(ctx, sub, types.SubscriptionEventActivated,
		from, types.SubscriptionStatusActive, nil, nil, "first invoice settled")
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) GetActiveSubscription(ctx context.Context) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.GetActiveByTenant(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, filter *types.SubscriptionFilter) (*dto.ListSubscriptionsResponse, error) {
	if filter == nil {
		filter = &types.SubscriptionFilter{Filter: types.GetDefaultFilter()}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	subs, err := s.SubRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.SubRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListSubscriptionsResponse{
		Items: lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
			return &dto.SubscriptionResponse{Subscription: sub}
		}),
		Pagination: types.NewPaginationResponse(count, filter.Limit, filter.Offset),
	}, nil
}

func (s *subscriptionService) GetHistory(ctx context.Context, id string) (*dto.SubscriptionHistoryResponse, error) {
	entries, err := s.SubRepo.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionHistoryResponse{Items: entries}, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, ierr.NewError("subscription already cancelled").
			WithHint("The subscription is already cancelled").
			Mark(ierr.ErrInvalidOperation)
	}

	now := time.Now().UTC()
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by user"
	}

	if req.AtPeriodEnd {
		// Access continues to the period boundary; the sweep finalizes.
		sub.CancelAtPeriodEnd = true
		sub.CancelAt = &sub.CurrentPeriodEnd
		err = s.DB.WithTx(ctx, func(ctx context.Context) error {
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
			return s.appendHistory(ctx, sub, types.SubscriptionEventCancelScheduled,
				sub.SubscriptionStatus, sub.SubscriptionStatus, nil, nil, reason)
		})
		if err != nil {
			return nil, err
		}
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	fromStatus := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.CancelAtPeriodEnd = false
	sub.CancelAt = nil

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendHistory(ctx, sub, types.SubscriptionEventCancelled,
			fromStatus, sub.SubscriptionStatus, nil, nil, reason)
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:           notification.KindSubscriptionCancelled,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
	})

	s.Logger.Infow("subscription cancelled", "subscription_id", sub.ID, "from_status", fromStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ReactivateSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Reactivation only undoes a pending cancellation. A terminal
	// subscription needs a fresh signup.
	if sub.IsCancelled() {
		return nil, ierr.NewError("subscription is cancelled").
			WithHint("A cancelled subscription cannot be reactivated; create a new one").
			Mark(ierr.ErrInvalidOperation)
	}
	if !sub.CancelAtPeriodEnd {
		return nil, ierr.NewError("no pending cancellation").
			WithHint("The subscription has no scheduled cancellation to revoke").
			Mark(ierr.ErrInvalidOperation)
	}

	sub.CancelAtPeriodEnd = false
	sub.CancelAt = nil

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendHistory(ctx, sub, types.SubscriptionEventReactivated,
			sub.SubscriptionStatus, sub.SubscriptionStatus, nil, nil, "scheduled cancellation revoked")
	})
	if err != nil {
		return nil, err
	}

	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, id string, req *dto.ChangePlanRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, ierr.NewError("subscription is cancelled").
			WithHint("A cancelled subscription cannot change plans").
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.PlanID == req.PlanID && sub.BillingCycle == req.BillingCycle {
		return nil, ierr.NewError("subscription already on this plan").
			WithHint("The subscription is already on the requested plan and cycle").
			Mark(ierr.ErrInvalidOperation)
	}

	newPlan, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !newPlan.Active {
		return nil, ierr.NewError("plan is not active").
			WithHintf("Plan %s is not open for new subscriptions", newPlan.ID).
			Mark(ierr.ErrInvalidOperation)
	}
	if _, err := newPlan.PriceFor(req.BillingCycle, sub.Currency); err != nil {
		return nil, err
	}

	// The old row is superseded at now and a new subscription starts a
	// fresh period. No proration: the switch is a clean boundary.
	now := time.Now().UTC()
	periodEnd, err := types.NextBillingDate(now, req.BillingCycle)
	if err != nil {
		return nil, err
	}

	oldStatus := sub.SubscriptionStatus
	oldPlanID := sub.PlanID
	reason := req.Reason
	if reason == "" {
		reason = "plan changed"
	}

	newSub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:             newPlan.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       req.BillingCycle,
		Currency:           sub.Currency,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		AutoPayEnabled:     sub.AutoPayEnabled,
		Gateway:            sub.Gateway,
		PaymentMethodID:    sub.PaymentMethodID,
		GatewayCustomerID:  sub.GatewayCustomerID,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	newSub.TenantID = sub.TenantID

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub.SubscriptionStatus = types.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, sub, types.SubscriptionEventSuperseded,
			oldStatus, types.SubscriptionStatusCancelled, lo.ToPtr(oldPlanID), lo.ToPtr(newPlan.ID), reason); err != nil {
			return err
		}
		if err := s.SubRepo.Create(ctx, newSub); err != nil {
			return err
		}
		return s.appendHistory(ctx, newSub, types.SubscriptionEventPlanChanged,
			"", types.SubscriptionStatusActive, lo.ToPtr(oldPlanID), lo.ToPtr(newPlan.ID), reason)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("plan changed",
		"old_subscription_id", sub.ID,
		"new_subscription_id", newSub.ID,
		"old_plan_id", oldPlanID,
		"new_plan_id", newPlan.ID)
	return &dto.SubscriptionResponse{Subscription: newSub}, nil
}

func (s *subscriptionService) GetAutoPayStatus(ctx context.Context, id string) (*dto.AutoPayStatusResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.AutoPayStatusResponse{
		Enabled:         sub.AutoPayEnabled,
		PaymentMethodID: sub.PaymentMethodID,
		Currency:        sub.Currency,
	}

	if sub.AutoPayEnabled && !sub.IsCancelled() && !sub.CancelAtPeriodEnd {
		p, err := s.PlanRepo.Get(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		price, err := p.PriceFor(sub.BillingCycle, sub.Currency)
		if err != nil {
			return nil, err
		}
		next := sub.CurrentPeriodEnd.Format(time.RFC3339)
		amount := price.StringFixed(2)
		resp.NextChargeAt = &next
		resp.NextChargeAmount = &amount
	}

	return resp, nil
}

func (s *subscriptionService) UpdateAutoPay(ctx context.Context, id string, req *dto.UpdateAutoPayRequest) (*dto.AutoPayStatusResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, ierr.NewError("subscription is cancelled").
			WithHint("Auto-pay cannot be changed on a cancelled subscription").
			Mark(ierr.ErrInvalidOperation)
	}

	req.Enabled.Apply(&sub.AutoPayEnabled)
	if req.PaymentMethodID.Present {
		if req.PaymentMethodID.Value == "" {
			sub.PaymentMethodID = nil
		} else {
			sub.PaymentMethodID = &req.PaymentMethodID.Value
		}
	}
	if req.Gateway.Present {
		if err := req.Gateway.Value.Validate(); err != nil {
			return nil, err
		}
		sub.Gateway = req.Gateway.Value
	}

	if sub.AutoPayEnabled && sub.PaymentMethodID == nil {
		return nil, ierr.NewError("auto-pay requires a payment method").
			WithHint("Store a payment method before enabling auto-pay").
			Mark(ierr.ErrValidation)
	}

	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	return s.GetAutoPayStatus(ctx, id)
}

func (s *subscriptionService) ProcessRenewalSuccess(ctx context.Context, subscriptionID string, paymentID *string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsCancelled() {
		return ierr.NewError("subscription is cancelled").
			WithHint("A cancelled subscription cannot renew").
			Mark(ierr.ErrInvalidOperation)
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	price, err := p.PriceFor(sub.BillingCycle, sub.Currency)
	if err != nil {
		return err
	}

	expectedVersion := sub.Version
	fromStatus := sub.SubscriptionStatus

	// Periods stay half-open and contiguous: the new start is the old
	// end, the new end is exactly one cycle later.
	newStart := sub.CurrentPeriodEnd
	newEnd, err := types.NextBillingDate(newStart, sub.BillingCycle)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub.SubscriptionStatus = types.SubscriptionStatusActive
		sub.CurrentPeriodStart = newStart
		sub.CurrentPeriodEnd = newEnd

		if err := s.SubRepo.UpdateWithVersion(ctx, sub, expectedVersion); err != nil {
			return err
		}

		inv, err := s.issueRenewalInvoice(ctx, sub, price, newStart, newEnd, now)
		if err != nil {
			return err
		}

		if paymentID != nil {
			pmt, err := s.PaymentRepo.Get(ctx, *paymentID)
			if err != nil {
				return err
			}
			pmt.InvoiceID = &inv.ID
			if _, err := pmt.TransitionTo(types.PaymentStatusSucceeded, now); err != nil {
				return err
			}
			if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
				return err
			}
		}

		return s.appendHistory(ctx, sub, types.SubscriptionEventRenewed,
			fromStatus, types.SubscriptionStatusActive, nil, nil, "period renewed")
	})
	if err != nil {
		// A concurrent writer already advanced this period; the renewal
		// is complete, just not by us.
		if ierr.IsVersionConflict(err) {
			s.Logger.Infow("renewal already applied by concurrent writer",
				"subscription_id", sub.ID,
				"expected_version", expectedVersion)
			return nil
		}
		return err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:           notification.KindRenewalSucceeded,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
	})

	s.Logger.Infow("subscription renewed",
		"subscription_id", sub.ID,
		"period_start", newStart,
		"period_end", newEnd)
	return nil
}

func (s *subscriptionService) ProcessRenewalFailure(ctx context.Context, subscriptionID string, reason string) error {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsCancelled() {
		return nil
	}

	// Repeat failures within the same past_due period add nothing.
	if sub.SubscriptionStatus == types.SubscriptionStatusPastDue {
		s.Logger.Debugw("subscription already past due, skipping",
			"subscription_id", sub.ID)
		return nil
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	price, err := p.PriceFor(sub.BillingCycle, sub.Currency)
	if err != nil {
		return err
	}

	fromStatus := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusPastDue

	periodStart := sub.CurrentPeriodEnd
	periodEnd, err := types.NextBillingDate(periodStart, sub.BillingCycle)
	if err != nil {
		return err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		// The open invoice gives the customer something to settle
		// manually while the subscription sits in past_due.
		if _, err := s.openInvoiceForPeriod(ctx, sub, price, periodStart, periodEnd); err != nil {
			return err
		}
		return s.appendHistory(ctx, sub, types.SubscriptionEventRenewalFailed,
			fromStatus, types.SubscriptionStatusPastDue, nil, nil, reason)
	})
	if err != nil {
		return err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:           notification.KindRenewalFailed,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Data:           map[string]string{"reason": reason},
	})

	s.Logger.Warnw("subscription renewal failed",
		"subscription_id", sub.ID,
		"reason", reason)
	return nil
}

func (s *subscriptionService) ProcessBillingBoundaries(ctx context.Context, now time.Time) error {
	subs, err := s.SubRepo.ListPastBoundary(ctx, now)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		// Each subscription is isolated: one failure never stalls the
		// rest of the sweep.
		if err := s.processBoundary(ctx, sub, now); err != nil {
			s.Logger.Errorw("boundary processing failed",
				"subscription_id", sub.ID,
				"error", err)
		}
	}
	return nil
}

func (s *subscriptionService) processBoundary(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	ctx = types.SetTenantID(ctx, sub.TenantID)

	switch {
	case sub.SubscriptionStatus == types.SubscriptionStatusTrialing &&
		sub.TrialEnd != nil && !sub.TrialEnd.After(now):
		return s.expireTrial(ctx, sub, now)

	case sub.CancelAtPeriodEnd && sub.CancelAt != nil && !sub.CancelAt.After(now):
		return s.finalizeCancellation(ctx, sub, now, "scheduled cancellation reached period end")

	case sub.SubscriptionStatus == types.SubscriptionStatusPastDue &&
		now.After(sub.CurrentPeriodEnd.AddDate(0, 0, s.Config.Billing.GraceDays)):
		return s.finalizeCancellation(ctx, sub, now, "grace window expired without payment")
	}
	return nil
}

// expireTrial ends a trial that reached its boundary. With auto-pay and
// a stored method the renewal charge is the scheduler's job; without
// one, the subscription terminates with no invoice.
func (s *subscriptionService) expireTrial(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	if sub.AutoPayEnabled && sub.PaymentMethodID != nil {
		return nil
	}

	fromStatus := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CancelledAt = &now

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendHistory(ctx, sub, types.SubscriptionEventTrialExpired,
			fromStatus, types.SubscriptionStatusCancelled, nil, nil, "trial ended without a payment method")
	})
	if err != nil {
		return err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:           notification.KindTrialExpired,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
	})

	s.Logger.Infow("trial expired", "subscription_id", sub.ID)
	return nil
}

func (s *subscriptionService) finalizeCancellation(ctx context.Context, sub *subscription.Subscription, now time.Time, reason string) error {
	fromStatus := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.CancelAtPeriodEnd = false
	sub.CancelAt = nil

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.appendHistory(ctx, sub, types.SubscriptionEventCancelled,
			fromStatus, types.SubscriptionStatusCancelled, nil, nil, reason)
	})
	if err != nil {
		return err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:           notification.KindSubscriptionCancelled,
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Data:           map[string]string{"reason": reason},
	})

	s.Logger.Infow("subscription cancelled at boundary",
		"subscription_id", sub.ID,
		"reason", reason)
	return nil
}

// issueRenewalInvoice settles the invoice for the new period. A renewal
// that failed earlier already has an open invoice for this period; that
// row is paid rather than duplicated.
func (s *subscriptionService) issueRenewalInvoice(ctx context.Context, sub *subscription.Subscription, price decimal.Decimal, periodStart, periodEnd, paidAt time.Time) (*invoice.Invoice, error) {
	if existing, err := s.invoiceForPeriod(ctx, sub.ID, periodStart); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.MarkPaid(paidAt) {
			if err := s.InvoiceRepo.Update(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	number, err := s.InvoiceRepo.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID: &sub.ID,
		InvoiceNumber:  number,
		InvoiceStatus:  types.InvoiceStatusPaid,
		Currency:       sub.Currency,
		Subtotal:       price,
		Tax:            decimal.Zero,
		Discount:       decimal.Zero,
		Total:          price,
		AmountPaid:     price,
		AmountDue:      decimal.Zero,
		PeriodStart:    &periodStart,
		PeriodEnd:      &periodEnd,
		PaidAt:         &paidAt,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	inv.TenantID = sub.TenantID

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// invoiceForPeriod finds the subscription invoice whose period starts at
// periodStart, or nil when none exists. Voided invoices do not count.
func (s *subscriptionService) invoiceForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (*invoice.Invoice, error) {
	invoices, err := s.InvoiceRepo.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.InvoiceStatus == types.InvoiceStatusVoided {
			continue
		}
		if inv.PeriodStart != nil && inv.PeriodStart.Equal(periodStart) {
			return inv, nil
		}
	}
	return nil, nil
}

// openInvoiceForPeriod creates the unpaid invoice for an upcoming period,
// or returns the one already issued for it.
func (s *subscriptionService) openInvoiceForPeriod(ctx context.Context, sub *subscription.Subscription, price decimal.Decimal, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	if existing, err := s.invoiceForPeriod(ctx, sub.ID, periodStart); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	number, err := s.InvoiceRepo.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		SubscriptionID: &sub.ID,
		InvoiceNumber:  number,
		InvoiceStatus:  types.InvoiceStatusOpen,
		Currency:       sub.Currency,
		Subtotal:       price,
		Tax:            decimal.Zero,
		Discount:       decimal.Zero,
		Total:          price,
		AmountPaid:     decimal.Zero,
		AmountDue:      price,
		PeriodStart:    &periodStart,
		PeriodEnd:      &periodEnd,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	inv.TenantID = sub.TenantID

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *subscriptionService) appendHistory(ctx context.Context, sub *subscription.Subscription, eventType types.SubscriptionEventType, from, to types.SubscriptionStatus, fromPlan, toPlan *string, reason string) error {
	return s.SubRepo.AppendHistory(ctx, &subscription.HistoryEntry{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		EventType:      eventType,
		FromStatus:     from,
		ToStatus:       to,
		FromPlanID:     fromPlan,
		ToPlanID:       toPlan,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      types.GetUserID(ctx),
	})
}
