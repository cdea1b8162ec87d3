package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

// newTestParams wires a ServiceParams against the suite's in-memory
// stores and fake gateways.
func newTestParams(base *testutil.BaseServiceTestSuite) ServiceParams {
	stores := base.GetStores()
	return ServiceParams{
		Logger:         base.GetLogger(),
		Config:         base.GetConfig(),
		DB:             base.GetDB(),
		TenantRepo:     stores.TenantRepo,
		PlanRepo:       stores.PlanRepo,
		SubRepo:        stores.SubRepo,
		InvoiceRepo:    stores.InvoiceRepo,
		PaymentRepo:    stores.PaymentRepo,
		PaymentLogRepo: stores.PaymentLogRepo,
		CouponRepo:     stores.CouponRepo,
		UsageRepo:      stores.UsageRepo,
		Gateways:       base.GetGateways(),
		Notifier:       base.GetSink(),
	}
}

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	testData struct {
		plan *plan.Plan
	}
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewSubscriptionService(newTestParams(&s.BaseServiceTestSuite))
	s.setupTestData()
}

func (s *SubscriptionServiceSuite) setupTestData() {
	s.testData.plan = &plan.Plan{
		ID:           "plan_test_sub",
		Name:         "Growth",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(29),
		AnnualPrice:  decimal.NewFromInt(290),
		TrialDays:    14,
		Active:       true,
		Public:       true,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PlanRepo.Create(s.GetContext(), s.testData.plan))
}

// createActiveSubscription signs up with a stored card so the opening
// charge settles inline and the subscription comes back active.
func (s *SubscriptionServiceSuite) createActiveSubscription() *subscription.Subscription {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:          s.testData.plan.ID,
		BillingCycle:    types.BILLING_CYCLE_MONTHLY,
		Gateway:         types.PaymentGatewayStripe,
		PaymentMethodID: lo.ToPtr("pm_test_card"),
	})
	s.Require().NoError(err)
	return resp.Subscription
}

// invoiceForPeriod finds the subscription invoice whose period starts
// at the given instant.
func (s *SubscriptionServiceSuite) invoiceForPeriod(subID string, start time.Time) *invoice.Invoice {
	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), subID)
	s.Require().NoError(err)
	for _, inv := range invoices {
		if inv.PeriodStart != nil && inv.PeriodStart.Equal(start) {
			return inv
		}
	}
	return nil
}

func (s *SubscriptionServiceSuite) TestCreateSubscription() {
	sub := s.createActiveSubscription()

	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(s.testData.plan.ID, sub.PlanID)
	s.Equal("usd", sub.Currency)
	s.Equal(1, sub.Version)

	expectedEnd, err := types.NextBillingDate(sub.CurrentPeriodStart, types.BILLING_CYCLE_MONTHLY)
	s.NoError(err)
	s.True(sub.CurrentPeriodEnd.Equal(expectedEnd))

	// The stored card paid the opening invoice inline.
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)
	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodStart)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.True(inv.Total.Equal(s.testData.plan.MonthlyPrice))

	pmt, err := s.GetStores().PaymentRepo.GetByIdempotencyKey(s.GetContext(), "initial-"+sub.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)

	history, err := s.service.GetHistory(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Require().Len(history.Items, 2)
	s.Equal(types.SubscriptionEventCreated, history.Items[0].EventType)
	s.Equal(types.SubscriptionStatusPastDue, history.Items[0].ToStatus)
	s.Equal(types.SubscriptionEventActivated, history.Items[1].EventType)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionWithoutMethodWaitsOnInvoice() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:       s.testData.plan.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
		Gateway:      types.PaymentGatewayStripe,
	})
	s.Require().NoError(err)

	// No stored card means no free active period: the subscription holds
	// until the opening invoice settles through checkout.
	sub := resp.Subscription
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
	s.Equal(0, s.GetGatewayFakes().Stripe.ChargeCalls)

	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodStart)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)
	s.True(inv.AmountDue.Equal(s.testData.plan.MonthlyPrice))

	s.Require().NoError(s.service.ActivateOnFirstPayment(s.GetContext(), sub.ID))

	activated, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, activated.SubscriptionStatus)

	// A replay after activation changes nothing.
	s.Require().NoError(s.service.ActivateOnFirstPayment(s.GetContext(), sub.ID))
	history, err := s.service.GetHistory(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Require().Len(history.Items, 2)
	s.Equal(types.SubscriptionEventActivated, history.Items[1].EventType)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionOpeningChargeDeclined() {
	s.GetGatewayFakes().Stripe.ChargeResult = &types.GatewayResult{
		Succeeded:     false,
		FailureReason: "card_declined",
	}

	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:          s.testData.plan.ID,
		BillingCycle:    types.BILLING_CYCLE_MONTHLY,
		Gateway:         types.PaymentGatewayStripe,
		PaymentMethodID: lo.ToPtr("pm_bad_card"),
	})
	s.Require().NoError(err)

	sub := resp.Subscription
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)

	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodStart)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)

	pmt, err := s.GetStores().PaymentRepo.GetByIdempotencyKey(s.GetContext(), "initial-"+sub.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, pmt.PaymentStatus)
	s.Require().NotNil(pmt.FailureReason)
	s.Equal("card_declined", *pmt.FailureReason)

	s.Len(s.GetSink().SentOfKind(notification.KindPaymentFailed), 1)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionAppliesCoupon() {
	couponSvc := NewCouponService(newTestParams(&s.BaseServiceTestSuite))
	_, err := couponSvc.CreateCoupon(s.GetContext(), &dto.CreateCouponRequest{
		Code:         "LAUNCH25",
		DiscountType: coupon.DiscountTypePercent,
		Amount:       decimal.NewFromInt(25),
	})
	s.Require().NoError(err)

	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:          s.testData.plan.ID,
		BillingCycle:    types.BILLING_CYCLE_MONTHLY,
		Gateway:         types.PaymentGatewayStripe,
		PaymentMethodID: lo.ToPtr("pm_test_card"),
		CouponCode:      lo.ToPtr("LAUNCH25"),
	})
	s.Require().NoError(err)

	sub := resp.Subscription
	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodStart)
	s.Require().NotNil(inv)
	// 29 minus the 25 percent launch discount
	s.True(inv.Discount.Equal(decimal.NewFromFloat(7.25)), "got %s", inv.Discount)
	s.True(inv.Total.Equal(decimal.NewFromFloat(21.75)), "got %s", inv.Total)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)

	redeemed, err := s.GetStores().CouponRepo.GetByCode(s.GetContext(), "LAUNCH25")
	s.Require().NoError(err)
	s.Equal(int64(1), redeemed.Redemptions)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionRejectsCouponOnTrial() {
	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:       s.testData.plan.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
		Gateway:      types.PaymentGatewayStripe,
		StartTrial:   true,
		CouponCode:   lo.ToPtr("LAUNCH25"),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionWithTrial() {
	resp, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:       s.testData.plan.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
		Gateway:      types.PaymentGatewayStripe,
		StartTrial:   true,
	})
	s.Require().NoError(err)

	sub := resp.Subscription
	s.Equal(types.SubscriptionStatusTrialing, sub.SubscriptionStatus)
	s.Require().NotNil(sub.TrialEnd)
	s.True(sub.CurrentPeriodEnd.Equal(*sub.TrialEnd))

	history, err := s.service.GetHistory(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Require().Len(history.Items, 1)
	s.Equal(types.SubscriptionEventTrialStarted, history.Items[0].EventType)
}

func (s *SubscriptionServiceSuite) TestCreateSubscriptionRejectsSecondActive() {
	s.createActiveSubscription()

	_, err := s.service.CreateSubscription(s.GetContext(), &dto.CreateSubscriptionRequest{
		PlanID:       s.testData.plan.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
		Gateway:      types.PaymentGatewayStripe,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCancelSubscriptionImmediate() {
	sub := s.createActiveSubscription()

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, resp.SubscriptionStatus)
	s.NotNil(resp.CancelledAt)

	s.Len(s.GetSink().SentOfKind(notification.KindSubscriptionCancelled), 1)
}

func (s *SubscriptionServiceSuite) TestCancelAtPeriodEndAndReactivate() {
	sub := s.createActiveSubscription()

	resp, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{
		AtPeriodEnd: true,
	})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.True(resp.CancelAtPeriodEnd)
	s.Require().NotNil(resp.CancelAt)
	s.True(resp.CancelAt.Equal(resp.CurrentPeriodEnd))

	reactivated, err := s.service.ReactivateSubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.False(reactivated.CancelAtPeriodEnd)
	s.Nil(reactivated.CancelAt)
}

func (s *SubscriptionServiceSuite) TestReactivateCancelledFails() {
	sub := s.createActiveSubscription()
	_, err := s.service.CancelSubscription(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)

	_, err = s.service.ReactivateSubscription(s.GetContext(), sub.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *SubscriptionServiceSuite) TestChangePlanSupersedesOldSubscription() {
	other := &plan.Plan{
		ID:           "plan_test_scale",
		Name:         "Scale",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(99),
		AnnualPrice:  decimal.NewFromInt(990),
		Active:       true,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PlanRepo.Create(s.GetContext(), other))

	old := s.createActiveSubscription()

	resp, err := s.service.ChangePlan(s.GetContext(), old.ID, &dto.ChangePlanRequest{
		PlanID:       other.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
	})
	s.Require().NoError(err)
	s.NotEqual(old.ID, resp.ID)
	s.Equal(other.ID, resp.PlanID)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)

	superseded, err := s.GetStores().SubRepo.Get(s.GetContext(), old.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, superseded.SubscriptionStatus)

	history, err := s.service.GetHistory(s.GetContext(), old.ID)
	s.NoError(err)
	s.Require().Len(history.Items, 3)
	s.Equal(types.SubscriptionEventSuperseded, history.Items[2].EventType)
}

func (s *SubscriptionServiceSuite) TestProcessRenewalSuccessAdvancesOnePeriod() {
	sub := s.createActiveSubscription()
	oldStart := sub.CurrentPeriodStart
	oldEnd := sub.CurrentPeriodEnd

	s.Require().NoError(s.service.ProcessRenewalSuccess(s.GetContext(), sub.ID, nil))

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.True(renewed.CurrentPeriodStart.Equal(oldEnd))
	expectedEnd, err := types.NextBillingDate(oldEnd, sub.BillingCycle)
	s.NoError(err)
	s.True(renewed.CurrentPeriodEnd.Equal(expectedEnd))
	s.False(renewed.CurrentPeriodStart.Equal(oldStart))
	s.Equal(2, renewed.Version)

	inv := s.invoiceForPeriod(sub.ID, oldEnd)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.True(inv.Total.Equal(s.testData.plan.MonthlyPrice))

	s.Len(s.GetSink().SentOfKind(notification.KindRenewalSucceeded), 1)
}

func (s *SubscriptionServiceSuite) TestProcessRenewalFailureOpensInvoiceOnce() {
	sub := s.createActiveSubscription()

	s.Require().NoError(s.service.ProcessRenewalFailure(s.GetContext(), sub.ID, "card declined"))

	pastDue, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, pastDue.SubscriptionStatus)

	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodEnd)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)
	s.True(inv.AmountDue.Equal(s.testData.plan.MonthlyPrice))

	// A repeat failure in the same period changes nothing.
	s.Require().NoError(s.service.ProcessRenewalFailure(s.GetContext(), sub.ID, "card declined again"))

	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Len(invoices, 2)

	history, err := s.service.GetHistory(s.GetContext(), sub.ID)
	s.NoError(err)
	failures := 0
	for _, entry := range history.Items {
		if entry.EventType == types.SubscriptionEventRenewalFailed {
			failures++
		}
	}
	s.Equal(1, failures)
	s.Len(s.GetSink().SentOfKind(notification.KindRenewalFailed), 1)
}

func (s *SubscriptionServiceSuite) TestRenewalSuccessPaysEarlierOpenInvoice() {
	sub := s.createActiveSubscription()

	s.Require().NoError(s.service.ProcessRenewalFailure(s.GetContext(), sub.ID, "card declined"))
	s.Require().NoError(s.service.ProcessRenewalSuccess(s.GetContext(), sub.ID, nil))

	// The open invoice from the failed attempt is paid, not duplicated.
	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Require().Len(invoices, 2)
	inv := s.invoiceForPeriod(sub.ID, sub.CurrentPeriodEnd)
	s.Require().NotNil(inv)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.True(inv.AmountDue.IsZero())

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, renewed.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestTrialExpiryWithoutPaymentMethodCancels() {
	past := s.GetNow().Add(-time.Hour)
	sub := &subscription.Subscription{
		ID:                 "subs_trial_expired",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusTrialing,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          past.AddDate(0, 0, -14),
		CurrentPeriodStart: past.AddDate(0, 0, -14),
		CurrentPeriodEnd:   past,
		TrialEnd:           &past,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(s.GetContext(), sub))

	s.Require().NoError(s.service.ProcessBillingBoundaries(s.GetContext(), s.GetNow()))

	expired, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, expired.SubscriptionStatus)

	// An unconverted trial terminates without money changing hands.
	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Empty(invoices)
	s.Len(s.GetSink().SentOfKind(notification.KindTrialExpired), 1)
}

func (s *SubscriptionServiceSuite) TestTrialExpiryWithStoredMethodWaitsForCharge() {
	past := s.GetNow().Add(-time.Hour)
	method := "pm_stored"
	sub := &subscription.Subscription{
		ID:                 "subs_trial_autopay",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusTrialing,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          past.AddDate(0, 0, -14),
		CurrentPeriodStart: past.AddDate(0, 0, -14),
		CurrentPeriodEnd:   past,
		TrialEnd:           &past,
		AutoPayEnabled:     true,
		PaymentMethodID:    &method,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(s.GetContext(), sub))

	s.Require().NoError(s.service.ProcessBillingBoundaries(s.GetContext(), s.GetNow()))

	unchanged, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusTrialing, unchanged.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestGraceWindowExpiryCancels() {
	graceDays := s.GetConfig().Billing.GraceDays
	boundary := s.GetNow().AddDate(0, 0, -graceDays).Add(-time.Hour)
	sub := &subscription.Subscription{
		ID:                 "subs_grace_expired",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusPastDue,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          boundary.AddDate(0, -1, 0),
		CurrentPeriodStart: boundary.AddDate(0, -1, 0),
		CurrentPeriodEnd:   boundary,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(s.GetContext(), sub))

	s.Require().NoError(s.service.ProcessBillingBoundaries(s.GetContext(), s.GetNow()))

	cancelled, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, cancelled.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestScheduledCancellationFinalized() {
	sub := s.createActiveSubscription()

	past := s.GetNow().Add(-time.Minute)
	stored, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	stored.CancelAtPeriodEnd = true
	stored.CancelAt = &past
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), stored))

	s.Require().NoError(s.service.ProcessBillingBoundaries(s.GetContext(), s.GetNow()))

	finalized, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, finalized.SubscriptionStatus)
	s.False(finalized.CancelAtPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestUpdateAutoPayRequiresStoredMethod() {
	sub := s.createActiveSubscription()

	// Clearing the stored method while enabling auto-pay is rejected.
	_, err := s.service.UpdateAutoPay(s.GetContext(), sub.ID, &dto.UpdateAutoPayRequest{
		Enabled:         types.Patch[bool]{Present: true, Value: true},
		PaymentMethodID: types.Patch[string]{Present: true, Value: ""},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	resp, err := s.service.UpdateAutoPay(s.GetContext(), sub.ID, &dto.UpdateAutoPayRequest{
		Enabled:         types.Patch[bool]{Present: true, Value: true},
		PaymentMethodID: types.Patch[string]{Present: true, Value: "pm_new"},
	})
	s.Require().NoError(err)
	s.True(resp.Enabled)
	s.NotNil(resp.NextChargeAt)
	s.NotNil(resp.NextChargeAmount)
}

func (s *SubscriptionServiceSuite) TestUpdateAutoPaySwitchesGateway() {
	sub := s.createActiveSubscription()

	// Moving the stored method to another gateway swaps both together.
	_, err := s.service.UpdateAutoPay(s.GetContext(), sub.ID, &dto.UpdateAutoPayRequest{
		PaymentMethodID: types.Patch[string]{Present: true, Value: "pm_razorpay_token"},
		Gateway:         types.Patch[types.PaymentGateway]{Present: true, Value: types.PaymentGatewayRazorpay},
	})
	s.Require().NoError(err)

	updated, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.PaymentGatewayRazorpay, updated.Gateway)
	s.Require().NotNil(updated.PaymentMethodID)
	s.Equal("pm_razorpay_token", *updated.PaymentMethodID)

	_, err = s.service.UpdateAutoPay(s.GetContext(), sub.ID, &dto.UpdateAutoPayRequest{
		Gateway: types.Patch[types.PaymentGateway]{Present: true, Value: types.PaymentGateway("bogus")},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
