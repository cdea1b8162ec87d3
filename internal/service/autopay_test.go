package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type AutoPayServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  AutoPayService
	testData struct {
		plan *plan.Plan
	}
}

func TestAutoPayService(t *testing.T) {
	suite.Run(t, new(AutoPayServiceSuite))
}

func (s *AutoPayServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewAutoPayService(newTestParams(&s.BaseServiceTestSuite))
	s.setupTestData()
}

func (s *AutoPayServiceSuite) setupTestData() {
	s.testData.plan = &plan.Plan{
		ID:           "plan_test_autopay",
		Name:         "Growth",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(29),
		AnnualPrice:  decimal.NewFromInt(290),
		TrialDays:    14,
		Active:       true,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(s.GetContext(), s.testData.plan))
}

// dueSubscription seeds an auto-pay subscription whose period ends within
// the lead window.
func (s *AutoPayServiceSuite) dueSubscription(id string, status types.SubscriptionStatus) *subscription.Subscription {
	method := "pm_stored"
	periodEnd := s.GetNow().Add(time.Hour)
	sub := &subscription.Subscription{
		ID:                 id,
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: status,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          s.GetNow().AddDate(0, -1, 0),
		CurrentPeriodStart: s.GetNow().AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		AutoPayEnabled:     true,
		PaymentMethodID:    &method,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	if status == types.SubscriptionStatusTrialing {
		trialEnd := periodEnd
		sub.TrialEnd = &trialEnd
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(s.GetContext(), sub))
	return sub
}

func (s *AutoPayServiceSuite) renewalPayment(sub *subscription.Subscription) *payment.Payment {
	key := fmt.Sprintf("renewal-%s-%d", sub.ID, sub.CurrentPeriodEnd.Unix())
	pmt, err := s.GetStores().PaymentRepo.GetByIdempotencyKey(s.GetContext(), key)
	s.Require().NoError(err)
	return pmt
}

func (s *AutoPayServiceSuite) TestSweepChargesDueSubscription() {
	sub := s.dueSubscription("subs_ap_1", types.SubscriptionStatusActive)
	oldEnd := sub.CurrentPeriodEnd

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)

	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)
	s.True(pmt.Amount.Equal(s.testData.plan.MonthlyPrice))
	s.NotNil(pmt.GatewayPaymentID)
	s.NotNil(pmt.InvoiceID)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.True(renewed.CurrentPeriodStart.Equal(oldEnd))
	s.Equal(2, renewed.Version)
}

func (s *AutoPayServiceSuite) TestRepeatSweepDoesNotDoubleCharge() {
	sub := s.dueSubscription("subs_ap_2", types.SubscriptionStatusActive)

	key := fmt.Sprintf("renewal-%s-%d", sub.ID, sub.CurrentPeriodEnd.Unix())
	pending := &payment.Payment{
		ID:               "pay_ap_pending",
		PaymentReference: "PR-PENDING1",
		IdempotencyKey:   &key,
		Gateway:          types.PaymentGatewayStripe,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         "usd",
		Amount:           decimal.NewFromInt(29),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), pending))

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(0, s.GetGatewayFakes().Stripe.ChargeCalls)
}

func (s *AutoPayServiceSuite) TestGatewayErrorLeavesPaymentPending() {
	sub := s.dueSubscription("subs_ap_3", types.SubscriptionStatusActive)

	s.GetGatewayFakes().Stripe.ChargeErr = ierr.NewError("gateway timeout").
		WithHint("The gateway did not answer in time").
		Mark(ierr.ErrGatewayTransient)

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))

	// The outcome is unknown, so nothing is finalized locally.
	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusPending, pmt.PaymentStatus)

	unchanged, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, unchanged.SubscriptionStatus)
	s.Equal(1, unchanged.Version)

	logs, err := s.GetStores().PaymentLogRepo.ListByPayment(s.GetContext(), pmt.ID)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(types.PaymentLogActionGatewayTimeout, logs[0].Action)
}

func (s *AutoPayServiceSuite) TestTransientDeclineLeavesPaymentPending() {
	sub := s.dueSubscription("subs_ap_4", types.SubscriptionStatusActive)

	s.GetGatewayFakes().Stripe.ChargeResult = &types.GatewayResult{
		Succeeded:     false,
		Transient:     true,
		FailureReason: "processing_error",
	}

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))

	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusPending, pmt.PaymentStatus)

	unchanged, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, unchanged.SubscriptionStatus)
}

func (s *AutoPayServiceSuite) TestTransientDeclineRetriedAfterDelay() {
	sub := s.dueSubscription("subs_ap_10", types.SubscriptionStatusActive)
	oldEnd := sub.CurrentPeriodEnd

	s.GetGatewayFakes().Stripe.ChargeResult = &types.GatewayResult{
		Succeeded:     false,
		Transient:     true,
		FailureReason: "processing_error",
	}
	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)

	// Within the retry delay the pending charge waits for a webhook.
	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)

	// Past the delay the charge is re-issued under the same key.
	s.GetGatewayFakes().Stripe.ChargeResult = nil
	later := s.GetNow().Add(s.GetConfig().Billing.AutoPayRetryDelay + time.Minute)
	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), later))
	s.Equal(2, s.GetGatewayFakes().Stripe.ChargeCalls)

	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.True(renewed.CurrentPeriodStart.Equal(oldEnd))
	s.Equal(2, renewed.Version)
}

func (s *AutoPayServiceSuite) TestTimeoutChargeRetriedAfterDelay() {
	sub := s.dueSubscription("subs_ap_11", types.SubscriptionStatusActive)

	s.GetGatewayFakes().Stripe.ChargeErr = ierr.NewError("gateway timeout").
		WithHint("The gateway did not answer in time").
		Mark(ierr.ErrGatewayTransient)
	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)

	s.GetGatewayFakes().Stripe.ChargeErr = nil
	later := s.GetNow().Add(s.GetConfig().Billing.AutoPayRetryDelay + time.Minute)
	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), later))
	s.Equal(2, s.GetGatewayFakes().Stripe.ChargeCalls)

	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)
}

func (s *AutoPayServiceSuite) TestHardDeclineMovesToPastDue() {
	sub := s.dueSubscription("subs_ap_5", types.SubscriptionStatusActive)

	s.GetGatewayFakes().Stripe.ChargeResult = &types.GatewayResult{
		Succeeded:     false,
		FailureReason: "card_declined",
	}

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))

	pmt := s.renewalPayment(sub)
	s.Equal(types.PaymentStatusFailed, pmt.PaymentStatus)
	s.Require().NotNil(pmt.FailureReason)
	s.Equal("card_declined", *pmt.FailureReason)

	declined, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, declined.SubscriptionStatus)

	invoices, err := s.GetStores().InvoiceRepo.ListBySubscription(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceStatusOpen, invoices[0].InvoiceStatus)
}

func (s *AutoPayServiceSuite) TestSkipsSubscriptionWithoutStoredMethod() {
	sub := s.dueSubscription("subs_ap_6", types.SubscriptionStatusActive)
	sub.PaymentMethodID = nil
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(0, s.GetGatewayFakes().Stripe.ChargeCalls)

	unchanged, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, unchanged.SubscriptionStatus)
}

func (s *AutoPayServiceSuite) TestTrialConversionCharge() {
	sub := s.dueSubscription("subs_ap_7", types.SubscriptionStatusTrialing)

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(1, s.GetGatewayFakes().Stripe.ChargeCalls)

	converted, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, converted.SubscriptionStatus)
	s.True(converted.CurrentPeriodStart.Equal(sub.CurrentPeriodEnd))
}

func (s *AutoPayServiceSuite) TestResumesInterruptedRenewal() {
	sub := s.dueSubscription("subs_ap_8", types.SubscriptionStatusActive)
	oldEnd := sub.CurrentPeriodEnd

	// A charge that settled before the crash left a succeeded payment
	// with no invoice attached.
	key := fmt.Sprintf("renewal-%s-%d", sub.ID, sub.CurrentPeriodEnd.Unix())
	gwRef := "pi_settled_before_crash"
	settled := &payment.Payment{
		ID:               "pay_ap_settled",
		PaymentReference: "PR-SETTLED1",
		IdempotencyKey:   &key,
		Gateway:          types.PaymentGatewayStripe,
		PaymentStatus:    types.PaymentStatusSucceeded,
		GatewayPaymentID: &gwRef,
		Currency:         "usd",
		Amount:           decimal.NewFromInt(29),
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), settled))

	s.Require().NoError(s.service.ProcessDueSubscriptions(s.GetContext(), s.GetNow()))
	s.Equal(0, s.GetGatewayFakes().Stripe.ChargeCalls)

	renewed, err := s.GetStores().SubRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.True(renewed.CurrentPeriodStart.Equal(oldEnd))
	s.Equal(types.SubscriptionStatusActive, renewed.SubscriptionStatus)
}

func (s *AutoPayServiceSuite) TestChargeSubscriptionSkipsScheduledCancellation() {
	sub := s.dueSubscription("subs_ap_9", types.SubscriptionStatusActive)
	sub.CancelAtPeriodEnd = true
	sub.CancelAt = &sub.CurrentPeriodEnd
	s.Require().NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	s.Require().NoError(s.service.ChargeSubscription(s.GetContext(), sub.ID))
	s.Equal(0, s.GetGatewayFakes().Stripe.ChargeCalls)
}
