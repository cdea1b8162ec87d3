package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/testutil"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type ReconcilerServiceSuite struct {
	testutil.BaseServiceTestSuite
	service    ReconcilerService
	paymentSvc PaymentService
	testData   struct {
		plan        *plan.Plan
		sub         *subscription.Subscription
		openInvoice *invoice.Invoice
		order       *dto.OrderResponse
	}
}

func TestReconcilerService(t *testing.T) {
	suite.Run(t, new(ReconcilerServiceSuite))
}

func (s *ReconcilerServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestParams(&s.BaseServiceTestSuite)
	s.service = NewReconcilerService(params)
	s.paymentSvc = NewPaymentService(params)
	s.setupTestData()
}

func (s *ReconcilerServiceSuite) setupTestData() {
	ctx := s.GetContext()

	s.testData.plan = &plan.Plan{
		ID:           "plan_test_hooks",
		Name:         "Growth",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(29),
		AnnualPrice:  decimal.NewFromInt(290),
		Active:       true,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(ctx, s.testData.plan))

	periodEnd, err := types.NextBillingDate(s.GetNow(), types.BILLING_CYCLE_MONTHLY)
	s.Require().NoError(err)
	gwSubID := "sub_gw_123"
	s.testData.sub = &subscription.Subscription{
		ID:                    "subs_test_hooks",
		PlanID:                s.testData.plan.ID,
		SubscriptionStatus:    types.SubscriptionStatusPastDue,
		BillingCycle:          types.BILLING_CYCLE_MONTHLY,
		Currency:              "usd",
		StartDate:             s.GetNow(),
		CurrentPeriodStart:    s.GetNow(),
		CurrentPeriodEnd:      periodEnd,
		Gateway:               types.PaymentGatewayStripe,
		GatewaySubscriptionID: &gwSubID,
		Version:               1,
		BaseModel:             types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(ctx, s.testData.sub))

	nextStart := s.testData.sub.CurrentPeriodEnd
	nextEnd, err := types.NextBillingDate(nextStart, types.BILLING_CYCLE_MONTHLY)
	s.Require().NoError(err)
	gwInvID := "in_gw_123"
	s.testData.openInvoice = &invoice.Invoice{
		ID:               "inv_test_hooks",
		SubscriptionID:   &s.testData.sub.ID,
		InvoiceNumber:    "IN-000001",
		InvoiceStatus:    types.InvoiceStatusOpen,
		GatewayInvoiceID: &gwInvID,
		Currency:         "usd",
		Subtotal:         decimal.NewFromInt(29),
		Tax:              decimal.Zero,
		Discount:         decimal.Zero,
		Total:            decimal.NewFromInt(29),
		AmountPaid:       decimal.Zero,
		AmountDue:        decimal.NewFromInt(29),
		PeriodStart:      &nextStart,
		PeriodEnd:        &nextEnd,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().InvoiceRepo.Create(ctx, s.testData.openInvoice))

	s.testData.order, err = s.paymentSvc.CreateOrder(ctx, types.PaymentGatewayStripe, &dto.CreateOrderRequest{
		InvoiceID: s.testData.openInvoice.ID,
	})
	s.Require().NoError(err)
}

func (s *ReconcilerServiceSuite) deliver(event *types.GatewayEvent) error {
	return s.service.ProcessWebhook(s.GetContext(), types.PaymentGatewayStripe,
		testutil.EncodeWebhookEvent(event), map[string]string{"Stripe-Signature": "t=1,v1=abc"})
}

func (s *ReconcilerServiceSuite) TestRejectsBadSignature() {
	s.GetGatewayFakes().Stripe.SignatureErr = ierr.NewError("signature mismatch").
		WithHint("Webhook signature verification failed").
		Mark(ierr.ErrSignature)

	err := s.deliver(&types.GatewayEvent{
		ID:             "evt_bad_sig",
		Type:           types.GatewayEventPaymentSucceeded,
		GatewayOrderID: s.testData.order.GatewayOrderID,
	})
	s.Error(err)
	s.True(ierr.IsSignature(err))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, pmt.PaymentStatus)
}

func (s *ReconcilerServiceSuite) TestPaymentSucceededSettles() {
	event := &types.GatewayEvent{
		ID:               "evt_pay_1",
		Type:             types.GatewayEventPaymentSucceeded,
		GatewayOrderID:   s.testData.order.GatewayOrderID,
		GatewayPaymentID: "pi_hook_1",
	}
	s.Require().NoError(s.deliver(event))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.openInvoice.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)

	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(2, sub.Version)

	// Gateways retry deliveries; the second copy changes nothing.
	s.Require().NoError(s.deliver(event))

	sub, err = s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(2, sub.Version)
}

func (s *ReconcilerServiceSuite) TestStaleFailureAfterSuccessIgnored() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_pay_2",
		Type:             types.GatewayEventPaymentSucceeded,
		GatewayOrderID:   s.testData.order.GatewayOrderID,
		GatewayPaymentID: "pi_hook_2",
	}))

	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_fail_late",
		Type:             types.GatewayEventPaymentFailed,
		GatewayOrderID:   s.testData.order.GatewayOrderID,
		GatewayPaymentID: "pi_hook_2",
		FailureReason:    "card_declined",
	}))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, pmt.PaymentStatus)
	s.Nil(pmt.FailureReason)
}

func (s *ReconcilerServiceSuite) TestPaymentFailedMarksPayment() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_fail_1",
		Type:             types.GatewayEventPaymentFailed,
		GatewayOrderID:   s.testData.order.GatewayOrderID,
		GatewayPaymentID: "pi_hook_3",
		FailureReason:    "insufficient_funds",
	}))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, pmt.PaymentStatus)
	s.Require().NotNil(pmt.FailureReason)
	s.Equal("insufficient_funds", *pmt.FailureReason)
}

func (s *ReconcilerServiceSuite) TestInvoicePaidAdvancesRenewal() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_inv_1",
		Type:             types.GatewayEventInvoicePaid,
		GatewayInvoiceID: *s.testData.openInvoice.GatewayInvoiceID,
	}))

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.openInvoice.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)

	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.True(sub.CurrentPeriodStart.Equal(*s.testData.openInvoice.PeriodStart))
}

func (s *ReconcilerServiceSuite) TestOrphanIsAcknowledgedAndLogged() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_orphan",
		Type:             types.GatewayEventPaymentSucceeded,
		Gateway:          types.PaymentGatewayStripe,
		GatewayOrderID:   "order_nobody_knows",
		GatewayPaymentID: "pi_nobody_knows",
		Amount:           decimal.NewFromInt(29),
		Currency:         "usd",
		Metadata: map[string]string{
			"email":   "owner@lost-signup.example",
			"plan_id": s.testData.plan.ID,
		},
	}))

	logs, err := s.GetStores().PaymentLogRepo.List(s.GetContext(), nil)
	s.Require().NoError(err)

	var orphaned int
	for _, l := range logs {
		if l.Action == types.PaymentLogActionOrphanedPayment {
			orphaned++
			s.Equal(types.PaymentLogStatusSkipped, l.Status)
			s.Nil(l.PaymentID)

			// The entry alone must be enough to backfill the charge.
			s.Equal("order_nobody_knows", l.Request["gateway_order_id"])
			s.Equal("29", l.Request["amount"])
			s.Equal("usd", l.Request["currency"])
			s.Equal("owner@lost-signup.example", l.Request["email"])
			s.Equal(s.testData.plan.ID, l.Request["plan_id"])
		}
	}
	s.Equal(1, orphaned)
}

func (s *ReconcilerServiceSuite) TestSubscriptionDeletedCancels() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:                    "evt_sub_del",
		Type:                  types.GatewayEventSubscriptionDeleted,
		GatewaySubscriptionID: *s.testData.sub.GatewaySubscriptionID,
	}))

	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, sub.SubscriptionStatus)

	// Replay of the deletion finds a cancelled row and stops.
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:                    "evt_sub_del_2",
		Type:                  types.GatewayEventSubscriptionDeleted,
		GatewaySubscriptionID: *s.testData.sub.GatewaySubscriptionID,
	}))
}

func (s *ReconcilerServiceSuite) TestChargeRefundedAppliesOnce() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:               "evt_pay_4",
		Type:             types.GatewayEventPaymentSucceeded,
		GatewayOrderID:   s.testData.order.GatewayOrderID,
		GatewayPaymentID: "pi_hook_4",
	}))

	refund := &types.GatewayEvent{
		ID:               "evt_refund_1",
		Type:             types.GatewayEventChargeRefunded,
		GatewayPaymentID: "pi_hook_4",
		Amount:           decimal.NewFromInt(29),
	}
	s.Require().NoError(s.deliver(refund))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusRefunded, pmt.PaymentStatus)
	s.True(pmt.AmountRefunded.Equal(pmt.Amount))

	// The echo of an already applied refund has nothing left to move.
	s.Require().NoError(s.deliver(refund))

	refunds, err := s.GetStores().PaymentRepo.ListRefunds(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Len(refunds, 1)
}

func (s *ReconcilerServiceSuite) TestUnhandledEventIgnored() {
	s.Require().NoError(s.deliver(&types.GatewayEvent{
		ID:   "evt_noise",
		Type: "customer.updated",
	}))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), s.testData.order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, pmt.PaymentStatus)
}
