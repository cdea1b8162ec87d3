package service

import (
	"testing"

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

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  PaymentService
	testData struct {
		plan        *plan.Plan
		sub         *subscription.Subscription
		openInvoice *invoice.Invoice
	}
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewPaymentService(newTestParams(&s.BaseServiceTestSuite))
	s.setupTestData()
}

func (s *PaymentServiceSuite) setupTestData() {
	ctx := s.GetContext()

	s.testData.plan = &plan.Plan{
		ID:           "plan_test_pay",
		Name:         "Growth",
		Currency:     "usd",
		MonthlyPrice: decimal.NewFromInt(29),
		AnnualPrice:  decimal.NewFromInt(290),
		TrialDays:    14,
		Active:       true,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(ctx, s.testData.plan))

	periodEnd, err := types.NextBillingDate(s.GetNow(), types.BILLING_CYCLE_MONTHLY)
	s.Require().NoError(err)
	s.testData.sub = &subscription.Subscription{
		ID:                 "subs_test_pay",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusPastDue,
		BillingCycle:       types.BILLING_CYCLE_MONTHLY,
		Currency:           "usd",
		StartDate:          s.GetNow(),
		CurrentPeriodStart: s.GetNow(),
		CurrentPeriodEnd:   periodEnd,
		Gateway:            types.PaymentGatewayStripe,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().SubRepo.Create(ctx, s.testData.sub))

	nextStart := s.testData.sub.CurrentPeriodEnd
	nextEnd, err := types.NextBillingDate(nextStart, types.BILLING_CYCLE_MONTHLY)
	s.Require().NoError(err)
	s.testData.openInvoice = &invoice.Invoice{
		ID:             "inv_test_open",
		SubscriptionID: &s.testData.sub.ID,
		InvoiceNumber:  "IN-000001",
		InvoiceStatus:  types.InvoiceStatusOpen,
		Currency:       "usd",
		Subtotal:       decimal.NewFromInt(29),
		Tax:            decimal.Zero,
		Discount:       decimal.Zero,
		Total:          decimal.NewFromInt(29),
		AmountPaid:     decimal.Zero,
		AmountDue:      decimal.NewFromInt(29),
		PeriodStart:    &nextStart,
		PeriodEnd:      &nextEnd,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().InvoiceRepo.Create(ctx, s.testData.openInvoice))
}

func (s *PaymentServiceSuite) createOrder() *dto.OrderResponse {
	order, err := s.service.CreateOrder(s.GetContext(), types.PaymentGatewayStripe, &dto.CreateOrderRequest{
		InvoiceID: s.testData.openInvoice.ID,
	})
	s.Require().NoError(err)
	return order
}

func (s *PaymentServiceSuite) TestCreateOrder() {
	order := s.createOrder()

	s.NotEmpty(order.PaymentID)
	s.NotEmpty(order.PaymentReference)
	s.NotEmpty(order.GatewayOrderID)
	s.True(order.Amount.Equal(s.testData.openInvoice.AmountDue))
	s.Equal("usd", order.Currency)
	s.Equal(1, s.GetGatewayFakes().Stripe.CreateOrderCalls)

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPending, pmt.PaymentStatus)
	s.Require().NotNil(pmt.GatewayOrderID)
	s.Equal(order.GatewayOrderID, *pmt.GatewayOrderID)

	logs, err := s.GetStores().PaymentLogRepo.ListByPayment(s.GetContext(), order.PaymentID)
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(types.PaymentLogActionCreateOrder, logs[0].Action)
	s.Equal(types.PaymentLogStatusSuccess, logs[0].Status)
}

func (s *PaymentServiceSuite) TestCreateOrderRejectsPaidInvoice() {
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.openInvoice.ID)
	s.Require().NoError(err)
	inv.MarkPaid(s.GetNow())
	s.Require().NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	_, err = s.service.CreateOrder(s.GetContext(), types.PaymentGatewayStripe, &dto.CreateOrderRequest{
		InvoiceID: inv.ID,
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *PaymentServiceSuite) TestVerifyPaymentSettlesInvoiceAndRenews() {
	order := s.createOrder()

	resp, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_settled_1",
		Signature:        "sig",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, resp.PaymentStatus)
	s.Require().NotNil(resp.GatewayPaymentID)
	s.Equal("pi_settled_1", *resp.GatewayPaymentID)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.openInvoice.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.True(inv.AmountDue.IsZero())

	// The invoice covered the upcoming period, so settling it completes
	// the renewal that failed earlier.
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.True(sub.CurrentPeriodStart.Equal(*s.testData.openInvoice.PeriodStart))
	s.Equal(2, sub.Version)
}

func (s *PaymentServiceSuite) TestVerifyPaymentSettlesOpeningInvoice() {
	ctx := s.GetContext()

	// An invoice covering the current period is the signup invoice; the
	// subscription waits on it before going active.
	start := s.testData.sub.CurrentPeriodStart
	end := s.testData.sub.CurrentPeriodEnd
	opening := &invoice.Invoice{
		ID:             "inv_test_opening",
		SubscriptionID: &s.testData.sub.ID,
		InvoiceNumber:  "IN-000002",
		InvoiceStatus:  types.InvoiceStatusOpen,
		Currency:       "usd",
		Subtotal:       decimal.NewFromInt(29),
		Tax:            decimal.Zero,
		Discount:       decimal.Zero,
		Total:          decimal.NewFromInt(29),
		AmountPaid:     decimal.Zero,
		AmountDue:      decimal.NewFromInt(29),
		PeriodStart:    &start,
		PeriodEnd:      &end,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().InvoiceRepo.Create(ctx, opening))

	order, err := s.service.CreateOrder(ctx, types.PaymentGatewayStripe, &dto.CreateOrderRequest{
		InvoiceID: opening.ID,
	})
	s.Require().NoError(err)

	_, err = s.service.VerifyPayment(ctx, types.PaymentGatewayStripe, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_opening_1",
		Signature:        "sig",
	})
	s.Require().NoError(err)

	inv, err := s.GetStores().InvoiceRepo.Get(ctx, opening.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)

	// Settling the opening invoice activates without advancing the period.
	sub, err := s.GetStores().SubRepo.Get(ctx, s.testData.sub.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.True(sub.CurrentPeriodStart.Equal(start))
	s.Equal(1, sub.Version)
}

func (s *PaymentServiceSuite) TestVerifyPaymentReplayIsNoOp() {
	order := s.createOrder()

	req := &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_settled_2",
		Signature:        "sig",
	}
	_, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, req)
	s.Require().NoError(err)

	resp, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, req)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, resp.PaymentStatus)
	s.Equal(1, s.GetGatewayFakes().Stripe.VerifyCalls)
}

func (s *PaymentServiceSuite) TestVerifyPaymentDeclined() {
	order := s.createOrder()

	s.GetGatewayFakes().Stripe.VerifyResult = &types.GatewayResult{
		Succeeded:     false,
		FailureReason: "card_declined",
	}

	_, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_declined",
		Signature:        "sig",
	})
	s.Error(err)
	s.True(ierr.IsGatewayDeclined(err))

	pmt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), order.PaymentID)
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusFailed, pmt.PaymentStatus)
	s.Require().NotNil(pmt.FailureReason)
	s.Equal("card_declined", *pmt.FailureReason)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.openInvoice.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusOpen, inv.InvoiceStatus)
}

func (s *PaymentServiceSuite) TestVerifyPaymentGatewayMismatch() {
	order := s.createOrder()

	_, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayRazorpay, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_wrong_gateway",
		Signature:        "sig",
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.Equal(0, s.GetGatewayFakes().Razorpay.VerifyCalls)
}

func (s *PaymentServiceSuite) TestRegistrationFlow() {
	ctx := s.GetContext()

	maxRedemptions := int64(10)
	coup := &coupon.Coupon{
		ID:             "coup_welcome",
		Code:           "WELCOME10",
		DiscountType:   coupon.DiscountTypePercent,
		Amount:         decimal.NewFromInt(10),
		MaxRedemptions: &maxRedemptions,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().CouponRepo.Create(ctx, coup))

	order, err := s.service.CreateRegistrationOrder(ctx, types.PaymentGatewayRazorpay, &dto.RegistrationOrderRequest{
		PlanID:       s.testData.plan.ID,
		BillingCycle: types.BILLING_CYCLE_MONTHLY,
		Email:        "owner@newsite.example",
		CouponCode:   lo.ToPtr("WELCOME10"),
	})
	s.Require().NoError(err)
	// 29 minus the 10 percent welcome discount
	s.True(order.Amount.Equal(decimal.NewFromFloat(26.10)), "got %s", order.Amount)

	resp, err := s.service.VerifyRegistrationPayment(ctx, types.PaymentGatewayRazorpay, &dto.RegistrationVerifyRequest{
		PaymentReference: order.PaymentReference,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_signup_1",
		Signature:        "sig",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, resp.PaymentStatus)
	s.Require().NotNil(resp.InvoiceID)

	t, err := s.GetStores().TenantRepo.GetByEmail(ctx, "owner@newsite.example")
	s.Require().NoError(err)
	s.Equal(t.ID, resp.TenantID)

	sub, err := s.GetStores().SubRepo.GetActiveByTenant(ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(s.testData.plan.ID, sub.PlanID)

	inv, err := s.GetStores().InvoiceRepo.Get(ctx, *resp.InvoiceID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
	s.True(inv.Discount.Equal(decimal.NewFromFloat(2.90)), "got %s", inv.Discount)
	s.True(inv.Total.Equal(order.Amount))

	redeemed, err := s.GetStores().CouponRepo.Get(ctx, coup.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), redeemed.Redemptions)
}

func (s *PaymentServiceSuite) TestRefundPartialThenFull() {
	order := s.createOrder()
	_, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_refund_me",
		Signature:        "sig",
	})
	s.Require().NoError(err)

	partial := decimal.NewFromInt(9)
	resp, err := s.service.RefundPayment(s.GetContext(), order.PaymentID, &dto.RefundPaymentRequest{
		Amount: &partial,
		Reason: "goodwill",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusPartiallyRefunded, resp.PaymentStatus)
	s.True(resp.AmountRefunded.Equal(partial))

	// No amount means refund whatever remains.
	resp, err = s.service.RefundPayment(s.GetContext(), order.PaymentID, &dto.RefundPaymentRequest{})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusRefunded, resp.PaymentStatus)
	s.True(resp.AmountRefunded.Equal(resp.Amount))

	refunds, err := s.GetStores().PaymentRepo.ListRefunds(s.GetContext(), order.PaymentID)
	s.Require().NoError(err)
	s.Len(refunds, 2)
	s.Equal(2, s.GetGatewayFakes().Stripe.RefundCalls)
	s.Len(s.GetSink().SentOfKind(notification.KindRefundIssued), 2)
}

func (s *PaymentServiceSuite) TestRefundRejectsExcessAmount() {
	order := s.createOrder()
	_, err := s.service.VerifyPayment(s.GetContext(), types.PaymentGatewayStripe, &dto.VerifyPaymentRequest{
		PaymentID:        order.PaymentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pi_refund_cap",
		Signature:        "sig",
	})
	s.Require().NoError(err)

	excess := decimal.NewFromInt(100)
	_, err = s.service.RefundPayment(s.GetContext(), order.PaymentID, &dto.RefundPaymentRequest{
		Amount: &excess,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Equal(0, s.GetGatewayFakes().Stripe.RefundCalls)
}

func (s *PaymentServiceSuite) TestRefundRejectsPendingPayment() {
	order := s.createOrder()

	_, err := s.service.RefundPayment(s.GetContext(), order.PaymentID, &dto.RefundPaymentRequest{})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}
