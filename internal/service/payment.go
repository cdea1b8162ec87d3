package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/invoice"
	"github.com/siteassist/billing-engine/internal/domain/payment"
	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	"github.com/siteassist/billing-engine/internal/domain/tenant"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/gateway"
	"github.com/siteassist/billing-engine/internal/notification"
	"github.com/siteassist/billing-engine/internal/types"
)

// PaymentService owns the payment rows and every direct gateway
// interaction. A payment row is created before the gateway is contacted
// so each external call has a local anchor to reconcile against.
type PaymentService interface {
	CreateOrder(ctx context.Context, gw types.PaymentGateway, req *dto.CreateOrderRequest) (*dto.OrderResponse, error)
	VerifyPayment(ctx context.Context, gw types.PaymentGateway, req *dto.VerifyPaymentRequest) (*dto.PaymentResponse, error)

	// Registration-time variants run before a tenant exists; the payment
	// is keyed by its reference and the tenant materializes on success.
	CreateRegistrationOrder(ctx context.Context, gw types.PaymentGateway, req *dto.RegistrationOrderRequest) (*dto.OrderResponse, error)
	VerifyRegistrationPayment(ctx context.Context, gw types.PaymentGateway, req *dto.RegistrationVerifyRequest) (*dto.PaymentResponse, error)

	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, filter *types.Filter) (*dto.ListPaymentsResponse, error)
	RefundPayment(ctx context.Context, id string, req *dto.RefundPaymentRequest) (*dto.PaymentResponse, error)

	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.Filter) (*dto.ListInvoicesResponse, error)
	ListSubscriptionInvoices(ctx context.Context, subscriptionID string) (*dto.ListInvoicesResponse, error)

	ListPaymentLogs(ctx context.Context, filter *types.Filter) (*dto.ListPaymentLogsResponse, error)
}

type paymentService struct {
	ServiceParams
	subSvc    SubscriptionService
	couponSvc CouponService
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
		subSvc:        NewSubscriptionService(params),
		couponSvc:     NewCouponService(params),
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, gw types.PaymentGateway, req *dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adapter, err := s.Gateways.Get(gw)
	if err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.InvoiceStatus != types.InvoiceStatusOpen || !inv.AmountDue.IsPositive() {
		return nil, ierr.NewError("invoice is not payable").
			WithHintf("Invoice %s has nothing due", inv.ID).
			WithReportableDetails(map[string]any{
				"invoice_id":     inv.ID,
				"invoice_status": inv.InvoiceStatus,
				"amount_due":     inv.AmountDue.String(),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	pmt := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		InvoiceID:        &inv.ID,
		PaymentReference: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT_REFERENCE),
		Gateway:          gw,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         inv.Currency,
		Amount:           inv.AmountDue,
		AmountRefunded:   decimal.Zero,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := pmt.Validate(); err != nil {
		return nil, err
	}
	if err := s.PaymentRepo.Create(ctx, pmt); err != nil {
		return nil, err
	}

	result, err := s.callCreateOrder(ctx, adapter, pmt, "", map[string]string{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
	})
	if err != nil {
		return nil, err
	}

	return &dto.OrderResponse{
		PaymentID:        pmt.ID,
		PaymentReference: pmt.PaymentReference,
		GatewayOrderID:   lo.FromPtr(pmt.GatewayOrderID),
		ClientSecret:     result.ClientSecret,
		Amount:           pmt.Amount,
		Currency:         pmt.Currency,
	}, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, gw types.PaymentGateway, req *dto.VerifyPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pmt, err := s.PaymentRepo.Get(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	return s.verify(ctx, gw, pmt, &gateway.VerifyRequest{
		PaymentID:        pmt.ID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
}

func (s *paymentService) CreateRegistrationOrder(ctx context.Context, gw types.PaymentGateway, req *dto.RegistrationOrderRequest) (*dto.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adapter, err := s.Gateways.Get(gw)
	if err != nil {
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

	amount := price
	if req.CouponCode != nil && *req.CouponCode != "" {
		check, err := s.couponSvc.ValidateCoupon(ctx, *req.CouponCode, price)
		if err != nil {
			return nil, err
		}
		if !check.Valid {
			return nil, ierr.NewError("coupon is not valid").
				WithHint(check.Reason).
				Mark(ierr.ErrValidation)
		}
		amount = price.Sub(check.Discount)
	}

	// The signup is replayed from payment metadata when the payment
	// settles; until then nothing else exists.
	meta := types.Metadata{
		"plan_id":       p.ID,
		"billing_cycle": string(req.BillingCycle),
		"currency":      currency,
		"email":         req.Email,
	}
	if req.CouponCode != nil {
		meta["coupon_code"] = *req.CouponCode
	}

	pmt := &payment.Payment{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		PaymentReference: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_PAYMENT_REFERENCE),
		Gateway:          gw,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         currency,
		Amount:           amount,
		AmountRefunded:   decimal.Zero,
		Metadata:         meta,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := pmt.Validate(); err != nil {
		return nil, err
	}
	if err := s.PaymentRepo.Create(ctx, pmt); err != nil {
		return nil, err
	}

	result, err := s.callCreateOrder(ctx, adapter, pmt, req.Email, map[string]string{
		"plan_id": p.ID,
	})
	if err != nil {
		return nil, err
	}

	return &dto.OrderResponse{
		PaymentID:        pmt.ID,
		PaymentReference: pmt.PaymentReference,
		GatewayOrderID:   lo.FromPtr(pmt.GatewayOrderID),
		ClientSecret:     result.ClientSecret,
		Amount:           pmt.Amount,
		Currency:         pmt.Currency,
	}, nil
}

func (s *paymentService) VerifyRegistrationPayment(ctx context.Context, gw types.PaymentGateway, req *dto.RegistrationVerifyRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pmt, err := s.PaymentRepo.GetByPaymentReference(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}

	return s.verify(ctx, gw, pmt, &gateway.VerifyRequest{
		PaymentID:        pmt.ID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
}

// verify settles a client-confirmed payment against the gateway. It fails
// closed: only a gateway-confirmed success moves money in the ledger.
func (s *paymentService) verify(ctx context.Context, gw types.PaymentGateway, pmt *payment.Payment, req *gateway.VerifyRequest) (*dto.PaymentResponse, error) {
	if pmt.Gateway != gw {
		return nil, ierr.NewError("gateway mismatch").
			WithHintf("Payment was opened on %s", pmt.Gateway).
			Mark(ierr.ErrInvalidOperation)
	}

	// A replayed verification of a settled payment is a no-op.
	if pmt.PaymentStatus == types.PaymentStatusSucceeded {
		return &dto.PaymentResponse{Payment: pmt}, nil
	}
	if pmt.PaymentStatus != types.PaymentStatusPending {
		return nil, ierr.NewError("payment is not verifiable").
			WithHintf("Payment is already %s", pmt.PaymentStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	adapter, err := s.Gateways.Get(gw)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := adapter.VerifyOrCapture(ctx, req)
	if err != nil {
		s.logGateway(ctx, &pmt.ID, gw, types.PaymentLogActionVerify, types.PaymentLogStatusFailure,
			nil, nil, nil, err, started)
		return nil, err
	}

	now := time.Now().UTC()

	if !result.Succeeded {
		s.logGateway(ctx, &pmt.ID, gw, types.PaymentLogActionVerify, types.PaymentLogStatusFailure,
			&result.GatewayReference, nil, types.Metadata{"failure_reason": result.FailureReason}, nil, started)

		if _, terr := pmt.TransitionTo(types.PaymentStatusFailed, now); terr == nil {
			pmt.FailureReason = &result.FailureReason
			if result.GatewayReference != "" {
				pmt.GatewayPaymentID = &result.GatewayReference
			}
			if uerr := s.PaymentRepo.Update(ctx, pmt); uerr != nil {
				return nil, uerr
			}
		}
		return nil, ierr.NewError("payment verification failed").
			WithHint(result.FailureReason).
			WithReportableDetails(map[string]any{"payment_id": pmt.ID}).
			Mark(ierr.ErrGatewayDeclined)
	}

	s.logGateway(ctx, &pmt.ID, gw, types.PaymentLogActionVerify, types.PaymentLogStatusSuccess,
		&result.GatewayReference, nil, nil, nil, started)

	if pmt.InvoiceID != nil {
		if err := s.settleInvoicePayment(ctx, pmt, result.GatewayReference, now); err != nil {
			return nil, err
		}
	} else {
		if err := s.settleRegistrationPayment(ctx, pmt, result.GatewayReference, now); err != nil {
			return nil, err
		}
	}

	return &dto.PaymentResponse{Payment: pmt}, nil
}

// settleInvoicePayment records a confirmed payment against its invoice
// and, for subscription invoices, hands the renewal to the lifecycle
// service.
func (s *paymentService) settleInvoicePayment(ctx context.Context, pmt *payment.Payment, gatewayRef string, now time.Time) error {
	inv, err := s.InvoiceRepo.Get(ctx, *pmt.InvoiceID)
	if err != nil {
		return err
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if _, err := pmt.TransitionTo(types.PaymentStatusSucceeded, now); err != nil {
			return err
		}
		if gatewayRef != "" {
			pmt.GatewayPaymentID = &gatewayRef
		}
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return err
		}
		if inv.MarkPaid(now) {
			return s.InvoiceRepo.Update(ctx, inv)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A paid invoice for the upcoming period completes the renewal the
	// scheduler could not; a paid opening invoice activates the
	// subscription.
	if inv.SubscriptionID != nil {
		sub, err := s.SubRepo.Get(ctx, *inv.SubscriptionID)
		if err != nil {
			return err
		}
		if inv.PeriodStart != nil && inv.PeriodStart.Equal(sub.CurrentPeriodEnd) {
			if err := s.subSvc.ProcessRenewalSuccess(ctx, sub.ID, nil); err != nil {
				return err
			}
		} else if inv.PeriodStart != nil && inv.PeriodStart.Equal(sub.CurrentPeriodStart) {
			if err := s.subSvc.ActivateOnFirstPayment(ctx, sub.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// settleRegistrationPayment materializes the tenant, subscription, and
// first invoice from the metadata captured at order time.
func (s *paymentService) settleRegistrationPayment(ctx context.Context, pmt *payment.Payment, gatewayRef string, now time.Time) error {
	planID := pmt.Metadata["plan_id"]
	email := pmt.Metadata["email"]
	cycle := types.BillingCycle(pmt.Metadata["billing_cycle"])
	if planID == "" || email == "" {
		return ierr.NewError("registration payment has incomplete metadata").
			WithHint("The payment cannot be linked to a signup").
			WithReportableDetails(map[string]any{"payment_id": pmt.ID}).
			Mark(ierr.ErrLedgerInconsistent)
	}

	t, err := s.TenantRepo.GetByEmail(ctx, email)
	if ierr.IsNotFound(err) {
		t = &tenant.Tenant{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT),
			Name:      email,
			Email:     email,
			Status:    types.StatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.TenantRepo.Create(ctx, t); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	ctx = types.SetTenantID(ctx, t.ID)

	p, err := s.PlanRepo.Get(ctx, planID)
	if err != nil {
		return err
	}
	price, err := p.PriceFor(cycle, pmt.Currency)
	if err != nil {
		return err
	}
	discount := price.Sub(pmt.Amount)

	periodEnd, err := types.NextBillingDate(now, cycle)
	if err != nil {
		return err
	}

	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:             p.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		BillingCycle:       cycle,
		Currency:           pmt.Currency,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		Gateway:            pmt.Gateway,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}

		number, err := s.InvoiceRepo.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		inv := &invoice.Invoice{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
			SubscriptionID: &sub.ID,
			InvoiceNumber:  number,
			InvoiceStatus:  types.InvoiceStatusPaid,
			Currency:       pmt.Currency,
			Subtotal:       price,
			Tax:            decimal.Zero,
			Discount:       discount,
			Total:          pmt.Amount,
			AmountPaid:     pmt.Amount,
			AmountDue:      decimal.Zero,
			PeriodStart:    &now,
			PeriodEnd:      &periodEnd,
			PaidAt:         &now,
			BaseModel:      types.GetDefaultBaseModel(ctx),
		}
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return err
		}

		if code := pmt.Metadata["coupon_code"]; code != "" {
			if _, err := s.couponSvc.RedeemCoupon(ctx, code, price, &sub.ID, &inv.ID); err != nil {
				return err
			}
		}

		if _, err := pmt.TransitionTo(types.PaymentStatusSucceeded, now); err != nil {
			return err
		}
		pmt.InvoiceID = &inv.ID
		pmt.TenantID = t.ID
		if gatewayRef != "" {
			pmt.GatewayPaymentID = &gatewayRef
		}
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return err
		}

		return s.SubRepo.AppendHistory(ctx, &subscription.HistoryEntry{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_EVENT),
			SubscriptionID: sub.ID,
			TenantID:       t.ID,
			EventType:      types.SubscriptionEventCreated,
			ToStatus:       types.SubscriptionStatusActive,
			ToPlanID:       &p.ID,
			Reason:         "activated on first payment",
			CreatedAt:      now,
		})
	})
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	pmt, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentResponse{Payment: pmt}, nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter *types.Filter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = lo.ToPtr(types.GetDefaultFilter())
	}

	payments, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.PaymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListPaymentsResponse{
		Items: lo.Map(payments, func(p *payment.Payment, _ int) *dto.PaymentResponse {
			return &dto.PaymentResponse{Payment: p}
		}),
		Pagination: types.NewPaginationResponse(count, filter.Limit, filter.Offset),
	}, nil
}

func (s *paymentService) ListPaymentLogs(ctx context.Context, filter *types.Filter) (*dto.ListPaymentLogsResponse, error) {
	if filter == nil {
		filter = lo.ToPtr(types.GetDefaultFilter())
	}

	logs, err := s.PaymentLogRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListPaymentLogsResponse{
		Items: lo.Map(logs, func(l *paymentlog.Log, _ int) *dto.PaymentLogResponse {
			return &dto.PaymentLogResponse{Log: l}
		}),
		Pagination: types.NewPaginationResponse(len(logs), filter.Limit, filter.Offset),
	}, nil
}

func (s *paymentService) RefundPayment(ctx context.Context, id string, req *dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	pmt, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if pmt.PaymentStatus != types.PaymentStatusSucceeded &&
		pmt.PaymentStatus != types.PaymentStatusPartiallyRefunded {
		return nil, ierr.NewError("payment is not refundable").
			WithHintf("Payment is %s", pmt.PaymentStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	if pmt.GatewayPaymentID == nil {
		return nil, ierr.NewError("payment has no gateway reference").
			WithHint("The payment cannot be refunded without a settled gateway charge").
			Mark(ierr.ErrInvalidOperation)
	}

	refundable := pmt.RefundableAmount()
	amount := refundable
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(refundable) {
		return nil, ierr.NewError("invalid refund amount").
			WithHintf("Refund must be positive and at most %s", refundable.String()).
			WithReportableDetails(map[string]any{
				"requested":  amount.String(),
				"refundable": refundable.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	adapter, err := s.Gateways.Get(pmt.Gateway)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := adapter.Refund(ctx, &gateway.RefundRequest{
		PaymentID:        pmt.ID,
		GatewayPaymentID: *pmt.GatewayPaymentID,
		Amount:           amount,
		Currency:         pmt.Currency,
		Reason:           req.Reason,
	})
	if err != nil {
		s.logGateway(ctx, &pmt.ID, pmt.Gateway, types.PaymentLogActionRefund, types.PaymentLogStatusFailure,
			nil, nil, nil, err, started)
		return nil, err
	}

	s.logGateway(ctx, &pmt.ID, pmt.Gateway, types.PaymentLogActionRefund, types.PaymentLogStatusSuccess,
		&result.GatewayReference, types.Metadata{"amount": amount.String()}, nil, nil, started)

	now := time.Now().UTC()
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
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

		var reason *string
		if req.Reason != "" {
			reason = &req.Reason
		}
		var gatewayRefundID *string
		if result.GatewayReference != "" {
			gatewayRefundID = &result.GatewayReference
		}
		return s.PaymentRepo.CreateRefund(ctx, &payment.Refund{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_REFUND),
			PaymentID:       pmt.ID,
			Amount:          amount,
			Currency:        pmt.Currency,
			GatewayRefundID: gatewayRefundID,
			Reason:          reason,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		})
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Kind:      notification.KindRefundIssued,
		TenantID:  pmt.TenantID,
		PaymentID: pmt.ID,
		Data:      map[string]string{"amount": amount.String(), "currency": pmt.Currency},
	})

	s.Logger.Infow("refund issued",
		"payment_id", pmt.ID,
		"amount", amount.String(),
		"status", pmt.PaymentStatus)
	return &dto.PaymentResponse{Payment: pmt}, nil
}

func (s *paymentService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.InvoiceResponse{Invoice: inv}, nil
}

func (s *paymentService) ListInvoices(ctx context.Context, filter *types.Filter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = lo.ToPtr(types.GetDefaultFilter())
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.InvoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListInvoicesResponse{
		Items: lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
			return &dto.InvoiceResponse{Invoice: inv}
		}),
		Pagination: types.NewPaginationResponse(count, filter.Limit, filter.Offset),
	}, nil
}

func (s *paymentService) ListSubscriptionInvoices(ctx context.Context, subscriptionID string) (*dto.ListInvoicesResponse, error) {
	invoices, err := s.InvoiceRepo.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return &dto.ListInvoicesResponse{
		Items: lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
			return &dto.InvoiceResponse{Invoice: inv}
		}),
		Pagination: types.NewPaginationResponse(len(invoices), len(invoices), 0),
	}, nil
}

// callCreateOrder opens the gateway order for an already persisted
// payment row, recording the round trip either way.
func (s *paymentService) callCreateOrder(ctx context.Context, adapter gateway.Adapter, pmt *payment.Payment, email string, meta map[string]string) (*types.GatewayResult, error) {
	started := time.Now()
	result, err := adapter.CreateOrder(ctx, &gateway.CreateOrderRequest{
		PaymentID:        pmt.ID,
		PaymentReference: pmt.PaymentReference,
		Amount:           pmt.Amount,
		Currency:         pmt.Currency,
		CustomerEmail:    email,
		Description:      "Payment " + pmt.PaymentReference,
		Metadata:         meta,
	})
	if err != nil {
		s.logGateway(ctx, &pmt.ID, pmt.Gateway, types.PaymentLogActionCreateOrder, types.PaymentLogStatusFailure,
			nil, types.Metadata(meta), nil, err, started)
		return nil, err
	}

	s.logGateway(ctx, &pmt.ID, pmt.Gateway, types.PaymentLogActionCreateOrder, types.PaymentLogStatusSuccess,
		&result.GatewayReference, types.Metadata(meta), nil, nil, started)

	if result.GatewayReference != "" {
		pmt.GatewayOrderID = &result.GatewayReference
		if err := s.PaymentRepo.Update(ctx, pmt); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// logGateway appends to the payment audit trail. Logging never fails the
// payment it describes.
func (s *paymentService) logGateway(ctx context.Context, paymentID *string, gw types.PaymentGateway, action types.PaymentLogAction, status types.PaymentLogStatus, gatewayRef *string, request, response types.Metadata, callErr error, started time.Time) {
	var errMsg *string
	if callErr != nil {
		msg := callErr.Error()
		errMsg = &msg
	}
	if gatewayRef != nil && *gatewayRef == "" {
		gatewayRef = nil
	}

	entry := &paymentlog.Log{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_LOG),
		PaymentID:        paymentID,
		Gateway:          gw,
		Action:           action,
		Status:           status,
		GatewayReference: gatewayRef,
		Request:          request,
		Response:         response,
		ErrorMessage:     errMsg,
		DurationMs:       time.Since(started).Milliseconds(),
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentLogRepo.Create(ctx, entry); err != nil {
		s.Logger.Errorw("failed to write payment log",
			"action", action,
			"gateway", gw,
			"error", err)
	}
}
