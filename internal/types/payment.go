package types

import (
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus is the state of a payment transaction. A payment moves
// forward only; once SUCCEEDED the only allowed transitions are to
// REFUNDED or PARTIALLY_REFUNDED, recorded via child refund rows.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Invalid payment status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CanTransitionTo enforces the forward-only status machine.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusSucceeded || next == PaymentStatusFailed
	case PaymentStatusSucceeded:
		return next == PaymentStatusRefunded || next == PaymentStatusPartiallyRefunded
	case PaymentStatusPartiallyRefunded:
		return next == PaymentStatusRefunded || next == PaymentStatusPartiallyRefunded
	default:
		return false
	}
}

// PaymentFilter represents filters for payment queries
type PaymentFilter struct {
	Filter
	TenantID      string          `form:"tenant_id"`
	InvoiceID     string          `form:"invoice_id"`
	PaymentStatus []PaymentStatus `form:"payment_status"`
	Gateway       PaymentGateway  `form:"gateway"`
}
