package types

import (
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus represents the current state of an invoice in its lifecycle
type InvoiceStatus string

const (
	// InvoiceStatusDraft indicates the invoice is still mutable
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusOpen indicates the invoice is finalized and awaiting payment
	InvoiceStatusOpen InvoiceStatus = "OPEN"
	// InvoiceStatusPaid indicates the invoice has been paid in full
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusVoided indicates the invoice is no longer valid for payment
	InvoiceStatusVoided InvoiceStatus = "VOIDED"
	// InvoiceStatusUncollectible indicates payment is not expected
	InvoiceStatusUncollectible InvoiceStatus = "UNCOLLECTIBLE"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusOpen,
		InvoiceStatusPaid,
		InvoiceStatusVoided,
		InvoiceStatusUncollectible,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invalid invoice status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceFilter represents filters for invoice queries
type InvoiceFilter struct {
	Filter
	TenantID       string          `form:"tenant_id"`
	SubscriptionID string          `form:"subscription_id"`
	InvoiceStatus  []InvoiceStatus `form:"invoice_status"`
}
