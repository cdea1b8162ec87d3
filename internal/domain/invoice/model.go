package invoice

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is the monetary record for one billing period (or a one-off
// charge). Once the status leaves DRAFT the breakdown is frozen and the
// invariant amount_paid + amount_due == total must hold.
type Invoice struct {
	ID             string  `db:"id" json:"id"`
	SubscriptionID *string `db:"subscription_id" json:"subscription_id,omitempty"`

	// InvoiceNumber is the human-facing sequence, unique per tenant
	InvoiceNumber string `db:"invoice_number" json:"invoice_number"`

	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`

	Currency string          `db:"currency" json:"currency"`
	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax      decimal.Decimal `db:"tax" json:"tax"`
	Discount decimal.Decimal `db:"discount" json:"discount"`
	Total    decimal.Decimal `db:"total" json:"total"`

	AmountPaid decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	AmountDue  decimal.Decimal `db:"amount_due" json:"amount_due"`

	PeriodStart *time.Time `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `db:"period_end" json:"period_end,omitempty"`

	// GatewayInvoiceID correlates gateway webhook events to this row
	GatewayInvoiceID *string `db:"gateway_invoice_id" json:"gateway_invoice_id,omitempty"`

	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`

	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	types.BaseModel
}

// Validate enforces the monetary breakdown invariant for finalized
// invoices. A violated invariant is a ledger inconsistency, never
// silently repaired.
func (i *Invoice) Validate() error {
	if i.Currency == "" {
		return ierr.NewError("invoice currency is required").
			WithHint("Invoice currency is required").
			Mark(ierr.ErrValidation)
	}
	if i.Total.IsNegative() {
		return ierr.NewError("invoice total must not be negative").
			WithHint("Invoice total must not be negative").
			Mark(ierr.ErrValidation)
	}
	if i.InvoiceStatus != types.InvoiceStatusDraft {
		if !i.AmountPaid.Add(i.AmountDue).Equal(i.Total) {
			return ierr.NewError("invoice amounts do not reconcile").
				WithHint("Invoice amount_paid + amount_due must equal total").
				WithReportableDetails(map[string]any{
					"invoice_id":  i.ID,
					"amount_paid": i.AmountPaid.String(),
					"amount_due":  i.AmountDue.String(),
					"total":       i.Total.String(),
				}).
				Mark(ierr.ErrLedgerInconsistent)
		}
	}
	return nil
}

// MarkPaid settles the invoice in full. Safe to re-apply: marking an
// already paid invoice is a no-op.
func (i *Invoice) MarkPaid(at time.Time) bool {
	if i.InvoiceStatus == types.InvoiceStatusPaid {
		return false
	}
	i.InvoiceStatus = types.InvoiceStatusPaid
	i.AmountPaid = i.Total
	i.AmountDue = decimal.Zero
	i.PaidAt = &at
	return true
}
