package invoice

import (
	"testing"
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInvoice() *Invoice {
	return &Invoice{
		ID:            "inv_test",
		InvoiceNumber: "IN-000042",
		InvoiceStatus: types.InvoiceStatusOpen,
		Currency:      "usd",
		Subtotal:      decimal.NewFromInt(29),
		Tax:           decimal.Zero,
		Discount:      decimal.Zero,
		Total:         decimal.NewFromInt(29),
		AmountPaid:    decimal.Zero,
		AmountDue:     decimal.NewFromInt(29),
	}
}

func TestMarkPaid(t *testing.T) {
	now := time.Now().UTC()
	inv := openInvoice()

	require.True(t, inv.MarkPaid(now))
	assert.Equal(t, types.InvoiceStatusPaid, inv.InvoiceStatus)
	assert.True(t, inv.AmountPaid.Equal(inv.Total))
	assert.True(t, inv.AmountDue.IsZero())
	require.NotNil(t, inv.PaidAt)
	assert.True(t, inv.PaidAt.Equal(now))

	// A repeat settlement changes nothing.
	later := now.Add(time.Hour)
	require.False(t, inv.MarkPaid(later))
	assert.True(t, inv.PaidAt.Equal(now))
}

func TestValidateReconciliation(t *testing.T) {
	inv := openInvoice()
	require.NoError(t, inv.Validate())

	inv.AmountDue = decimal.NewFromInt(10)
	err := inv.Validate()
	require.Error(t, err)
	assert.True(t, ierr.IsLedgerInconsistent(err))

	// Draft invoices are still being assembled and skip the check.
	inv.InvoiceStatus = types.InvoiceStatusDraft
	require.NoError(t, inv.Validate())
}

func TestValidateBasics(t *testing.T) {
	inv := openInvoice()
	inv.Currency = ""
	require.Error(t, inv.Validate())

	inv = openInvoice()
	inv.Total = decimal.NewFromInt(-1)
	require.Error(t, inv.Validate())
}
