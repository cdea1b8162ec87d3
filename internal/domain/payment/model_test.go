package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending() *Payment {
	return &Payment{
		ID:               "pay_test",
		PaymentReference: "PR-TEST01",
		Gateway:          types.PaymentGatewayStripe,
		PaymentStatus:    types.PaymentStatusPending,
		Currency:         "usd",
		Amount:           decimal.NewFromInt(29),
		AmountRefunded:   decimal.Zero,
	}
}

func TestTransitionToForwardOnly(t *testing.T) {
	now := time.Now().UTC()

	p := pending()
	changed, err := p.TransitionTo(types.PaymentStatusSucceeded, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.PaymentStatusSucceeded, p.PaymentStatus)
	require.NotNil(t, p.SucceededAt)
	assert.True(t, p.SucceededAt.Equal(now))

	// Settled money never un-settles.
	_, err = p.TransitionTo(types.PaymentStatusFailed, now)
	require.Error(t, err)
	assert.Equal(t, types.PaymentStatusSucceeded, p.PaymentStatus)

	changed, err = p.TransitionTo(types.PaymentStatusPartiallyRefunded, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = p.TransitionTo(types.PaymentStatusRefunded, now)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = p.TransitionTo(types.PaymentStatusSucceeded, now)
	require.Error(t, err)
}

func TestTransitionToSameStatusIsNoOp(t *testing.T) {
	p := pending()
	changed, err := p.TransitionTo(types.PaymentStatusPending, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTransitionToFailedStampsTime(t *testing.T) {
	now := time.Now().UTC()
	p := pending()

	changed, err := p.TransitionTo(types.PaymentStatusFailed, now)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, p.FailedAt)
	assert.True(t, p.FailedAt.Equal(now))

	// Terminal failure accepts nothing further.
	_, err = p.TransitionTo(types.PaymentStatusSucceeded, now)
	require.Error(t, err)
}

func TestRefundableAmount(t *testing.T) {
	p := pending()
	assert.True(t, p.RefundableAmount().Equal(decimal.NewFromInt(29)))

	p.AmountRefunded = decimal.NewFromInt(9)
	assert.True(t, p.RefundableAmount().Equal(decimal.NewFromInt(20)))
}

func TestValidate(t *testing.T) {
	p := pending()
	require.NoError(t, p.Validate())

	p.Amount = decimal.Zero
	require.Error(t, p.Validate())

	p = pending()
	p.Currency = ""
	require.Error(t, p.Validate())

	p = pending()
	p.Gateway = types.PaymentGateway("cash")
	require.Error(t, p.Validate())
}
