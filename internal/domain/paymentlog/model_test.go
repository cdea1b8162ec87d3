package paymentlog

import (
	"testing"

	"github.com/siteassist/billing-engine/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestMaskReplacesSensitiveKeys(t *testing.T) {
	in := types.Metadata{
		"order_id":      "order_123",
		"card_number":   "4242424242424242",
		"cvv":           "123",
		"client_secret": "pi_secret_abc",
	}

	out := Mask(in)

	assert.Equal(t, "order_123", out["order_id"])
	assert.Equal(t, "****", out["card_number"])
	assert.Equal(t, "****", out["cvv"])
	assert.Equal(t, "****", out["client_secret"])

	// The original payload stays untouched.
	assert.Equal(t, "4242424242424242", in["card_number"])
}

func TestMaskNil(t *testing.T) {
	assert.Nil(t, Mask(nil))
}
