package paymentlog

import (
	"github.com/siteassist/billing-engine/internal/types"
)

// Log is the append-only audit trail of every gateway interaction.
// Request and response bodies are stored with secrets masked before the
// row is written, never after.
type Log struct {
	ID        string  `db:"id" json:"id"`
	PaymentID *string `db:"payment_id" json:"payment_id,omitempty"`

	Gateway types.PaymentGateway   `db:"gateway" json:"gateway"`
	Action  types.PaymentLogAction `db:"action" json:"action"`
	Status  types.PaymentLogStatus `db:"status" json:"status"`

	// GatewayReference is whatever identifier the gateway returned for
	// this interaction, useful when PaymentID is unknown (orphans).
	GatewayReference *string `db:"gateway_reference" json:"gateway_reference,omitempty"`

	Request  types.Metadata `db:"request" json:"request,omitempty"`
	Response types.Metadata `db:"response" json:"response,omitempty"`

	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	// DurationMs is wall time of the gateway round trip
	DurationMs int64 `db:"duration_ms" json:"duration_ms"`

	types.BaseModel
}

// maskedKeys lists request/response fields that never reach a log row.
var maskedKeys = map[string]struct{}{
	"card_number":    {},
	"cvv":            {},
	"cvc":            {},
	"client_secret":  {},
	"secret":         {},
	"key_secret":     {},
	"authorization":  {},
	"webhook_secret": {},
}

// Mask replaces sensitive values in a payload copy. The input map is
// not modified.
func Mask(payload types.Metadata) types.Metadata {
	if payload == nil {
		return nil
	}
	out := make(types.Metadata, len(payload))
	for k, v := range payload {
		if _, sensitive := maskedKeys[k]; sensitive {
			out[k] = "****"
			continue
		}
		out[k] = v
	}
	return out
}
