package errors

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestBuilderMarksSentinel(t *testing.T) {
	err := NewError("plan not found").
		WithHint("Plan growth was not found").
		Mark(ErrNotFound)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "Plan growth was not found", errors.FlattenHints(err))
}

func TestBuilderWrapsUpstreamError(t *testing.T) {
	cause := errors.New("connection reset")
	err := WithError(cause).
		WithHint("Payment could not be completed").
		Mark(ErrGatewayTransient)

	assert.True(t, IsGatewayTransient(err))
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatusFromErr(t *testing.T) {
	declined := NewError("card declined").Mark(ErrGatewayDeclined)
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatusFromErr(declined))

	conflict := NewError("stale version").Mark(ErrVersionConflict)
	assert.Equal(t, http.StatusConflict, HTTPStatusFromErr(conflict))

	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(errors.New("unmapped")))
}
