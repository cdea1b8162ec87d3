package httpclient

import (
	goerrors "errors"
	"fmt"
	"net/http"

	ierr "github.com/siteassist/billing-engine/internal/errors"
)

// Error represents an HTTP client error
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d", ierr.ErrCodeHTTPClient, e.StatusCode)
}

func (e *Error) Is(target error) bool {
	return target == ierr.ErrHTTPClient
}

// Transient reports whether the failure may still succeed out-of-band
// (gateway 5xx or throttling) and should be reconciled via webhooks.
func (e *Error) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewError creates a new HTTP client error
func NewError(statusCode int, response []byte) *Error {
	return &Error{
		StatusCode: statusCode,
		Response:   response,
	}
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if goerrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
