package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownContentType is returned for content types missing from the registry.
var ErrUnknownContentType = errors.New("unknown content type")

// TransportError is a network-level failure reaching the API.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIResponseError is an HTTP response with a status the client does not accept.
type APIResponseError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *APIResponseError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsRetryable reports whether err is worth another attempt: transport
// failures and server-side (5xx) responses.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var respErr *APIResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500
	}
	return false
}
