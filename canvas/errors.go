package canvas

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Canvas API, carrying enough
// context to tell an expired token from a missing quiz from a throttle.
type APIError struct {
	operation  string
	statusCode int
	message    string
}

func newAPIError(operation string, statusCode int, message string) *APIError {
	return &APIError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.operation, e.message, e.statusCode)
}

// Operation returns the high-level API call that failed.
func (e *APIError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code of the failed response.
func (e *APIError) StatusCode() int { return e.statusCode }

// Message returns the error text extracted from the response body.
func (e *APIError) Message() string { return e.message }

// IsNotFound reports whether err is a Canvas 404.
func IsNotFound(err error) bool {
	return HasStatusCode(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a Canvas 401, usually an expired
// or revoked access token.
func IsUnauthorized(err error) bool {
	return HasStatusCode(err, http.StatusUnauthorized)
}

// IsForbidden reports whether err is a Canvas 403; the token works but
// lacks the enrollment needed for the course.
func IsForbidden(err error) bool {
	return HasStatusCode(err, http.StatusForbidden)
}

// IsRateLimited reports whether err is a Canvas 429 throttle response.
func IsRateLimited(err error) bool {
	return HasStatusCode(err, http.StatusTooManyRequests)
}

// HasStatusCode reports whether err is an APIError with the given status.
func HasStatusCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.statusCode == code
}
