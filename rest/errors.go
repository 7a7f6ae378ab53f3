package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for common failure modes. Use errors.Is to test for them
// regardless of how many layers wrapped the original error.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrUnauthenticated is returned when the server rejects the credentials.
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrForbidden is returned when the credentials lack permission.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrRateLimited is returned when the server throttles the client.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerError is returned for 5xx responses.
	ErrServerError = errors.New("server error")

	// ErrValidation is returned when the server rejects the request payload.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid response body")
)

// Kind classifies an API failure into one of the taxonomy buckets.
type Kind int

const (
	// KindTransport covers network failures and unclassifiable statuses.
	KindTransport Kind = iota
	// KindValidation covers 422 responses.
	KindValidation
	// KindAuthentication covers 401 responses.
	KindAuthentication
	// KindAuthorization covers 403 responses.
	KindAuthorization
	// KindNotFound covers 404 responses.
	KindNotFound
	// KindRateLimit covers 429 responses.
	KindRateLimit
	// KindClient covers the remaining 4xx responses.
	KindClient
	// KindServer covers 5xx responses.
	KindServer
)

// String returns a stable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// sentinel maps a kind to the sentinel error it matches under errors.Is.
func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuthentication:
		return ErrUnauthenticated
	case KindAuthorization:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindRateLimit:
		return ErrRateLimited
	case KindServer:
		return ErrServerError
	default:
		return nil
	}
}

// APIError represents a failed exchange with the remote API. It keeps the
// raw status, the decoded response body and enough context to retry or
// report the failure.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Endpoint   string
	Method     string
	Body       map[string]interface{}

	// RetryAfter is the server-provided backoff hint, zero when absent.
	RetryAfter time.Duration
	// RateLimitRemaining is the remaining quota hint, -1 when unknown.
	RateLimitRemaining int
	// RateLimitReset is the quota reset hint, zero when unknown.
	RateLimitReset time.Time

	cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: %s error (status %d): %s",
			e.Method, e.Endpoint, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s error: %s", e.Method, e.Endpoint, e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is reports whether the error matches one of the taxonomy sentinels.
func (e *APIError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable reports whether a retry could plausibly succeed. Only rate
// limits and server-side failures qualify. Network failures are not
// flagged retryable; RetryDelay still suggests a short wait for them.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindServer
}

// RetryDelay suggests how long to wait before retrying. Rate limits honor
// the server's Retry-After when present and fall back to a minute.
func (e *APIError) RetryDelay() time.Duration {
	switch e.Kind {
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return e.RetryAfter
		}
		return 60 * time.Second
	case KindServer:
		return 30 * time.Second
	default:
		return 5 * time.Second
	}
}

// UserMessage returns a short human-readable summary suitable for display,
// distinct from the diagnostic Error string.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		return "The submitted data is invalid. Please review and try again."
	case KindAuthentication:
		return "Authentication failed. Please check your credentials."
	case KindAuthorization:
		return "You do not have permission to perform this action."
	case KindNotFound:
		return "The requested resource was not found."
	case KindRateLimit:
		return "Too many requests. Please wait a moment and try again."
	case KindServer:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An error occurred while communicating with the service."
	}
}

// ServerError returns the machine error code reported by the server
// (the "error" body field), or an empty string.
func (e *APIError) ServerError() string {
	if s, ok := e.Body["error"].(string); ok {
		return s
	}
	return ""
}

// classifyStatus maps an HTTP status code to a taxonomy kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return KindTransport
	}
}

// errorMessage extracts the most specific error message a body carries,
// probing the fields the supported APIs use in order of specificity.
func errorMessage(body map[string]interface{}) string {
	for _, key := range []string{"error_description", "errorMessage", "error", "message"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// newAPIError classifies a non-2xx response into the error taxonomy,
// harvesting rate-limit hints from the response headers.
func newAPIError(method, endpoint string, status int, body map[string]interface{}, header http.Header) *APIError {
	kind := classifyStatus(status)
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &APIError{
		Kind:               kind,
		StatusCode:         status,
		Message:            msg,
		Endpoint:           endpoint,
		Method:             method,
		Body:               body,
		RateLimitRemaining: -1,
	}
	if header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		if v := header.Get("X-RateLimit-Remaining"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				e.RateLimitRemaining = n
			}
		}
		if v := header.Get("X-RateLimit-Reset"); v != "" {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts > 0 {
				e.RateLimitReset = time.Unix(ts, 0)
			}
		}
	}
	return e
}

// newTransportError wraps a network-level failure that never produced a
// usable HTTP response.
func newTransportError(method, endpoint string, cause error) *APIError {
	return &APIError{
		Kind:               KindTransport,
		Message:            cause.Error(),
		Endpoint:           endpoint,
		Method:             method,
		RateLimitRemaining: -1,
		cause:              cause,
	}
}

// IsNotFound reports whether err represents a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err represents a failure worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// AsAPIError extracts the *APIError from an error chain, if present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
