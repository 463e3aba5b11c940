package errors

import "fmt"

// ErrorType classifies failures by how the surrounding code must react
type ErrorType string

const (
	// ErrorTypeSetup covers browser/session init and store connectivity
	// failures. Fatal to the current operation, propagated, never retried.
	ErrorTypeSetup ErrorType = "setup"

	// ErrorTypeTransient covers single-item failures (one response parse,
	// one target's scrape, one media download). Logged, counted, skipped.
	ErrorTypeTransient ErrorType = "transient"

	// ErrorTypeAuth covers login failures. Escalated to account-level
	// policy rather than simply failing the call.
	ErrorTypeAuth ErrorType = "auth"

	// ErrorTypeRateLimit covers platform throttling of an account.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeExhausted covers resource-exhaustion stops (debug cap,
	// media size limit). Treated as a successful early stop.
	ErrorTypeExhausted ErrorType = "exhausted"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error carries a failure with its reaction class
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// Setup wraps a fatal setup failure
func Setup(message string, cause error) *Error {
	return Wrap(ErrorTypeSetup, message, cause)
}

// Transient wraps a per-item failure that must not abort the surrounding loop
func Transient(message string, cause error) *Error {
	return Wrap(ErrorTypeTransient, message, cause)
}

// IsRetryable reports whether an error class should be retried
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeTransient, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
