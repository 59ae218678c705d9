package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, temporary service unavailability.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, resource not found, permission denied.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: provider rate limiting, API quota exceeded.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Service temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Resource does not exist
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"  // Authentication failed
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"     // Authorization denied
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"   // Operation not supported
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Resource errors
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // Provider rate limit exceeded
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // API quota or billing limit exhausted

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodeUnauthorized,
		ErrCodeForbidden, ErrCodeUnsupported, ErrCodeCanceled:
		return CategoryPermanent

	case ErrCodeRateLimit, ErrCodeQuotaExceeded:
		return CategoryResource

	default:
		return CategoryInternal
	}
}

// Description returns a human-readable description for the code.
func (c ErrorCode) Description() string {
	switch c {
	case ErrCodeTimeout:
		return "operation timed out"
	case ErrCodeUnavailable:
		return "service temporarily unavailable"
	case ErrCodeNetworkErr:
		return "network error"
	case ErrCodeNotFound:
		return "resource not found"
	case ErrCodeInvalidInput:
		return "invalid input"
	case ErrCodeUnauthorized:
		return "authentication failed"
	case ErrCodeForbidden:
		return "authorization denied"
	case ErrCodeUnsupported:
		return "operation not supported"
	case ErrCodeCanceled:
		return "operation canceled"
	case ErrCodeRateLimit:
		return "provider rate limit exceeded"
	case ErrCodeQuotaExceeded:
		return "quota exceeded"
	case ErrCodeInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}
