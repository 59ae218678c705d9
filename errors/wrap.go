package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a *Error, its code, category, and provider are preserved.
// Context cancellation and deadline errors map to CANCELED and TIMEOUT.
// Everything else becomes an Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		wrapped := &Error{
			code:      perr.code,
			category:  perr.category,
			message:   message,
			cause:     err,
			provider:  perr.provider,
			retryable: perr.retryable,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsProviderError attempts to extract a ProviderError from an error chain.
// Returns nil if none is found.
func AsProviderError(err error) ProviderError {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.category == category
	}
	return false
}

// IsRateLimited checks if the error is a provider rate-limit rejection.
func IsRateLimited(err error) bool {
	return Is(err, ErrCodeRateLimit)
}

// IsRetryable checks if the error is retryable.
// Non-structured errors default to not retryable.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a *Error.
func Code(err error) ErrorCode {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
func Category(err error) ErrorCategory {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.category
	}
	return ""
}

// Provider extracts the provider key from an error, if available.
func Provider(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.provider
	}
	return ""
}
