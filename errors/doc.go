// Package errors provides a structured error taxonomy for citekit. It
// defines the codes and categories that the throttling and retry layers
// use to decide whether a downstream failure is worth retrying.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (network issues, etc.)
//   - Permanent: Failures where retry will not help (invalid input, not found, etc.)
//   - Resource: Resource exhaustion issues (rate limits, quotas)
//   - Internal: Unexpected errors indicating bugs or system failures
//
// # Usage
//
// Create a new error:
//
//	err := errors.RateLimited("semantic scholar rejected the request",
//	    errors.WithProvider("semantic_scholar"))
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "fetching paper metadata")
//
// Check classification:
//
//	if errors.IsRateLimited(err) {
//	    // back off and retry
//	}
//
// Only RATE_LIMITED errors receive special handling from the retry layer;
// all other failures pass through to the caller unchanged.
package errors
