package ratelimit

import (
	"context"
	"strings"
	"time"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/logging"
)

// Retry defaults. Backoff doubles each cycle: 1s, 2s, 4s, 8s.
const (
	DefaultMaxTries    = 5
	DefaultInitBackoff = time.Second
	DefaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2
)

// Classifier reports whether an error is a provider rate-limit rejection.
// Only errors it accepts are retried; everything else propagates immediately.
type Classifier func(error) bool

// Retrier executes operations against a named provider, acquiring the
// throttle first and retrying with exponential backoff on classified
// rate-limit failures.
type Retrier struct {
	throttle    *Throttle
	maxTries    int
	initBackoff time.Duration
	maxBackoff  time.Duration
	classify    Classifier
	logger      *logging.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithMaxTries sets the total attempt ceiling (default 5).
func WithMaxTries(n int) RetrierOption {
	return func(r *Retrier) {
		if n > 0 {
			r.maxTries = n
		}
	}
}

// WithBackoff sets the initial and maximum backoff durations.
func WithBackoff(init, max time.Duration) RetrierOption {
	return func(r *Retrier) {
		if init > 0 {
			r.initBackoff = init
		}
		if max > 0 {
			r.maxBackoff = max
		}
	}
}

// WithClassifier replaces the rate-limit classification predicate.
func WithClassifier(c Classifier) RetrierOption {
	return func(r *Retrier) {
		if c != nil {
			r.classify = c
		}
	}
}

// WithLogger replaces the retrier's logger.
func WithLogger(l *logging.Logger) RetrierOption {
	return func(r *Retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetrier creates a Retrier bound to a Throttle.
func NewRetrier(t *Throttle, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		throttle:    t,
		maxTries:    DefaultMaxTries,
		initBackoff: DefaultInitBackoff,
		maxBackoff:  DefaultMaxBackoff,
		classify:    IsRateLimitError,
		logger:      logging.New().WithComponent("retrier"),
		sleepFunc:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op against the provider. Each attempt passes through
// Throttle.Acquire first. On a classified rate-limit failure it sleeps an
// exponentially growing backoff, resets the provider's throttle window, and
// retries. Non-rate-limit failures return immediately. After the attempt
// ceiling, the last rate-limit error is returned wrapped as RATE_LIMITED.
func (r *Retrier) Do(ctx context.Context, provider string, op func(context.Context) error) error {
	backoff := r.initBackoff
	var lastErr error

	for attempt := 0; attempt < r.maxTries; attempt++ {
		if err := r.throttle.Acquire(ctx, provider); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.classify(lastErr) {
			return lastErr
		}
		if attempt == r.maxTries-1 {
			break
		}

		r.logger.Backoff(provider, backoff, attempt+1, lastErr)
		if err := r.sleepFunc(ctx, backoff); err != nil {
			return xerrors.Wrap(err, "backoff interrupted", xerrors.WithProvider(provider))
		}
		// The provider just told us its real limits; drop the local window.
		r.throttle.ResetWindow(provider)

		backoff *= backoffFactor
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return xerrors.WrapWithCode(lastErr, xerrors.ErrCodeRateLimit,
		"giving up after repeated rate limits", xerrors.WithProvider(provider))
}

// Invoke runs op against the provider through the retrier and returns its
// result. See Retrier.Do for the retry contract.
func Invoke[T any](ctx context.Context, r *Retrier, provider string, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, provider, func(ctx context.Context) error {
		v, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// IsRateLimitError is the default classifier. Structured RATE_LIMITED errors
// match directly; plain errors fall back to transport-level string checks
// covering HTTP 429 and the provider SDKs' wording.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if xerrors.IsRateLimited(err) {
		return true
	}
	if perr := xerrors.AsProviderError(err); perr != nil {
		// Structured errors classify by code alone.
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted")
}
