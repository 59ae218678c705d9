package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/logging"
)

// newTestRetrier wires a retrier and its throttle to the fake clock and
// captures throttle logs so tests can count window resets.
func newTestRetrier(clock *fakeClock, opts ...RetrierOption) (*Retrier, *bytes.Buffer) {
	th := newTestThrottle(clock)
	var buf bytes.Buffer
	logger := logging.New().WithComponent("throttle")
	logger.SetOutput(&buf)
	logger.SetLevel(logging.LevelDebug)
	th.SetLogger(logger)

	r := NewRetrier(th, opts...)
	r.sleepFunc = clock.Sleep
	r.logger.SetOutput(&buf)
	return r, &buf
}

func countResets(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), "window_reset")
}

func TestRetrier_SucceedsAfterRateLimits(t *testing.T) {
	clock := newFakeClock()
	r, buf := newTestRetrier(clock)

	attempts := 0
	result, err := Invoke(context.Background(), r, ProviderOpenAI,
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts <= 2 {
				return "", xerrors.RateLimited("429 from openai")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result ok, got %q", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if got := countResets(buf); got != 2 {
		t.Errorf("expected 2 window resets, got %d", got)
	}
}

func TestRetrier_ExponentialBackoff(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRetrier(clock)

	attempts := 0
	err := r.Do(context.Background(), ProviderAnthropic, func(ctx context.Context) error {
		attempts++
		return xerrors.RateLimited("overloaded")
	})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if attempts != DefaultMaxTries {
		t.Errorf("expected %d attempts, got %d", DefaultMaxTries, attempts)
	}
	if !xerrors.IsRateLimited(err) {
		t.Errorf("expected RATE_LIMITED, got code %s", xerrors.Code(err))
	}
	if xerrors.Provider(err) != ProviderAnthropic {
		t.Errorf("expected provider anthropic on error, got %q", xerrors.Provider(err))
	}

	// Backoff sleeps double: 1s, 2s, 4s, 8s. Acquire sleeps are interleaved;
	// pick out the backoff ones by exact value.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	var got []time.Duration
	for _, d := range clock.Sleeps() {
		for _, w := range want {
			if d == w {
				got = append(got, d)
			}
		}
	}
	if len(got) < len(want) {
		t.Errorf("expected backoff sleeps %v, found %v in %v", want, got, clock.Sleeps())
	}
}

func TestRetrier_NonRateLimitErrorsPassThrough(t *testing.T) {
	clock := newFakeClock()
	r, buf := newTestRetrier(clock)

	boom := fmt.Errorf("connection refused")
	attempts := 0
	err := r.Do(context.Background(), ProviderScopus, func(ctx context.Context) error {
		attempts++
		return boom
	})
	if err != boom {
		t.Errorf("expected error passed through unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
	if got := countResets(buf); got != 0 {
		t.Errorf("expected no window resets, got %d", got)
	}
}

func TestRetrier_StructuredNonRateLimitNotRetried(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRetrier(clock)

	attempts := 0
	err := r.Do(context.Background(), ProviderScopus, func(ctx context.Context) error {
		attempts++
		// Message mentions 429 but the structured code says otherwise;
		// classification goes by value, not by string.
		return xerrors.New(xerrors.ErrCodeUnauthorized, "got 429 page from proxy")
	})
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if !xerrors.Is(err, xerrors.ErrCodeUnauthorized) {
		t.Errorf("expected UNAUTHORIZED passthrough, got %v", err)
	}
}

func TestRetrier_CanceledDuringBackoff(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRetrier(clock)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	r.sleepFunc = func(ctx context.Context, d time.Duration) error {
		cancel() // caller gives up while we are backing off
		return ctx.Err()
	}

	err := r.Do(ctx, ProviderOpenAI, func(ctx context.Context) error {
		attempts++
		return xerrors.RateLimited("429")
	})
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
	if !xerrors.Is(err, xerrors.ErrCodeCanceled) {
		t.Errorf("expected CANCELED, got %v (code %s)", err, xerrors.Code(err))
	}
}

func TestRetrier_MaxTriesOption(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRetrier(clock, WithMaxTries(2))

	attempts := 0
	err := r.Do(context.Background(), ProviderOpenAI, func(ctx context.Context) error {
		attempts++
		return xerrors.RateLimited("429")
	})
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if !xerrors.IsRateLimited(err) {
		t.Errorf("expected RATE_LIMITED, got %v", err)
	}
}

func TestInvoke_ReturnsZeroValueOnFailure(t *testing.T) {
	clock := newFakeClock()
	r, _ := newTestRetrier(clock)

	result, err := Invoke(context.Background(), r, ProviderOpenAI,
		func(ctx context.Context) (int, error) {
			return 42, fmt.Errorf("bad request")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != 0 {
		t.Errorf("expected zero value on failure, got %d", result)
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"structured rate limit", xerrors.RateLimited("slow down"), true},
		{"structured other code", xerrors.NotFound("missing"), false},
		{"plain 429", fmt.Errorf("HTTP 429 Too Many Requests"), true},
		{"plain rate limit", fmt.Errorf("rate limit exceeded"), true},
		{"plain resource exhausted", fmt.Errorf("RESOURCE_EXHAUSTED: quota"), true},
		{"plain unrelated", fmt.Errorf("connection reset"), false},
		{"wrapped structured", fmt.Errorf("call failed: %w", xerrors.RateLimited("429")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
