package ratelimit

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/logging"
)

// window is the rolling period over which request counts accumulate.
const window = time.Minute

// Jitter delays follow a flipped log-normal distribution: sigma gives the
// spread, and mu is placed so 99% of raw draws fall at or below MaxDelay
// (2.326 is the z-score for the 99th percentile). Flipping concentrates
// delays near MinDelay with an occasional pause close to MaxDelay, which
// smooths traffic without producing detectable periodic spacing.
const (
	jitterSigma = 0.5
	z99         = 2.326
)

// providerState tracks one provider's rolling window. All fields are
// guarded by mu, which is held through the entire acquire decision
// including its sleep.
type providerState struct {
	mu           sync.Mutex
	requestCount int
	windowStart  time.Time
	lastRequest  time.Time
}

// Throttle gates request timing per provider. Callers pass through Acquire
// immediately before issuing a request; Acquire never fails except when the
// caller's context ends during a wait.
type Throttle struct {
	mu       sync.Mutex // guards states and policies
	states   map[string]*providerState
	policies map[string]Config
	fallback Config

	logger *logging.Logger

	// Injectable for tests.
	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	normFunc  func() float64 // standard normal draw
}

// NewThrottle creates a Throttle with the built-in policy table.
func NewThrottle() *Throttle {
	return &Throttle{
		states:    make(map[string]*providerState),
		policies:  DefaultPolicies(),
		fallback:  DefaultConfig,
		logger:    logging.New().WithComponent("throttle"),
		nowFunc:   time.Now,
		sleepFunc: sleepContext,
		normFunc:  rand.NormFloat64,
	}
}

// SetPolicy installs or replaces the policy for a provider. Intended for
// wiring time, before traffic flows.
func (t *Throttle) SetPolicy(provider string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies[provider] = cfg
	return nil
}

// SetPolicies replaces the whole policy table, e.g. with LoadPolicies output.
func (t *Throttle) SetPolicies(policies map[string]Config) error {
	for provider, cfg := range policies {
		if err := cfg.Validate(); err != nil {
			return xerrors.Wrapf(err, "policy for provider %s", provider)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies = make(map[string]Config, len(policies))
	for provider, cfg := range policies {
		t.policies[provider] = cfg
	}
	return nil
}

// SetLogger replaces the throttle's logger.
func (t *Throttle) SetLogger(l *logging.Logger) {
	t.logger = l
}

// ConfigFor returns the policy for a provider, falling back to the default
// policy for unknown keys. Never fails.
func (t *Throttle) ConfigFor(provider string) Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cfg, ok := t.policies[provider]; ok {
		return cfg
	}
	return t.fallback
}

// state returns the provider's state, creating it on first use. Creation is
// idempotent under the registry lock: concurrent first touches observe the
// same instance.
func (t *Throttle) state(provider string) *providerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[provider]
	if !ok {
		st = &providerState{windowStart: t.nowFunc()}
		t.states[provider] = st
	}
	return st
}

// Acquire blocks until the provider's policy permits another request, then
// records it. The per-provider lock is held through the sleep so waiters are
// strictly ordered. Returns an error only if ctx ends during the wait; the
// lock is released and the request is not recorded in that case.
func (t *Throttle) Acquire(ctx context.Context, provider string) error {
	st := t.state(provider)
	cfg := t.ConfigFor(provider)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := t.nowFunc()
	if now.Sub(st.windowStart) >= window {
		st.requestCount = 0
		st.windowStart = now
	}

	if st.requestCount >= cfg.BurstLimit {
		// Burst allowance used up: enforce steady-state spacing.
		perRequest := time.Duration(float64(window) / float64(cfg.RequestsPerMinute))
		elapsed := now.Sub(st.lastRequest)
		if elapsed < perRequest {
			wait := perRequest - elapsed
			t.logger.ThrottleWait(provider, wait, true)
			if err := t.sleepFunc(ctx, wait); err != nil {
				return xerrors.Wrap(err, "throttle wait interrupted", xerrors.WithProvider(provider))
			}
		}
	} else {
		wait := t.jitter(cfg)
		t.logger.ThrottleWait(provider, wait, false)
		if err := t.sleepFunc(ctx, wait); err != nil {
			return xerrors.Wrap(err, "throttle wait interrupted", xerrors.WithProvider(provider))
		}
	}

	st.requestCount++
	st.lastRequest = t.nowFunc()
	return nil
}

// ResetWindow clears the provider's rolling window. Called after a
// downstream-reported rate limit so the confirmed signal overrides the
// local model's optimism.
func (t *Throttle) ResetWindow(provider string) {
	st := t.state(provider)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := t.nowFunc()
	st.requestCount = 0
	st.windowStart = now
	st.lastRequest = now
	t.logger.WindowReset(provider)
}

// Status is a point-in-time snapshot of a provider's window.
type Status struct {
	Provider     string
	RequestCount int
	WindowStart  time.Time
	LastRequest  time.Time
}

// Status returns a snapshot of the provider's current window. Creates the
// provider state if it does not exist yet.
func (t *Throttle) Status(provider string) Status {
	st := t.state(provider)
	st.mu.Lock()
	defer st.mu.Unlock()
	return Status{
		Provider:     provider,
		RequestCount: st.requestCount,
		WindowStart:  st.windowStart,
		LastRequest:  st.lastRequest,
	}
}

// jitter draws a flipped log-normal delay clamped to [MinDelay, MaxDelay].
func (t *Throttle) jitter(cfg Config) time.Duration {
	minS := cfg.MinDelay.Seconds()
	maxS := cfg.MaxDelay.Seconds()

	mu := math.Log(maxS) - jitterSigma*z99
	raw := math.Exp(mu + jitterSigma*t.normFunc())

	clamped := math.Max(minS, math.Min(maxS, raw))
	flipped := maxS - clamped + minS
	return time.Duration(flipped * float64(time.Second))
}

// sleepContext sleeps for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
