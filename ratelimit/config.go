package ratelimit

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	xerrors "github.com/researchforge/citekit/errors"
)

// Provider keys for the services citekit talks to.
const (
	ProviderAnthropic       = "anthropic"
	ProviderOpenAI          = "openai"
	ProviderGoogle          = "google"
	ProviderXAI             = "xai"
	ProviderSemanticScholar = "semantic_scholar"
	ProviderScopus          = "scopus"
	ProviderTaylorFrancis   = "taylor_francis"
	ProviderDefault         = "default"
)

// Config is the immutable rate-limit policy for one provider.
type Config struct {
	// RequestsPerMinute is the steady-state ceiling.
	RequestsPerMinute int

	// BurstLimit is how many requests may go out in immediate succession
	// before steady-state spacing kicks in.
	BurstLimit int

	// MinDelay and MaxDelay bound the jitter inserted between requests
	// while under the burst allowance.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Validate checks the policy invariants.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return xerrors.Newf(xerrors.ErrCodeInvalidInput, "requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.BurstLimit < 1 {
		return xerrors.Newf(xerrors.ErrCodeInvalidInput, "burst_limit must be at least 1, got %d", c.BurstLimit)
	}
	if c.MinDelay <= 0 || c.MaxDelay <= 0 {
		return xerrors.New(xerrors.ErrCodeInvalidInput, "min_delay and max_delay must be positive")
	}
	if c.MinDelay > c.MaxDelay {
		return xerrors.Newf(xerrors.ErrCodeInvalidInput, "min_delay %v exceeds max_delay %v", c.MinDelay, c.MaxDelay)
	}
	return nil
}

// DefaultConfig is the fallback policy for providers without an entry in the
// table. Conservative: one request at a time, 60 per minute.
var DefaultConfig = Config{
	RequestsPerMinute: 60,
	BurstLimit:        1,
	MinDelay:          100 * time.Millisecond,
	MaxDelay:          time.Second,
}

// DefaultPolicies returns the built-in per-provider policy table.
func DefaultPolicies() map[string]Config {
	return map[string]Config{
		ProviderAnthropic:       {RequestsPerMinute: 45, BurstLimit: 3, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		ProviderOpenAI:          {RequestsPerMinute: 60, BurstLimit: 5, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		ProviderSemanticScholar: {RequestsPerMinute: 30, BurstLimit: 2, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		ProviderScopus:          {RequestsPerMinute: 20, BurstLimit: 2, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		ProviderTaylorFrancis:   {RequestsPerMinute: 15, BurstLimit: 1, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		ProviderDefault:         DefaultConfig,
	}
}

// knownProviders is the closed set of literal provider keys accepted by
// ResolveProvider.
var knownProviders = map[string]bool{
	ProviderAnthropic:       true,
	ProviderOpenAI:          true,
	ProviderGoogle:          true,
	ProviderXAI:             true,
	ProviderSemanticScholar: true,
	ProviderScopus:          true,
	ProviderTaylorFrancis:   true,
}

// ResolveProvider maps a model or service name to a provider key.
// Model names match by substring, first rule wins; citation services match
// by their literal key. Anything unrecognized resolves to "default".
func ResolveProvider(modelOrService string) string {
	name := strings.ToLower(strings.TrimSpace(modelOrService))

	switch {
	case strings.Contains(name, "gpt"), strings.HasPrefix(name, "o1-"):
		return ProviderOpenAI
	case strings.Contains(name, "claude"):
		return ProviderAnthropic
	case strings.Contains(name, "gemini"):
		return ProviderGoogle
	case strings.Contains(name, "grok"):
		return ProviderXAI
	}

	if knownProviders[name] {
		return name
	}
	return ProviderDefault
}

// policyTOML is the on-disk form of a policy. Delays are in seconds to keep
// the file human-editable.
type policyTOML struct {
	RequestsPerMinute int     `toml:"requests_per_minute"`
	BurstLimit        int     `toml:"burst_limit"`
	MinDelaySeconds   float64 `toml:"min_delay_seconds"`
	MaxDelaySeconds   float64 `toml:"max_delay_seconds"`
}

type policyFileTOML struct {
	Providers map[string]policyTOML `toml:"providers"`
}

// LoadPolicies reads per-provider policy overrides from a TOML file.
// Providers absent from the file keep their built-in policy. Zero-valued
// delay fields inherit the defaults.
//
//	[providers.semantic_scholar]
//	requests_per_minute = 10
//	burst_limit = 1
func LoadPolicies(path string) (map[string]Config, error) {
	var file policyFileTOML
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, xerrors.Wrapf(err, "loading rate limit policies from %s", path)
	}

	policies := DefaultPolicies()
	for provider, p := range file.Providers {
		cfg := Config{
			RequestsPerMinute: p.RequestsPerMinute,
			BurstLimit:        p.BurstLimit,
			MinDelay:          time.Duration(p.MinDelaySeconds * float64(time.Second)),
			MaxDelay:          time.Duration(p.MaxDelaySeconds * float64(time.Second)),
		}
		if cfg.MinDelay == 0 {
			cfg.MinDelay = DefaultConfig.MinDelay
		}
		if cfg.MaxDelay == 0 {
			cfg.MaxDelay = DefaultConfig.MaxDelay
		}
		if err := cfg.Validate(); err != nil {
			return nil, xerrors.Wrapf(err, "invalid policy for provider %s", provider)
		}
		policies[strings.ToLower(provider)] = cfg
	}
	return policies, nil
}
