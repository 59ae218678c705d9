package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "github.com/researchforge/citekit/errors"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"gpt-4o", ProviderOpenAI},
		{"chatgpt-4o-latest", ProviderOpenAI},
		{"o1-preview", ProviderOpenAI},
		{"claude-sonnet-4-20250514", ProviderAnthropic},
		{"gemini-1.5-pro", ProviderGoogle},
		{"grok-2", ProviderXAI},
		{"semantic_scholar", ProviderSemanticScholar},
		{"scopus", ProviderScopus},
		{"taylor_francis", ProviderTaylorFrancis},
		{"Claude-Opus", ProviderAnthropic}, // case-insensitive
		{"llama-3-70b", ProviderDefault},
		{"", ProviderDefault},
		{"crossref", ProviderDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveProvider(tt.name); got != tt.want {
				t.Errorf("ResolveProvider(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()

	tests := []struct {
		provider string
		rpm      int
		burst    int
	}{
		{ProviderAnthropic, 45, 3},
		{ProviderOpenAI, 60, 5},
		{ProviderSemanticScholar, 30, 2},
		{ProviderScopus, 20, 2},
		{ProviderTaylorFrancis, 15, 1},
		{ProviderDefault, 60, 1},
	}

	for _, tt := range tests {
		cfg, ok := policies[tt.provider]
		if !ok {
			t.Errorf("missing policy for %s", tt.provider)
			continue
		}
		if cfg.RequestsPerMinute != tt.rpm {
			t.Errorf("%s: rpm = %d, want %d", tt.provider, cfg.RequestsPerMinute, tt.rpm)
		}
		if cfg.BurstLimit != tt.burst {
			t.Errorf("%s: burst = %d, want %d", tt.provider, cfg.BurstLimit, tt.burst)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: built-in policy invalid: %v", tt.provider, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{RequestsPerMinute: 60, BurstLimit: 1, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		name    string
		mutate  func(Config) Config
		wantErr bool
	}{
		{"valid", func(c Config) Config { return c }, false},
		{"zero rpm", func(c Config) Config { c.RequestsPerMinute = 0; return c }, true},
		{"zero burst", func(c Config) Config { c.BurstLimit = 0; return c }, true},
		{"zero min delay", func(c Config) Config { c.MinDelay = 0; return c }, true},
		{"min above max", func(c Config) Config { c.MinDelay = 2 * time.Second; return c }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(valid).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !xerrors.Is(err, xerrors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %s", xerrors.Code(err))
			}
		})
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimits.toml")
	content := `
[providers.semantic_scholar]
requests_per_minute = 10
burst_limit = 1

[providers.internal_api]
requests_per_minute = 120
burst_limit = 10
min_delay_seconds = 0.05
max_delay_seconds = 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	policies, err := LoadPolicies(path)
	if err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	ss := policies[ProviderSemanticScholar]
	if ss.RequestsPerMinute != 10 || ss.BurstLimit != 1 {
		t.Errorf("override not applied: %+v", ss)
	}
	if ss.MinDelay != DefaultConfig.MinDelay || ss.MaxDelay != DefaultConfig.MaxDelay {
		t.Errorf("expected default delays inherited, got %+v", ss)
	}

	internal := policies["internal_api"]
	if internal.MinDelay != 50*time.Millisecond || internal.MaxDelay != 500*time.Millisecond {
		t.Errorf("delay seconds not converted: %+v", internal)
	}

	// Untouched providers keep their built-in policy.
	if policies[ProviderAnthropic] != DefaultPolicies()[ProviderAnthropic] {
		t.Error("expected anthropic policy unchanged")
	}
}

func TestLoadPoliciesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	content := `
[providers.openai]
requests_per_minute = -5
burst_limit = 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPolicies(path); err == nil {
		t.Error("expected error for negative rpm")
	}
}

func TestLoadPoliciesMissingFile(t *testing.T) {
	if _, err := LoadPolicies(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
