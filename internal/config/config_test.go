package config

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.PageSize != 200 {
		t.Errorf("api.page_size = %d, want 200", cfg.API.PageSize)
	}
	if cfg.Reconcile.DiffMaxWaitSeconds != 600 {
		t.Errorf("reconcile.diff_max_wait_seconds = %d, want 600", cfg.Reconcile.DiffMaxWaitSeconds)
	}
	if cfg.LLM.Mode != LLMModeResponses {
		t.Errorf("llm.mode = %q, want %q", cfg.LLM.Mode, LLMModeResponses)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero page size", func(c *Config) { c.API.PageSize = 0 }, "page_size"},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"bad llm mode", func(c *Config) { c.LLM.Mode = "grpc" }, "llm.mode"},
		{"zero poll interval", func(c *Config) { c.Reconcile.TaskPollIntervalSeconds = 0 }, "poll intervals"},
		{"zero batch size", func(c *Config) { c.Candidates.BatchSize = 0 }, "batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("PT_TEST_TOKEN", "secret123")
	tests := []struct {
		in   string
		want string
	}{
		{"${PT_TEST_TOKEN}", "secret123"},
		{"Token ${PT_TEST_TOKEN}", "Token secret123"},
		{"plain", "plain"},
		{"", ""},
		{"${PT_TEST_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
