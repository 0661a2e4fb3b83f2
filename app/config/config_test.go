package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GENERATOR", "template")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.Window != 300*time.Second || cfg.RateLimit.MaxRequests != 2 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Generation.GeneratorTimeout != 45*time.Second || cfg.Generation.JobTimeout != 15*time.Minute {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Generation.DefaultMaxRetries != 2 || cfg.Generation.MaxRetriesCap != 5 {
		t.Errorf("retries = %+v", cfg.Generation)
	}
	if cfg.Reuse.Threshold != 0.6 {
		t.Errorf("threshold = %v", cfg.Reuse.Threshold)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" || cfg.Metrics.Addr != ":2112" {
		t.Errorf("addrs = %s %s", cfg.Server.Addr(), cfg.Metrics.Addr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GENERATOR", "LLM")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("RATE_LIMIT_WINDOW", "60")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")
	t.Setenv("GENERATOR_TIMEOUT", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.Generator != GeneratorLLM {
		t.Errorf("generator = %q", cfg.Generation.Generator)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.MaxRequests != 10 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Generation.GeneratorTimeout != 2*time.Minute {
		t.Errorf("generator timeout = %v", cfg.Generation.GeneratorTimeout)
	}
	if got := cfg.CORS.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("origins = %v", got)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"llm without key", map[string]string{"GENERATOR": "llm"}, "LLM_API_KEY"},
		{"unknown generator", map[string]string{"GENERATOR": "magic"}, "GENERATOR must be"},
		{"zero window", map[string]string{"GENERATOR": "template", "RATE_LIMIT_WINDOW": "0s"}, "RATE_LIMIT_WINDOW"},
		{"zero max", map[string]string{"GENERATOR": "template", "RATE_LIMIT_MAX_REQUESTS": "0"}, "RATE_LIMIT_MAX_REQUESTS"},
		{"threshold above one", map[string]string{"GENERATOR": "template", "REUSE_SIMILARITY_THRESHOLD": "1.5"}, "REUSE_SIMILARITY_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
