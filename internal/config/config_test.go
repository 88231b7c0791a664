package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_SOURCE_TIMEOUT_SECONDS", "")
	t.Setenv("DISPATCH_MODE", "")
	t.Setenv("WEB_RATE_INTERVAL_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchSourceTimeout != 20*time.Second {
		t.Fatalf("expected default source timeout 20s, got %s", cfg.SearchSourceTimeout)
	}
	if cfg.SearchWebTimeout != 10*time.Second {
		t.Fatalf("expected default web timeout 10s, got %s", cfg.SearchWebTimeout)
	}
	if cfg.DispatchMode != DispatchInProcess {
		t.Fatalf("expected inprocess dispatch, got %q", cfg.DispatchMode)
	}
	if cfg.WebRateInterval != time.Second {
		t.Fatalf("expected 1s web interval, got %s", cfg.WebRateInterval)
	}
	if cfg.NATSSearchSubject != "search.requested" || cfg.NATSKnowledgeSubject != "knowledge.ingested" {
		t.Fatalf("unexpected subjects: %q %q", cfg.NATSSearchSubject, cfg.NATSKnowledgeSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SEARCH_SOURCE_TIMEOUT_SECONDS", "5")
	t.Setenv("DISPATCH_MODE", "NATS")
	t.Setenv("RESILIENCE_BREAKER_FAILURE_RATIO", "0.75")
	t.Setenv("API_VALIDATE_REQUESTS", "false")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchSourceTimeout != 5*time.Second {
		t.Fatalf("expected 5s, got %s", cfg.SearchSourceTimeout)
	}
	if cfg.DispatchMode != DispatchNATS {
		t.Fatalf("expected nats dispatch, got %q", cfg.DispatchMode)
	}
	if cfg.BreakerFailureRatio != 0.75 {
		t.Fatalf("expected ratio 0.75, got %v", cfg.BreakerFailureRatio)
	}
	if cfg.APIValidateRequests {
		t.Fatalf("expected validation disabled")
	}
	if cfg.ChunkSize != 900 {
		t.Fatalf("expected fallback chunk size, got %d", cfg.ChunkSize)
	}
}

func TestLoadAppliesYAMLOverlayBelowEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "search:\n  source_timeout_seconds: 7\n  web_timeout_seconds: 3\nweb_provider: html\napi_port: \"9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_SOURCE_TIMEOUT_SECONDS", "")
	t.Setenv("SEARCH_WEB_TIMEOUT_SECONDS", "")
	t.Setenv("WEB_PROVIDER", "")
	t.Setenv("API_PORT", "8181")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SearchSourceTimeout != 7*time.Second || cfg.SearchWebTimeout != 3*time.Second {
		t.Fatalf("overlay timeouts not applied: %s %s", cfg.SearchSourceTimeout, cfg.SearchWebTimeout)
	}
	if cfg.WebProvider != "html" {
		t.Fatalf("expected html provider, got %q", cfg.WebProvider)
	}
	if cfg.APIPort != "8181" {
		t.Fatalf("env must win over overlay, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsBrokenOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("search: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
