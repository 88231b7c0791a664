package bootstrap

import (
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/lessons-learned/internal/config"
)

func TestResilienceConfigClampsNegativeCounts(t *testing.T) {
	cfg := config.Config{
		RetryMaxAttempts:        4,
		RetryInitialBackoff:     50 * time.Millisecond,
		BreakerEnabled:          true,
		BreakerMinRequests:      -1,
		BreakerHalfOpenMaxCalls: 3,
	}

	got := ResilienceConfig(cfg)
	if got.RetryMaxAttempts != 4 || got.RetryInitialBackoff != 50*time.Millisecond {
		t.Fatalf("unexpected retry settings %+v", got)
	}
	if got.BreakerMinRequests != 0 {
		t.Fatalf("expected negative min requests to clamp to 0, got %d", got.BreakerMinRequests)
	}
	if got.BreakerHalfOpenMaxCalls != 3 || !got.BreakerEnabled {
		t.Fatalf("unexpected breaker settings %+v", got)
	}
}

func TestNewWebProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{name: "none", cfg: config.Config{WebProvider: WebProviderNone}},
		{name: "empty", cfg: config.Config{}},
		{name: "openai without key", cfg: config.Config{WebProvider: WebProviderOpenAI}, wantErr: "OPENAI_API_KEY"},
		{name: "unknown", cfg: config.Config{WebProvider: "bing"}, wantErr: "unknown web provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := newWebProvider(tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider != nil {
				t.Fatalf("expected no provider, got %T", provider)
			}
		})
	}
}

func TestNewSummaryWriter(t *testing.T) {
	writer, err := newSummaryWriter(config.Config{SummaryMode: SummaryTemplate}, nil, nil)
	if err != nil || writer != nil {
		t.Fatalf("template mode must not build a writer, got %T, %v", writer, err)
	}

	if _, err := newSummaryWriter(config.Config{SummaryMode: SummaryOpenAI}, nil, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := newSummaryWriter(config.Config{SummaryMode: "markov"}, nil, nil); err == nil || !strings.Contains(err.Error(), "unknown summary mode") {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}
