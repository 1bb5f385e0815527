package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.NATS.StreamName != "INVOICES" {
		t.Errorf("stream name = %q, want INVOICES", cfg.NATS.StreamName)
	}
	if cfg.Insights.Timeout != 30*time.Second {
		t.Errorf("insights timeout = %v, want 30s", cfg.Insights.Timeout)
	}
	if cfg.Insights.BreakerMaxRequests != 1 {
		t.Errorf("breaker max requests = %d, want 1", cfg.Insights.BreakerMaxRequests)
	}
	if cfg.Insights.BreakerInterval != 60*time.Second {
		t.Errorf("breaker interval = %v, want 60s", cfg.Insights.BreakerInterval)
	}
	if cfg.Insights.BreakerTimeout != 30*time.Second {
		t.Errorf("breaker timeout = %v, want 30s", cfg.Insights.BreakerTimeout)
	}
	if cfg.Insights.ConsecutiveFailures != 5 {
		t.Errorf("consecutive failures = %d, want 5", cfg.Insights.ConsecutiveFailures)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logger.Level)
	}
}
