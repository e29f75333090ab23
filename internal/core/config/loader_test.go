package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
redis:
  url: redis://localhost:6379/0
database:
  url: postgres://localhost:5432/sentinel
retention:
  events: 48h
  attempts: 168h
monitor:
  tick: 10s
events:
  stream: sentinel:events
services:
  - name: payments
    url: http://payments:8080
    dependencies: [ledger]
    health:
      type: http
      url: http://payments:8080/healthz
      interval: 15s
      timeout: 3s
      failure_threshold: 5
    recovery:
      max_attempts: 4
      timeout: 2m
      instances: [pay-1, pay-2]
    fallbacks:
      - type: degraded_mode
        priority: 1
        enabled: true
        capabilities: [read_only]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Retention.Events != 48*time.Hour {
		t.Errorf("expected 48h event retention, got %s", cfg.Retention.Events)
	}
	if cfg.Monitor.Tick != 10*time.Second {
		t.Errorf("expected 10s tick, got %s", cfg.Monitor.Tick)
	}
	if cfg.Events.Stream != "sentinel:events" {
		t.Errorf("expected event stream, got %q", cfg.Events.Stream)
	}

	if len(cfg.Services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(cfg.Services))
	}
	svc := cfg.Services[0]
	if svc.Name != "payments" || svc.Health.Type != domain.CheckHTTP {
		t.Errorf("unexpected service: %+v", svc)
	}
	if svc.Health.Interval != 15*time.Second || svc.Health.FailureThreshold != 5 {
		t.Errorf("unexpected health config: %+v", svc.Health)
	}
	if svc.Recovery.MaxAttempts != 4 || len(svc.Recovery.Instances) != 2 {
		t.Errorf("unexpected recovery config: %+v", svc.Recovery)
	}
	if len(svc.Fallbacks) != 1 || svc.Fallbacks[0].Type != domain.FallbackDegradedMode {
		t.Errorf("unexpected fallbacks: %+v", svc.Fallbacks)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
services:
  - name: orders
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Retention.Events != 7*24*time.Hour {
		t.Errorf("expected 7d event retention, got %s", cfg.Retention.Events)
	}
	if cfg.Retention.Attempts != 30*24*time.Hour {
		t.Errorf("expected 30d attempt retention, got %s", cfg.Retention.Attempts)
	}
	if cfg.Monitor.Tick != 30*time.Second {
		t.Errorf("expected 30s tick, got %s", cfg.Monitor.Tick)
	}

	svc := cfg.Services[0]
	if svc.Health.Interval != 60*time.Second || svc.Health.Timeout != 10*time.Second {
		t.Errorf("expected per-service defaults, got %+v", svc.Health)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SENTINEL_TEST_REDIS", "redis://cache:6379/1")
	path := writeConfig(t, `
redis:
  url: ${SENTINEL_TEST_REDIS}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("expected env expansion, got %q", cfg.Redis.URL)
	}
}

func TestLoad_UnnamedService(t *testing.T) {
	path := writeConfig(t, `
services:
  - url: http://nameless:8080
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unnamed service")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "services: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
