package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent.BaseURL != "http://localhost:8000" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "weather_agent" || cfg.Agent.UserID != "user" {
		t.Errorf("unexpected app/user: %q/%q", cfg.Agent.AppName, cfg.Agent.UserID)
	}
	if cfg.Registry.Capacity != 100 {
		t.Errorf("Registry.Capacity = %d, want 100", cfg.Registry.Capacity)
	}
	if cfg.Registry.EndOnEvict {
		t.Error("EndOnEvict should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	yamlConfig := `
agent:
  base_url: http://agents.internal:9000
  app_name: travel_agent
  timeout: 15s
registry:
  capacity: 10
  end_on_evict: true
cache:
  trace_size: 50
web:
  port: 9090
log:
  level: debug
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Agent.BaseURL != "http://agents.internal:9000" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "travel_agent" {
		t.Errorf("Agent.AppName = %q", cfg.Agent.AppName)
	}
	if cfg.Agent.UserID != "user" {
		t.Errorf("Agent.UserID should keep its default, got %q", cfg.Agent.UserID)
	}
	if cfg.Agent.Timeout != 15*time.Second {
		t.Errorf("Agent.Timeout = %v, want 15s", cfg.Agent.Timeout)
	}
	if cfg.Registry.Capacity != 10 || !cfg.Registry.EndOnEvict {
		t.Errorf("unexpected registry config: %+v", cfg.Registry)
	}
	if cfg.Cache.TraceSize != 50 || cfg.Cache.GraphSize != 1024 {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Web.Port != 9090 || cfg.Web.Host != "127.0.0.1" {
		t.Errorf("unexpected web config: %+v", cfg.Web)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "agent: [", "failed to parse config"},
		{"bad url", "agent:\n  base_url: localhost:8000", "invalid agent base_url"},
		{"empty app", "agent:\n  app_name: \"\"", "app_name"},
		{"zero capacity", "registry:\n  capacity: 0", "capacity"},
		{"bad port", "web:\n  port: 70000", "invalid web port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBaseURL: "https://agents.example.com",
		EnvAppName: "other_agent",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Agent.BaseURL != "https://agents.example.com" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "other_agent" {
		t.Errorf("Agent.AppName = %q", cfg.Agent.AppName)
	}
	if cfg.Agent.UserID != "user" {
		t.Errorf("Agent.UserID = %q, want unchanged", cfg.Agent.UserID)
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAppName, "")
	t.Setenv(EnvUserID, "")

	dir := t.TempDir()

	cfg, err := LoadOrDefault(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault on missing file failed: %v", err)
	}
	if cfg.Web.Port != Default().Web.Port {
		t.Errorf("expected defaults, got web port %d", cfg.Web.Port)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("web:\n  port: 8123\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvAppName, "env_agent")

	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Web.Port != 8123 {
		t.Errorf("Web.Port = %d, want 8123", cfg.Web.Port)
	}
	if cfg.Agent.AppName != "env_agent" {
		t.Errorf("Agent.AppName = %q, want env override", cfg.Agent.AppName)
	}

	if err := os.WriteFile(path, []byte("registry:\n  capacity: -1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Agent.AppName = "changed"
	if cfg.Agent.AppName == "changed" {
		t.Error("Clone should not share the agent section")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Agent.Timeout = 90 * time.Second
	cfg.Registry.EndOnEvict = true

	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), "timeout: 1m30s") {
		t.Errorf("timeout is not encoded as a duration:\n%s", data)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if *parsed != *cfg {
		t.Errorf("round trip = %+v, want %+v", *parsed, *cfg)
	}
}
