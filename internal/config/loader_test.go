package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/debugwait/internal/handshake"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Handshake.Interval != "200ms" {
		t.Errorf("Handshake.Interval = %q, want 200ms", cfg.Handshake.Interval)
	}
	if cfg.Handshake.Timeout != "30s" {
		t.Errorf("Handshake.Timeout = %q, want 30s", cfg.Handshake.Timeout)
	}
	if cfg.Handshake.Mode != "legacy" {
		t.Errorf("Handshake.Mode = %q, want legacy", cfg.Handshake.Mode)
	}
	if !cfg.Handshake.Watch {
		t.Error("Handshake.Watch = false, want true")
	}
	if cfg.Extras == nil || len(cfg.Extras) != 0 {
		t.Errorf("Extras = %v, want empty map", cfg.Extras)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
handshake:
  interval: 50ms
  timeout: 1s
  mode: strict
extras:
  debug_ping: "true"
  ping_file: /tmp/ping
  gdbserver_command: gdbserver --multi +/tmp/sock
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Handshake.Mode != "strict" {
		t.Errorf("Handshake.Mode = %q, want strict", cfg.Handshake.Mode)
	}
	// Unset keys keep their defaults.
	if cfg.Handshake.TerminateGrace != "2s" {
		t.Errorf("Handshake.TerminateGrace = %q, want 2s", cfg.Handshake.TerminateGrace)
	}
	if cfg.Extras[KeyPingFile] != "/tmp/ping" {
		t.Errorf("Extras[ping_file] = %q, want /tmp/ping", cfg.Extras[KeyPingFile])
	}
}

func TestLoader_UnquotedBoolExtras(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
extras:
  debug_ping: true
  ping_file: /tmp/x
  gdbserver_command: sleep 1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Extras[KeyDebugPing]; got != "true" {
		t.Errorf("Extras[debug_ping] = %q, want \"true\"", got)
	}
	s, err := cfg.HandshakeSettings(nil)
	if err != nil {
		t.Fatalf("HandshakeSettings() error = %v", err)
	}
	if !s.Enabled {
		t.Error("unquoted debug_ping: true left the handshake disabled")
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEBUGWAIT_HANDSHAKE_TIMEOUT", "5s")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Handshake.Timeout != "5s" {
		t.Errorf("Handshake.Timeout = %q, want 5s from env", cfg.Handshake.Timeout)
	}
}

func TestLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log: [unclosed"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestConfig_HandshakeSettings(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Handshake: HandshakeConfig{
			Interval:       "100ms",
			Timeout:        "2s",
			Mode:           "strict",
			MarkerMode:     "0755",
			TerminateGrace: "500ms",
			Watch:          true,
		},
		Extras: map[string]string{
			KeyDebugPing: "true",
			KeyPingFile:  "/from/file",
			KeyPongFile:  "/pong",
		},
	}

	s, err := cfg.HandshakeSettings(map[string]string{
		KeyPingFile:         "/from/flag",
		KeyGdbserverCommand: "sleep 60",
	})
	if err != nil {
		t.Fatalf("HandshakeSettings() error = %v", err)
	}

	if !s.Enabled {
		t.Error("Enabled = false, want true")
	}
	if s.PingMarkerPath != "/from/flag" {
		t.Errorf("PingMarkerPath = %q, want override", s.PingMarkerPath)
	}
	if s.PongMarkerPath != "/pong" {
		t.Errorf("PongMarkerPath = %q", s.PongMarkerPath)
	}
	if s.LaunchCommand != "sleep 60" {
		t.Errorf("LaunchCommand = %q", s.LaunchCommand)
	}
	if s.Policy.Interval != 100*time.Millisecond || s.Policy.Timeout != 2*time.Second {
		t.Errorf("Policy = %+v", s.Policy)
	}
	if s.Mode != handshake.ModeStrict {
		t.Errorf("Mode = %q, want strict", s.Mode)
	}
	if s.MarkerMode != 0o755 {
		t.Errorf("MarkerMode = %o, want 755", s.MarkerMode)
	}
	if s.TerminateGrace != 500*time.Millisecond {
		t.Errorf("TerminateGrace = %s", s.TerminateGrace)
	}
}

func TestConfig_HandshakeSettings_Errors(t *testing.T) {
	base := HandshakeConfig{
		Interval: "100ms", Timeout: "1s", Mode: "legacy", MarkerMode: "0700", TerminateGrace: "1s",
	}
	tests := []struct {
		name   string
		mutate func(*HandshakeConfig)
	}{
		{"interval", func(h *HandshakeConfig) { h.Interval = "soon" }},
		{"timeout", func(h *HandshakeConfig) { h.Timeout = "" }},
		{"grace", func(h *HandshakeConfig) { h.TerminateGrace = "x" }},
		{"mode", func(h *HandshakeConfig) { h.Mode = "lenient" }},
		{"marker mode", func(h *HandshakeConfig) { h.MarkerMode = "999" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := base
			tt.mutate(&h)
			cfg := &Config{Handshake: h}
			if _, err := cfg.HandshakeSettings(nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
