package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/qlcremote/internal/settings"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  path: /tmp/q.sqlite\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"host", cfg.QLC.Host, "192.168.1.1"},
		{"port", cfg.QLC.Port, 9999},
		{"path", cfg.QLC.Path, "/qlcplusWS"},
		{"control_mode", cfg.QLC.ControlMode, "websocket"},
		{"page_size", cfg.DMX.PageSize, 24},
		{"poll_interval", cfg.DMX.PollInterval.Duration(), 20 * time.Millisecond},
		{"rate_limit", cfg.Output.RateLimitRPS, 500.0},
		{"discovery_timeout", cfg.Discovery.Timeout.Duration(), 5 * time.Second},
		{"reconnect_auto", cfg.Reconnect.Auto, false},
		{"reconnect_pending", cfg.Reconnect.Pending.Duration(), 4 * time.Second},
		{"reconnect_grace", cfg.Reconnect.Grace.Duration(), 2 * time.Second},
		{"history_limit", cfg.History.Limit, 200},
		{"status_port", cfg.Status.Port, 9191},
		{"shutdown", cfg.GetShutdownTimeout(), 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("QLC_HOST", "10.1.1.1")

	cfg, err := Parse([]byte(`
qlc:
  host: ${QLC_HOST}
  port: ${QLC_PORT:9998}
  control_mode: none
dmx:
  page_size: 50
  poll_interval: 5ms
  fade_delay: 3s
reconnect:
  auto: true
database:
  path: /tmp/q.sqlite
history:
  retention: 720h
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Reconnect.Auto {
		t.Error("reconnect.auto should be true")
	}
	if got := cfg.History.Retention.Duration(); got != 720*time.Hour {
		t.Errorf("history.retention = %v, want 720h", got)
	}

	s := cfg.Settings()
	want := settings.Settings{
		Host:            "10.1.1.1",
		Port:            9998,
		DefaultUniverse: 1,
		UniverseCount:   4,
		PageSize:        48,
		PollInterval:    settings.MinPollInterval,
		FadeDelay:       settings.MaxFadeDelay,
		ControlMode:     settings.ModeNone,
	}
	if s != want {
		t.Errorf("Settings() = %+v, want %+v", s, want)
	}
}

func TestParseRejectsControlMode(t *testing.T) {
	_, err := Parse([]byte("qlc:\n  control_mode: serial\ndatabase:\n  path: x\n"))
	if !errors.Is(err, ErrInvalidControlMode) {
		t.Errorf("error = %v, want ErrInvalidControlMode", err)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load error = %v, want not exist", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SET_VAR", "value")

	tests := []struct {
		in, want string
	}{
		{"${SET_VAR}", "value"},
		{"${UNSET_VAR_QLC:fallback}", "fallback"},
		{"${UNSET_VAR_QLC}", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
