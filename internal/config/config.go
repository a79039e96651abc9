package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/qlcremote/internal/settings"
)

// AppName names the xdg config and data directories.
const AppName = "qlcremote"

// ErrInvalidControlMode is returned for an unknown qlc.control_mode.
var ErrInvalidControlMode = errors.New("invalid control mode")

// Config represents the application configuration
type Config struct {
	QLC             QLCConfig       `yaml:"qlc"`
	DMX             DMXConfig       `yaml:"dmx"`
	Output          OutputConfig    `yaml:"output"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	Reconnect       ReconnectConfig `yaml:"reconnect"`
	Database        DatabaseConfig  `yaml:"database"`
	History         HistoryConfig   `yaml:"history"`
	Log             LogConfig       `yaml:"log"`
	Status          StatusConfig    `yaml:"status"`
	Script          string          `yaml:"script"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// QLCConfig contains QLC+ host connection settings
type QLCConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	Path             string   `yaml:"path"`              // WebSocket path (default: /qlcplusWS)
	ControlMode      string   `yaml:"control_mode"`      // websocket | none
	HandshakeTimeout Duration `yaml:"handshake_timeout"` // Dial limit (default: 5s)
	WriteTimeout     Duration `yaml:"write_timeout"`     // Per-line write deadline (default: 2s)
}

// DMXConfig contains channel view and pacing settings
type DMXConfig struct {
	DefaultUniverse int      `yaml:"default_universe"`
	UniverseCount   int      `yaml:"universe_count"`
	PageSize        int      `yaml:"page_size"`     // one of 12, 24, 48, 96
	PollInterval    Duration `yaml:"poll_interval"` // 20ms..2s
	FadeDelay       Duration `yaml:"fade_delay"`    // 0..1s
}

// OutputConfig limits the outgoing line rate
type OutputConfig struct {
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // negative = unlimited
	Burst        int     `yaml:"burst"`
}

// DiscoveryConfig contains widget discovery settings
type DiscoveryConfig struct {
	Timeout Duration `yaml:"timeout"` // negative = wait forever for type responses
}

// ReconnectConfig contains the reconnect policy
type ReconnectConfig struct {
	Auto     bool     `yaml:"auto"`     // Retry without user action (default: false)
	Interval Duration `yaml:"interval"` // Auto-retry check cadence (default: 1s)
	Pending  Duration `yaml:"pending"`  // Cool-down after an attempt (default: 4s)
	Grace    Duration `yaml:"grace"`    // Wait before reporting an error (default: 2s)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig contains command history settings
type HistoryConfig struct {
	Limit     int      `yaml:"limit"`     // Entries listed by default
	Retention Duration `yaml:"retention"` // Older entries are pruned at startup (0 keeps everything)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// StatusConfig contains status HTTP server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultPath returns the config file location under the xdg config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DefaultDatabasePath returns the database location under the xdg data home.
func DefaultDatabasePath() (string, error) {
	return xdg.DataFile(filepath.Join(AppName, AppName+".sqlite"))
}

// Load reads and parses the configuration file. A missing file at the
// default location yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || path != DefaultPath() {
			return nil, err
		}
		data = nil
	}

	return Parse(data)
}

// Parse parses configuration text and applies defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	d := settings.Default()

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		path, err := DefaultDatabasePath()
		if err != nil {
			return fmt.Errorf("failed to resolve database path: %w", err)
		}
		cfg.Database.Path = path
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = 200
	}

	// QLC+ defaults
	if cfg.QLC.Host == "" {
		cfg.QLC.Host = d.Host
	}
	if cfg.QLC.Port == 0 {
		cfg.QLC.Port = d.Port
	}
	if cfg.QLC.Path == "" {
		cfg.QLC.Path = "/qlcplusWS"
	}
	if cfg.QLC.ControlMode == "" {
		cfg.QLC.ControlMode = d.ControlMode.String()
	}
	if _, err := settings.ParseControlMode(cfg.QLC.ControlMode); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidControlMode, cfg.QLC.ControlMode)
	}
	if cfg.QLC.HandshakeTimeout == 0 {
		cfg.QLC.HandshakeTimeout = Duration(5 * time.Second)
	}
	if cfg.QLC.WriteTimeout == 0 {
		cfg.QLC.WriteTimeout = Duration(2 * time.Second)
	}

	// DMX defaults
	if cfg.DMX.DefaultUniverse == 0 {
		cfg.DMX.DefaultUniverse = d.DefaultUniverse
	}
	if cfg.DMX.UniverseCount == 0 {
		cfg.DMX.UniverseCount = d.UniverseCount
	}
	if cfg.DMX.PageSize == 0 {
		cfg.DMX.PageSize = d.PageSize
	}
	if cfg.DMX.PollInterval == 0 {
		cfg.DMX.PollInterval = Duration(d.PollInterval)
	}

	// Output defaults
	if cfg.Output.RateLimitRPS == 0 {
		cfg.Output.RateLimitRPS = 500
	}
	if cfg.Output.Burst <= 0 {
		cfg.Output.Burst = 64
	}

	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(5 * time.Second)
	}

	// Reconnect defaults
	if cfg.Reconnect.Interval == 0 {
		cfg.Reconnect.Interval = Duration(1 * time.Second)
	}
	if cfg.Reconnect.Pending == 0 {
		cfg.Reconnect.Pending = Duration(4 * time.Second)
	}
	if cfg.Reconnect.Grace == 0 {
		cfg.Reconnect.Grace = Duration(2 * time.Second)
	}

	// Status server defaults
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 9191
	}
	if cfg.Status.Host == "" {
		cfg.Status.Host = "127.0.0.1"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return nil
}

// Settings returns the session settings described by the file, normalized.
func (cfg *Config) Settings() settings.Settings {
	mode, _ := settings.ParseControlMode(cfg.QLC.ControlMode)
	return settings.Settings{
		Host:            cfg.QLC.Host,
		Port:            cfg.QLC.Port,
		DefaultUniverse: cfg.DMX.DefaultUniverse,
		UniverseCount:   cfg.DMX.UniverseCount,
		PageSize:        cfg.DMX.PageSize,
		PollInterval:    cfg.DMX.PollInterval.Duration(),
		FadeDelay:       cfg.DMX.FadeDelay.Duration(),
		ControlMode:     mode,
	}.Normalize()
}

// GetShutdownTimeout returns the shutdown timeout with default
func (cfg *Config) GetShutdownTimeout() time.Duration {
	if cfg.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
