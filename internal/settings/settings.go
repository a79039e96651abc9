// Package settings holds the user-adjustable session settings and persists
// them in a kv bucket.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ControlMode selects where outgoing commands go.
type ControlMode int

const (
	// ModeWebSocket sends commands to the QLC+ host.
	ModeWebSocket ControlMode = iota
	// ModeNone routes every command to a logging no-op sink.
	ModeNone
)

func (m ControlMode) String() string {
	if m == ModeNone {
		return "none"
	}
	return "websocket"
}

// MarshalText renders the mode in JSON snapshots.
func (m ControlMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseControlMode accepts "websocket" or "none", case-insensitively.
func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "websocket", "ws", "":
		return ModeWebSocket, nil
	case "none", "off", "demo":
		return ModeNone, nil
	}
	return ModeWebSocket, fmt.Errorf("unknown control mode %q", s)
}

// PageSizes are the supported channel page sizes.
var PageSizes = []int{12, 24, 48, 96}

// Limits.
const (
	MinPollInterval = 20 * time.Millisecond
	MaxPollInterval = 2 * time.Second
	MaxFadeDelay    = time.Second
)

// Keys of the persisted settings.
const (
	KeyHost            = "host"
	KeyPort            = "port"
	KeyDefaultUniverse = "default_universe"
	KeyUniverseCount   = "universe_count"
	KeyPageSize        = "page_size"
	KeyPollInterval    = "poll_interval"
	KeyFadeDelay       = "fade_delay"
	KeyControlMode     = "control_mode"
)

// Keys lists every setting key in display order.
var Keys = []string{
	KeyHost, KeyPort, KeyDefaultUniverse, KeyUniverseCount,
	KeyPageSize, KeyPollInterval, KeyFadeDelay, KeyControlMode,
}

// Settings is the configuration the session reads at start and reacts to
// when changed.
type Settings struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	DefaultUniverse int           `json:"default_universe"`
	UniverseCount   int           `json:"universe_count"`
	PageSize        int           `json:"page_size"`
	PollInterval    time.Duration `json:"poll_interval"`
	FadeDelay       time.Duration `json:"fade_delay"`
	ControlMode     ControlMode   `json:"control_mode"`
}

// Default returns the factory settings.
func Default() Settings {
	return Settings{
		Host:            "192.168.1.1",
		Port:            9999,
		DefaultUniverse: 1,
		UniverseCount:   4,
		PageSize:        24,
		PollInterval:    20 * time.Millisecond,
		FadeDelay:       0,
		ControlMode:     ModeWebSocket,
	}
}

// Normalize clamps every field into its valid range.
func (s Settings) Normalize() Settings {
	d := Default()
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = d.Host
	}
	if s.Port < 1 || s.Port > 65535 {
		s.Port = d.Port
	}
	if s.UniverseCount < 1 {
		s.UniverseCount = 1
	}
	s.DefaultUniverse = clamp(s.DefaultUniverse, 1, s.UniverseCount)
	s.PageSize = SnapPageSize(s.PageSize)
	s.PollInterval = clampDuration(s.PollInterval, MinPollInterval, MaxPollInterval)
	s.FadeDelay = clampDuration(s.FadeDelay, 0, MaxFadeDelay)
	return s
}

// SnapPageSize returns the supported page size nearest to n.
func SnapPageSize(n int) int {
	best := PageSizes[0]
	for _, size := range PageSizes[1:] {
		if abs(size-n) < abs(best-n) {
			best = size
		}
	}
	return best
}

// Get renders one setting as text.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyHost:
		return s.Host, nil
	case KeyPort:
		return strconv.Itoa(s.Port), nil
	case KeyDefaultUniverse:
		return strconv.Itoa(s.DefaultUniverse), nil
	case KeyUniverseCount:
		return strconv.Itoa(s.UniverseCount), nil
	case KeyPageSize:
		return strconv.Itoa(s.PageSize), nil
	case KeyPollInterval:
		return s.PollInterval.String(), nil
	case KeyFadeDelay:
		return s.FadeDelay.String(), nil
	case KeyControlMode:
		return s.ControlMode.String(), nil
	}
	return "", fmt.Errorf("unknown setting %q", key)
}

// With returns a copy with one setting parsed from raw. Numbers must be
// integers; durations accept Go syntax ("50ms") or a bare millisecond count.
func (s Settings) With(key, raw string) (Settings, error) {
	raw = strings.TrimSpace(raw)
	var err error
	switch key {
	case KeyHost:
		s.Host = raw
	case KeyPort:
		s.Port, err = strconv.Atoi(raw)
	case KeyDefaultUniverse:
		s.DefaultUniverse, err = strconv.Atoi(raw)
	case KeyUniverseCount:
		s.UniverseCount, err = strconv.Atoi(raw)
	case KeyPageSize:
		s.PageSize, err = strconv.Atoi(raw)
	case KeyPollInterval:
		s.PollInterval, err = parseMillis(raw)
	case KeyFadeDelay:
		s.FadeDelay, err = parseMillis(raw)
	case KeyControlMode:
		s.ControlMode, err = ParseControlMode(raw)
	default:
		return s, fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return s, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return s, nil
}

// Diff returns the keys whose values differ between s and other.
func (s Settings) Diff(other Settings) []string {
	var keys []string
	for _, k := range Keys {
		a, _ := s.Get(k)
		b, _ := other.Get(k)
		if a != b {
			keys = append(keys, k)
		}
	}
	return keys
}

func parseMillis(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
