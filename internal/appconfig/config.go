package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/termplex/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Terminal      TerminalConfig  `mapstructure:"terminal" yaml:"terminal"`
	Transport     TransportConfig `mapstructure:"transport" yaml:"transport"`
	Host          HostConfig      `mapstructure:"host" yaml:"host"`
	Console       ConsoleConfig   `mapstructure:"console" yaml:"console"`
	Status        StatusConfig    `mapstructure:"status" yaml:"status"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// TerminalConfig controls session limits and terminal unit timing.
type TerminalConfig struct {
	MaxSessions      int   `mapstructure:"max_sessions" yaml:"max_sessions"`
	MaxSplits        int   `mapstructure:"max_splits" yaml:"max_splits"`
	LineBufferMax    int   `mapstructure:"line_buffer_max" yaml:"line_buffer_max"`
	SettleDelayMS    int   `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
	ResizeDebounceMS int   `mapstructure:"resize_debounce_ms" yaml:"resize_debounce_ms"`
	DimensionRetryMS []int `mapstructure:"dimension_retry_ms" yaml:"dimension_retry_ms"`
	AllowInput       bool  `mapstructure:"allow_input" yaml:"allow_input"`
}

// TransportConfig configures the websocket channel to the process host.
type TransportConfig struct {
	URL                     string `mapstructure:"url" yaml:"url"`
	ReconnectMinMS          int    `mapstructure:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMS          int    `mapstructure:"reconnect_max_ms" yaml:"reconnect_max_ms"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"`
}

// HostConfig configures the demo process host.
type HostConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	Path           string   `mapstructure:"path" yaml:"path"`
	Shell          string   `mapstructure:"shell" yaml:"shell"`
	Args           []string `mapstructure:"args" yaml:"args"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// ConsoleConfig configures the terminal console.
type ConsoleConfig struct {
	ScrollbackBytes int `mapstructure:"scrollback_bytes" yaml:"scrollback_bytes"`
}

// StatusConfig configures the optional HTTP status API served while attached.
type StatusConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	BasePath    string `mapstructure:"base_path" yaml:"base_path"`
	HistorySize int    `mapstructure:"history_size" yaml:"history_size"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	retries := schema.DefaultDimensionRetries()
	retryMS := make([]int, 0, len(retries))
	for _, d := range retries {
		retryMS = append(retryMS, int(d/time.Millisecond))
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Terminal: TerminalConfig{
			MaxSessions:      schema.DefaultMaxSessions,
			MaxSplits:        schema.DefaultMaxSplits,
			LineBufferMax:    schema.DefaultLineBufferMax,
			SettleDelayMS:    int(schema.DefaultSettleDelay / time.Millisecond),
			ResizeDebounceMS: int(schema.DefaultResizeDebounce / time.Millisecond),
			DimensionRetryMS: retryMS,
			AllowInput:       true,
		},
		Transport: TransportConfig{
			URL:                     "ws://127.0.0.1:27490/ws",
			ReconnectMinMS:          500,
			ReconnectMaxMS:          10000,
			HandshakeTimeoutSeconds: 10,
		},
		Host: HostConfig{
			Addr:           "127.0.0.1:27490",
			Path:           "/ws",
			Shell:          "",
			Args:           []string{},
			AllowedOrigins: []string{},
		},
		Console: ConsoleConfig{
			ScrollbackBytes: 256 * 1024,
		},
		Status: StatusConfig{
			Addr:        "",
			BasePath:    "",
			HistorySize: 256,
		},
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termplex", "config.yaml"), nil
}

// ManagerConfig converts the session limits.
func (c TerminalConfig) ManagerConfig() schema.ManagerConfig {
	return schema.ManagerConfig{MaxSessions: c.MaxSessions, MaxSplits: c.MaxSplits}
}

// UnitConfig converts the terminal unit settings.
func (c TerminalConfig) UnitConfig() schema.TerminalConfig {
	retries := make([]time.Duration, 0, len(c.DimensionRetryMS))
	for _, ms := range c.DimensionRetryMS {
		retries = append(retries, millis(ms))
	}
	return schema.TerminalConfig{
		LineBufferMax:    c.LineBufferMax,
		SettleDelay:      millis(c.SettleDelayMS),
		ResizeDebounce:   millis(c.ResizeDebounceMS),
		DimensionRetries: retries,
		AllowInput:       c.AllowInput,
	}
}

// ReconnectMin returns the initial reconnect delay.
func (c TransportConfig) ReconnectMin() time.Duration { return millis(c.ReconnectMinMS) }

// ReconnectMax returns the reconnect delay ceiling.
func (c TransportConfig) ReconnectMax() time.Duration { return millis(c.ReconnectMaxMS) }

// HandshakeTimeout returns the websocket handshake timeout.
func (c TransportConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
