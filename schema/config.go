package schema

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultMaxSessions is the default session limit per manager.
	DefaultMaxSessions = 5
	// DefaultMaxSplits is the default pane limit per session.
	DefaultMaxSplits = 4
	// DefaultLineBufferMax caps the local line-edit shadow buffer.
	DefaultLineBufferMax = 1000
	// DefaultSettleDelay is the delay between geometry negotiation and active status.
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultResizeDebounce coalesces bursts of mount size changes.
	DefaultResizeDebounce = 100 * time.Millisecond
)

// DefaultDimensionRetries returns the fallback delays used to re-check mount
// dimensions when they are reported as zero.
func DefaultDimensionRetries() []time.Duration {
	return []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		500 * time.Millisecond,
	}
}

// ManagerConfig defines the session and pane limits.
type ManagerConfig struct {
	MaxSessions int
	MaxSplits   int
}

// NormalizeManagerConfig applies defaults and validates the config.
func NormalizeManagerConfig(cfg ManagerConfig) (ManagerConfig, error) {
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxSplits == 0 {
		cfg.MaxSplits = DefaultMaxSplits
	}
	if cfg.MaxSessions < 1 {
		return ManagerConfig{}, fmt.Errorf("%w: max sessions must be at least 1", ErrInvalidConfig)
	}
	if cfg.MaxSplits < 1 {
		return ManagerConfig{}, fmt.Errorf("%w: max splits must be at least 1", ErrInvalidConfig)
	}
	return cfg, nil
}

// TerminalConfig controls terminal unit timing and input policy.
type TerminalConfig struct {
	LineBufferMax    int
	SettleDelay      time.Duration
	ResizeDebounce   time.Duration
	DimensionRetries []time.Duration
	// AllowInput is derived from the caller's create/update authorization.
	AllowInput bool
}

// NormalizeTerminalConfig applies defaults. Delays must be positive so timer
// callbacks never run synchronously inside the scheduling call.
func NormalizeTerminalConfig(cfg TerminalConfig) (TerminalConfig, error) {
	if cfg.LineBufferMax == 0 {
		cfg.LineBufferMax = DefaultLineBufferMax
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.ResizeDebounce == 0 {
		cfg.ResizeDebounce = DefaultResizeDebounce
	}
	if len(cfg.DimensionRetries) == 0 {
		cfg.DimensionRetries = DefaultDimensionRetries()
	}
	if cfg.LineBufferMax < 1 {
		return TerminalConfig{}, fmt.Errorf("%w: line buffer max must be positive", ErrInvalidConfig)
	}
	if cfg.SettleDelay < 0 || cfg.ResizeDebounce < 0 {
		return TerminalConfig{}, fmt.Errorf("%w: delays must be positive", ErrInvalidConfig)
	}
	retries := append([]time.Duration(nil), cfg.DimensionRetries...)
	for _, d := range retries {
		if d <= 0 {
			return TerminalConfig{}, fmt.Errorf("%w: dimension retry delays must be positive", ErrInvalidConfig)
		}
	}
	sort.Slice(retries, func(i, j int) bool { return retries[i] < retries[j] })
	cfg.DimensionRetries = retries
	return cfg, nil
}
