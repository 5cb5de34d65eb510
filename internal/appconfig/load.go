package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/termplex/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TERMPLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("terminal.max_sessions", cfg.Terminal.MaxSessions)
	v.SetDefault("terminal.max_splits", cfg.Terminal.MaxSplits)
	v.SetDefault("terminal.line_buffer_max", cfg.Terminal.LineBufferMax)
	v.SetDefault("terminal.settle_delay_ms", cfg.Terminal.SettleDelayMS)
	v.SetDefault("terminal.resize_debounce_ms", cfg.Terminal.ResizeDebounceMS)
	v.SetDefault("terminal.dimension_retry_ms", cfg.Terminal.DimensionRetryMS)
	v.SetDefault("terminal.allow_input", cfg.Terminal.AllowInput)
	v.SetDefault("transport.url", cfg.Transport.URL)
	v.SetDefault("transport.reconnect_min_ms", cfg.Transport.ReconnectMinMS)
	v.SetDefault("transport.reconnect_max_ms", cfg.Transport.ReconnectMaxMS)
	v.SetDefault("transport.handshake_timeout_seconds", cfg.Transport.HandshakeTimeoutSeconds)
	v.SetDefault("host.addr", cfg.Host.Addr)
	v.SetDefault("host.path", cfg.Host.Path)
	v.SetDefault("host.shell", cfg.Host.Shell)
	v.SetDefault("host.args", cfg.Host.Args)
	v.SetDefault("host.allowed_origins", cfg.Host.AllowedOrigins)
	v.SetDefault("console.scrollback_bytes", cfg.Console.ScrollbackBytes)
	v.SetDefault("status.addr", cfg.Status.Addr)
	v.SetDefault("status.base_path", cfg.Status.BasePath)
	v.SetDefault("status.history_size", cfg.Status.HistorySize)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := schema.NormalizeManagerConfig(cfg.Terminal.ManagerConfig()); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	if _, err := schema.NormalizeTerminalConfig(cfg.Terminal.UnitConfig()); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	if err := validateTransportURL(cfg.Transport.URL); err != nil {
		return err
	}
	if cfg.Transport.ReconnectMinMS < 0 || cfg.Transport.ReconnectMaxMS < 0 {
		return fmt.Errorf("transport reconnect delays must not be negative")
	}
	if cfg.Transport.ReconnectMaxMS > 0 && cfg.Transport.ReconnectMaxMS < cfg.Transport.ReconnectMinMS {
		return fmt.Errorf("transport.reconnect_max_ms must not be below transport.reconnect_min_ms")
	}
	if path := strings.TrimSpace(cfg.Host.Path); path != "" && !strings.HasPrefix(path, "/") {
		return fmt.Errorf("host.path must start with /")
	}
	if cfg.Console.ScrollbackBytes < 0 {
		return fmt.Errorf("console.scrollback_bytes must not be negative")
	}
	if cfg.Status.HistorySize < 0 {
		return fmt.Errorf("status.history_size must not be negative")
	}
	return nil
}

func validateTransportURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("transport.url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("transport.url must include scheme and host (e.g. ws://127.0.0.1:27490/ws)")
	}
	switch parsed.Scheme {
	case "ws", "wss":
		return nil
	default:
		return fmt.Errorf("transport.url scheme must be ws or wss, got %q", parsed.Scheme)
	}
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Transport.URL = expandEnv(cfg.Transport.URL)
	cfg.Host.Addr = expandEnv(cfg.Host.Addr)
	cfg.Host.Shell = expandEnv(cfg.Host.Shell)
	cfg.Status.Addr = expandEnv(cfg.Status.Addr)
	for i, arg := range cfg.Host.Args {
		cfg.Host.Args[i] = expandEnv(arg)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
