// Package config manages the FIX daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fixdaemon/gofix/internal/fix/fixver"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete fixd daemon configuration (spec.md §6,
// expanded in SPEC_FULL.md §6).
type Config struct {
	Listen      []ListenConfig     `koanf:"listen"`
	Connections []ConnectionConfig `koanf:"connections"`
	Engine      EngineConfig       `koanf:"engine"`
	Control     ControlConfig      `koanf:"control"`
	Metrics     MetricsConfig      `koanf:"metrics"`
	Log         LogConfig          `koanf:"log"`
}

// ListenConfig describes one acceptor listener, created via add_listener
// at startup.
type ListenConfig struct {
	SenderCompID string `koanf:"sender_comp_id"`
	Address      string `koanf:"address"`
}

// ConnectionConfig describes one initiator connection, dialed via
// add_connection at startup.
type ConnectionConfig struct {
	FIXVersion            string `koanf:"fix_version"`
	DefaultMessageVersion string `koanf:"default_message_version"`
	SenderCompID          string `koanf:"sender_comp_id"`
	TargetCompID          string `koanf:"target_comp_id"`
	Address               string `koanf:"address"`
}

// EngineConfig holds reactor-wide tuning.
type EngineConfig struct {
	// MaxMessageSize is read from the config but not passed to the
	// engine: every session's codec uses a fixed 4 MiB message ceiling.
	MaxMessageSize uint64 `koanf:"max_message_size"`

	// DictionaryPath names a dictionary overlay file. Overlays are not
	// loaded: fixd logs a warning when this is set and uses the built-in
	// descriptor tables.
	DictionaryPath string `koanf:"dictionary_path"`
}

// ControlConfig holds the health + control HTTP endpoint configuration.
type ControlConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// FIXVersionValue parses the configured FIX version string (e.g.
// "FIX.4.4", "FIXT.1.1").
func (cc ConnectionConfig) FIXVersionValue() (fixver.FIXVersion, error) {
	fv, err := fixver.ParseBeginString(cc.FIXVersion)
	if err != nil {
		return 0, fmt.Errorf("fix_version: %w: %w", ErrInvalidFIXVersion, err)
	}
	return fv, nil
}

// DefaultMessageVersionValue parses the configured default message
// version (e.g. "FIX.4.4", "FIX.5.0SP2"), falling back to the FIX
// version's own default when unset.
func (cc ConnectionConfig) DefaultMessageVersionValue() (fixver.MessageVersion, error) {
	fv, err := cc.FIXVersionValue()
	if err != nil {
		return 0, err
	}
	if cc.DefaultMessageVersion == "" {
		if fv.IsFIXT() {
			return fixver.MaxMessageVersion(fv), nil
		}
		return fixver.DefaultMessageVersion(fv), nil
	}
	mv, ok := parseMessageVersionLabel(cc.DefaultMessageVersion)
	if !ok {
		return 0, fmt.Errorf("default_message_version %q: %w", cc.DefaultMessageVersion, ErrInvalidMessageVersion)
	}
	return mv, nil
}

// parseMessageVersionLabel maps a MessageVersion.String() label back to
// its value.
func parseMessageVersionLabel(s string) (fixver.MessageVersion, bool) {
	for v := fixver.MsgVer40; v <= fixver.MsgVer50SP2; v++ {
		if v.String() == s {
			return v, true
		}
	}
	return 0, false
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxMessageSize: 4 << 20,
		},
		Control: ControlConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for fixd configuration.
// Variables are named GOFIX_<section>_<key>, e.g., GOFIX_CONTROL_ADDR.
const envPrefix = "GOFIX_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOFIX_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOFIX_CONTROL_ADDR  -> control.addr
//	GOFIX_METRICS_ADDR  -> metrics.addr
//	GOFIX_METRICS_PATH  -> metrics.path
//	GOFIX_LOG_LEVEL     -> log.level
//	GOFIX_LOG_FORMAT    -> log.format
//	GOFIX_ENGINE_MAX_MESSAGE_SIZE -> engine.max_message_size
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOFIX_CONTROL_ADDR -> control.addr.
// Strips the GOFIX_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so multi-word keys keep their underscores.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"engine.max_message_size": defaults.Engine.MaxMessageSize,
		"control.addr":            defaults.Control.Addr,
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyControlAddr indicates the control HTTP listen address is empty.
	ErrEmptyControlAddr = errors.New("control.addr must not be empty")

	// ErrInvalidMaxMessageSize indicates engine.max_message_size is zero.
	ErrInvalidMaxMessageSize = errors.New("engine.max_message_size must be > 0")

	// ErrInvalidFIXVersion indicates a connection's fix_version is unrecognized.
	ErrInvalidFIXVersion = errors.New("fix_version is invalid")

	// ErrInvalidMessageVersion indicates a connection's default_message_version is unrecognized.
	ErrInvalidMessageVersion = errors.New("default_message_version is invalid")

	// ErrEmptyListenAddress indicates a listen entry has no address.
	ErrEmptyListenAddress = errors.New("listen entry address must not be empty")

	// ErrEmptyConnectionAddress indicates a connection entry has no address.
	ErrEmptyConnectionAddress = errors.New("connection entry address must not be empty")

	// ErrDuplicateListenAddress indicates two listen entries share an address.
	ErrDuplicateListenAddress = errors.New("duplicate listen address")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Control.Addr == "" {
		return ErrEmptyControlAddr
	}

	if cfg.Engine.MaxMessageSize == 0 {
		return ErrInvalidMaxMessageSize
	}

	if err := validateListeners(cfg.Listen); err != nil {
		return err
	}

	if err := validateConnections(cfg.Connections); err != nil {
		return err
	}

	return nil
}

func validateListeners(entries []ListenConfig) error {
	seen := make(map[string]struct{}, len(entries))
	for i, l := range entries {
		if l.Address == "" {
			return fmt.Errorf("listen[%d]: %w", i, ErrEmptyListenAddress)
		}
		if _, dup := seen[l.Address]; dup {
			return fmt.Errorf("listen[%d] address %q: %w", i, l.Address, ErrDuplicateListenAddress)
		}
		seen[l.Address] = struct{}{}
	}
	return nil
}

func validateConnections(entries []ConnectionConfig) error {
	for i, c := range entries {
		if c.Address == "" {
			return fmt.Errorf("connections[%d]: %w", i, ErrEmptyConnectionAddress)
		}
		if _, err := c.FIXVersionValue(); err != nil {
			return fmt.Errorf("connections[%d]: %w", i, err)
		}
		if _, err := c.DefaultMessageVersionValue(); err != nil {
			return fmt.Errorf("connections[%d]: %w", i, err)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
