package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fixdaemon/gofix/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Control.Addr != ":8080" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":8080")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Engine.MaxMessageSize != 4<<20 {
		t.Errorf("Engine.MaxMessageSize = %d, want %d", cfg.Engine.MaxMessageSize, 4<<20)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
engine:
  max_message_size: 1048576
listen:
  - sender_comp_id: "ACCEPTOR"
    address: "0.0.0.0:5001"
connections:
  - fix_version: "FIX.4.4"
    sender_comp_id: "INITIATOR"
    target_comp_id: "ACCEPTOR"
    address: "127.0.0.1:5001"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Engine.MaxMessageSize != 1048576 {
		t.Errorf("Engine.MaxMessageSize = %d, want %d", cfg.Engine.MaxMessageSize, 1048576)
	}

	if len(cfg.Listen) != 1 || cfg.Listen[0].Address != "0.0.0.0:5001" {
		t.Errorf("Listen = %+v, want one entry on 0.0.0.0:5001", cfg.Listen)
	}

	if len(cfg.Connections) != 1 || cfg.Connections[0].Address != "127.0.0.1:5001" {
		t.Errorf("Connections = %+v, want one entry on 127.0.0.1:5001", cfg.Connections)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override control.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
control:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":55555" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Engine.MaxMessageSize != 4<<20 {
		t.Errorf("Engine.MaxMessageSize = %d, want default %d", cfg.Engine.MaxMessageSize, 4<<20)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty control addr",
			modify: func(cfg *config.Config) {
				cfg.Control.Addr = ""
			},
			wantErr: config.ErrEmptyControlAddr,
		},
		{
			name: "zero max message size",
			modify: func(cfg *config.Config) {
				cfg.Engine.MaxMessageSize = 0
			},
			wantErr: config.ErrInvalidMaxMessageSize,
		},
		{
			name: "empty listen address",
			modify: func(cfg *config.Config) {
				cfg.Listen = []config.ListenConfig{{SenderCompID: "A", Address: ""}}
			},
			wantErr: config.ErrEmptyListenAddress,
		},
		{
			name: "duplicate listen address",
			modify: func(cfg *config.Config) {
				cfg.Listen = []config.ListenConfig{
					{SenderCompID: "A", Address: "0.0.0.0:5001"},
					{SenderCompID: "B", Address: "0.0.0.0:5001"},
				}
			},
			wantErr: config.ErrDuplicateListenAddress,
		},
		{
			name: "empty connection address",
			modify: func(cfg *config.Config) {
				cfg.Connections = []config.ConnectionConfig{{FIXVersion: "FIX.4.4", Address: ""}}
			},
			wantErr: config.ErrEmptyConnectionAddress,
		},
		{
			name: "invalid connection fix version",
			modify: func(cfg *config.Config) {
				cfg.Connections = []config.ConnectionConfig{{FIXVersion: "FIX.9.9", Address: "127.0.0.1:5001"}}
			},
			wantErr: config.ErrInvalidFIXVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectionConfigVersions(t *testing.T) {
	t.Parallel()

	cc := config.ConnectionConfig{FIXVersion: "FIX.4.4"}
	fv, err := cc.FIXVersionValue()
	if err != nil {
		t.Fatalf("FIXVersionValue: %v", err)
	}
	if fv.String() != "FIX.4.4" {
		t.Errorf("FIXVersionValue = %v, want FIX.4.4", fv)
	}

	mv, err := cc.DefaultMessageVersionValue()
	if err != nil {
		t.Fatalf("DefaultMessageVersionValue: %v", err)
	}
	if mv.String() != "FIX.4.4" {
		t.Errorf("DefaultMessageVersionValue = %v, want FIX.4.4", mv)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
control:
  addr: ":8080"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOFIX_CONTROL_ADDR", ":60000")
	t.Setenv("GOFIX_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q (from env)", cfg.Control.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
control:
  addr: ":8080"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOFIX_METRICS_ADDR", ":9200")
	t.Setenv("GOFIX_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fixd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
