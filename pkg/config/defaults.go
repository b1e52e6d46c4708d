package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/codehive-dev/codehive/internal/bytesize"
	"github.com/codehive-dev/codehive/pkg/arbiter"
	"github.com/codehive-dev/codehive/pkg/room"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/watcher"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyStoreDefaults(&cfg.Store)
	applyTerminalDefaults(&cfg.Terminal)
	applyWatcherDefaults(&cfg.Watcher)
	applySyncDefaults(&cfg.Sync)

	// Workspace.Root has no default here: when it is empty the engine
	// falls back to the system temporary directory.
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)
	// No need to set, zero value is false

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)
	// No need to set, zero value is false

	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyServerDefaults sets websocket server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	// Pings must fit inside the pong window or healthy connections
	// would be reaped.
	if cfg.PingInterval == 0 {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = bytesize.MiB
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 256
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStoreDefaults sets room store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.TTL == 0 {
		cfg.TTL = room.DefaultTTL
	}

	// Default paths live under the XDG data directory. Postgres needs
	// no path; its DSN is required and validated instead.
	if cfg.Path == "" {
		switch cfg.Backend {
		case "badger":
			cfg.Path = filepath.Join(getDataDir(), "rooms")
		case "sqlite":
			cfg.Path = filepath.Join(getDataDir(), "rooms.db")
		}
	}
}

// applyTerminalDefaults sets shell session defaults.
// Shell has no default here: when it is empty the terminal manager
// picks the platform shell.
func applyTerminalDefaults(cfg *TerminalConfig) {
	if cfg.Cols == 0 {
		cfg.Cols = terminal.DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = terminal.DefaultRows
	}
	if cfg.RespawnDelay == 0 {
		cfg.RespawnDelay = terminal.DefaultRespawnDelay
	}
}

// applyWatcherDefaults sets filesystem watcher defaults.
func applyWatcherDefaults(cfg *WatcherConfig) {
	if cfg.Stability == 0 {
		cfg.Stability = watcher.DefaultStability
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = watcher.DefaultPollInterval
	}
}

// applySyncDefaults sets write arbitration defaults.
func applySyncDefaults(cfg *SyncConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = arbiter.DefaultTTL
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
