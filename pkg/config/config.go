package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/codehive-dev/codehive/internal/bytesize"
)

// Config represents the CodeHive configuration.
//
// This structure captures the static configuration of the CodeHive server:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Server settings (websocket port, timeouts, shutdown)
//   - Metrics server settings
//   - Room store backend (BadgerDB, SQLite, or PostgreSQL)
//   - Workspace, terminal, watcher, and sync tuning
//
// Rooms themselves are dynamic: they are created over the websocket API
// (or `codehive room create`) and live in the configured store.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CODEHIVE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the websocket endpoint
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store configures room persistence (codes and password hashes)
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Workspace configures the on-disk room directories
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`

	// Terminal configures the per-user shell sessions
	Terminal TerminalConfig `mapstructure:"terminal" yaml:"terminal"`

	// Watcher configures filesystem change detection
	Watcher WatcherConfig `mapstructure:"watcher" yaml:"watcher"`

	// Sync configures editor/terminal write arbitration
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the websocket server.
type ServerConfig struct {
	// Port is the HTTP port for the websocket and health endpoints
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// PingInterval is how often idle websocket connections are pinged
	// Default: 54s (nine tenths of the pong timeout)
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`

	// PongTimeout is how long a connection may stay silent before it is
	// considered dead
	// Default: 60s
	PongTimeout time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`

	// MaxMessageSize caps inbound frame size
	// Supports human-readable formats: "1MB", "512Ki"
	// Default: 1MiB
	MaxMessageSize bytesize.ByteSize `mapstructure:"max_message_size" yaml:"max_message_size,omitempty"`

	// SendBuffer is the per-client outbound frame queue length
	// Default: 256
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig configures room persistence. Only codes and password
// hashes are stored; file trees live in memory while a room is open.
type StoreConfig struct {
	// Backend selects the storage engine
	// Valid values: badger, sqlite, postgres
	Backend string `mapstructure:"backend" validate:"required,oneof=badger sqlite postgres" yaml:"backend"`

	// Path is the data location: a directory for badger, a file for sqlite
	// Default: $XDG_DATA_HOME/codehive/rooms[.db]
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// DSN is the PostgreSQL connection string (postgres backend only)
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`

	// TTL is how long a room code stays claimable after creation
	// Default: 24h
	TTL time.Duration `mapstructure:"ttl" validate:"omitempty,gt=0" yaml:"ttl"`

	// MaxOpenConns and MaxIdleConns tune the PostgreSQL connection pool
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`
}

// WorkspaceConfig configures the on-disk mirror of room file trees.
type WorkspaceConfig struct {
	// Root is the directory room workspaces are created under
	// Default: the system temporary directory
	Root string `mapstructure:"root" yaml:"root,omitempty"`
}

// TerminalConfig configures the per-user shell sessions.
type TerminalConfig struct {
	// Shell overrides the platform default shell binary
	// Default: bash (powershell.exe on Windows)
	Shell string `mapstructure:"shell" yaml:"shell,omitempty"`

	// Cols and Rows set the initial shell geometry
	// Default: 80x30
	Cols uint16 `mapstructure:"cols" yaml:"cols"`
	Rows uint16 `mapstructure:"rows" yaml:"rows"`

	// RespawnDelay is the pause before a crashed shell is restarted
	// Default: 1s
	RespawnDelay time.Duration `mapstructure:"respawn_delay" yaml:"respawn_delay"`
}

// WatcherConfig configures filesystem change detection in workspaces.
type WatcherConfig struct {
	// Stability is how long a file must stop changing before its write
	// is considered settled. Keep it below sync.ttl.
	// Default: 200ms
	Stability time.Duration `mapstructure:"stability" validate:"omitempty,gt=0" yaml:"stability"`

	// PollInterval is how often pending writes are re-checked
	// Default: 100ms
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"omitempty,gt=0" yaml:"poll_interval"`
}

// SyncConfig configures the write arbitration between editor and shell.
type SyncConfig struct {
	// TTL is how long a sync token suppresses the opposite origin's echo
	// for the same path. Must exceed the watcher stability window or
	// settled shell writes would bounce back into the editor.
	// Default: 300ms
	TTL time.Duration `mapstructure:"ttl" validate:"omitempty,gt=0" yaml:"ttl"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CODEHIVE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  codehive init\n\n"+
				"Or specify a custom config file:\n"+
				"  codehive <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  codehive init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file location may later hold secrets
	// like a postgres DSN.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use CODEHIVE_ prefix and underscores
	// Example: CODEHIVE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CODEHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/codehive/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also covers an explicit config path that doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "1Mi", "512Ki", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "300ms", "30s", "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "codehive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "codehive")
}

// getDataDir returns the default data directory for store backends.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to
// the system temporary directory.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "codehive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "codehive")
	}

	return filepath.Join(home, ".local", "share", "codehive")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
