package config

import (
	"github.com/codehive-dev/codehive/internal/adapter/ws"
	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/engine"
	"github.com/codehive-dev/codehive/pkg/metrics"
	"github.com/codehive-dev/codehive/pkg/terminal"
	"github.com/codehive-dev/codehive/pkg/watcher"
)

// This file translates configuration sections into the component configs
// the server wires together at startup. Component packages stay free of
// mapstructure/yaml concerns; this package owns the mapping.

// EngineConfig builds the room engine configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		WorkspaceRoot: c.Workspace.Root,
		SyncTTL:       c.Sync.TTL,
		Watcher: watcher.Config{
			Stability:    c.Watcher.Stability,
			PollInterval: c.Watcher.PollInterval,
		},
		Terminal: terminal.Config{
			Shell:        c.Terminal.Shell,
			Cols:         c.Terminal.Cols,
			Rows:         c.Terminal.Rows,
			RespawnDelay: c.Terminal.RespawnDelay,
		},
	}
}

// SocketConfig builds the websocket server configuration.
func (c *Config) SocketConfig() ws.Config {
	return ws.Config{
		Port:            c.Server.Port,
		PingInterval:    c.Server.PingInterval,
		PongTimeout:     c.Server.PongTimeout,
		MaxMessageSize:  c.Server.MaxMessageSize.Int64(),
		SendBuffer:      c.Server.SendBuffer,
		ShutdownTimeout: c.Server.ShutdownTimeout,
	}
}

// MetricsServerConfig builds the Prometheus scrape server configuration.
func (c *Config) MetricsServerConfig() metrics.ServerConfig {
	return metrics.ServerConfig{
		Port: c.Metrics.Port,
	}
}

// LoggerConfig builds the logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TracingConfig builds the OpenTelemetry configuration. The version is
// stamped by the build and reported to the trace backend.
func (c *Config) TracingConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "codehive",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// ProfilingConfig builds the Pyroscope configuration.
func (c *Config) ProfilingConfig(version string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    "codehive",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}
