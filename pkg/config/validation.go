package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks the struct tags of loaded configurations. A single
// instance caches the parsed tags across calls.
var validate = validator.New()

// Validate checks a loaded configuration for errors.
//
// Struct tags cover the value-level checks (enums, ranges); the
// cross-field rules tags cannot express are checked here. Validate never
// mutates the config; normalization happens in ApplyDefaults.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateStore(&cfg.Store); err != nil {
		return err
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

// validateStore checks backend-specific requirements. The oneof tag has
// already rejected unknown backends.
func validateStore(cfg *StoreConfig) error {
	switch cfg.Backend {
	case "badger", "sqlite":
		if cfg.Path == "" {
			return fmt.Errorf("store: path is required for the %s backend", cfg.Backend)
		}
	case "postgres":
		if cfg.DSN == "" {
			return fmt.Errorf("store: dsn is required for the postgres backend")
		}
	}
	return nil
}

// validateTelemetry checks that enabled exporters have somewhere to send.
func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.Enabled && cfg.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required when telemetry is enabled")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry: profiling endpoint is required when profiling is enabled")
	}
	return nil
}
