package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/codehive-dev/codehive/internal/adapter/ws"
	"github.com/codehive-dev/codehive/internal/logger"
	"github.com/codehive-dev/codehive/internal/telemetry"
	"github.com/codehive-dev/codehive/pkg/config"
	"github.com/codehive-dev/codehive/pkg/engine"
	"github.com/codehive-dev/codehive/pkg/metrics"
	"github.com/spf13/cobra"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CodeHive server",
	Long: `Start the CodeHive server with the specified configuration.

The server runs in the foreground and stops on SIGINT or SIGTERM. Use
--config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/codehive/config.yaml.

Examples:
  # Start with the default config
  codehive start

  # Start with a custom config file
  codehive start --config /etc/codehive/config.yaml

  # Start with environment variable overrides
  CODEHIVE_LOGGING_LEVEL=DEBUG codehive start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (optional)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, cfg.TracingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(cfg.ProfilingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	fmt.Println("CodeHive - Collaborative coding rooms")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// The registry must exist before the engine constructs its instruments,
	// otherwise room counters silently no-op.
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsSrv = metrics.NewServer(cfg.MetricsServerConfig())
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the room store
	store, err := config.CreateStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open room store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Room store close error", logger.Err(err))
		}
	}()
	logger.Info("Room store opened", "backend", cfg.Store.Backend)

	// Create the engine and the websocket adapter on top of it
	eng := engine.New(store, cfg.EngineConfig())
	defer eng.Close()

	socket := ws.NewServer(cfg.SocketConfig(), eng)

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// The metrics endpoint is auxiliary; its failure is logged but does not
	// bring the room server down.
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				logger.Error("Metrics server error", logger.Err(err))
			}
		}()
	}

	// Start the websocket server in the background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- socket.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", socket.Port())

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for the server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
