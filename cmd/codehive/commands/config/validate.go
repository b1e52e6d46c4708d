package config

import (
	"fmt"

	"github.com/codehive-dev/codehive/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the CodeHive configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  codehive config validate

  # Validate specific config file
  codehive config validate --config /etc/codehive/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Non-fatal observations about the effective configuration
	var warnings []string

	if cfg.Workspace.Root == "" {
		warnings = append(warnings, "Workspace root not configured - room workspaces go to the system temp directory")
	}

	if cfg.Terminal.Shell == "" {
		warnings = append(warnings, "Terminal shell not configured - terminals will run 'bash' from PATH")
	}

	if cfg.Sync.TTL <= cfg.Watcher.Stability {
		warnings = append(warnings, fmt.Sprintf(
			"sync.ttl (%s) does not exceed watcher.stability (%s) - shell-side echoes of editor writes may not be suppressed",
			cfg.Sync.TTL, cfg.Watcher.Stability))
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Store backend:   %s\n", cfg.Store.Backend)
	fmt.Printf("  Server port:     %d\n", cfg.Server.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
