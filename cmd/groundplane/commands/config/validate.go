package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundplane/groundplane/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the groundplane configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  groundplane config validate

  # Validate specific config file
  groundplane config validate --config /etc/groundplane/config.yaml`,
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

	// Additional validation checks
	var warnings []string

	if !cfg.API.HasJWTSecret() {
		warnings = append(warnings, "JWT secret not configured - API authentication will fail")
	}
	if cfg.API.Admin.PasswordHash == "" {
		warnings = append(warnings, "operator password hash not set - run 'groundplane init' to set it")
	}
	if cfg.Coordination.Backend == "memory" {
		warnings = append(warnings, "in-memory coordination store - bootstrap markers are lost on restart")
	}
	if cfg.Changelog.Backend == "memory" {
		warnings = append(warnings, "in-memory change log - tenant lifecycle events are lost on restart")
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
	fmt.Printf("  Services:        %v\n", cfg.Services.Enabled)
	fmt.Printf("  Coordination:    %s\n", cfg.Coordination.Backend)
	fmt.Printf("  Change log:      %s\n", cfg.Changelog.Backend)
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  Template source: %s\n", cfg.Templates.Source)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Metrics:         %s\n", enabledWord(cfg.Metrics.Enabled))
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
