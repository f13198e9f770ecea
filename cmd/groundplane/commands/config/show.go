package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/groundplane/groundplane/internal/cli/output"
	"github.com/groundplane/groundplane/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective groundplane configuration, with defaults applied
and secrets redacted.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show effective config as YAML
  groundplane config show

  # Show as JSON
  groundplane config show --output json

  # Show specific config file
  groundplane config show --config /etc/groundplane/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Never echo credentials back to the terminal.
	redacted := *cfg
	if redacted.API.JWT.Secret != "" {
		redacted.API.JWT.Secret = "[redacted]"
	}
	if redacted.API.Admin.PasswordHash != "" {
		redacted.API.Admin.PasswordHash = "[redacted]"
	}
	if redacted.Changelog.Postgres.Password != "" {
		redacted.Changelog.Postgres.Password = "[redacted]"
	}
	if redacted.Database.Postgres.Password != "" {
		redacted.Database.Postgres.Password = "[redacted]"
	}
	if redacted.Templates.S3.SecretAccessKey != "" {
		redacted.Templates.S3.SecretAccessKey = "[redacted]"
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, redacted)
	default:
		return output.PrintYAML(os.Stdout, redacted)
	}
}
