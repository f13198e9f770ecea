package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/groundplane/groundplane/internal/cli/prompt"
	"github.com/groundplane/groundplane/pkg/config"
	"github.com/groundplane/groundplane/pkg/tenant/api"
	"github.com/groundplane/groundplane/pkg/tenant/api/auth"
)

var (
	initForce          bool
	initNonInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample groundplane configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/groundplane/config.yaml. Use --config to specify a custom
path. The command prompts for the operator credentials and stores a bcrypt
hash of the password; a starter instance template is seeded alongside.

Examples:
  # Initialize with default location
  groundplane init

  # Initialize with custom path
  groundplane init --config /etc/groundplane/config.yaml

  # Force overwrite existing config
  groundplane init --force

  # Skip prompts (leaves the operator credential unset)
  groundplane init --non-interactive`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Do not prompt; leave the operator credential unset")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		if initNonInteractive {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		overwrite, err := prompt.Confirm(fmt.Sprintf("Overwrite existing configuration at %s?", configPath), false)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Aborted.")
			return nil
		}
		force = true
	}

	username := "admin"
	passwordHash := ""
	if !initNonInteractive {
		var err error
		username, err = prompt.Input("Operator username", "admin")
		if err != nil {
			return err
		}
		password, err := prompt.PasswordWithConfirmation("Operator password", "Confirm password", 8)
		if err != nil {
			return err
		}
		passwordHash, err = auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
	}

	if err := config.InitConfigWithAdmin(configPath, force, username, passwordHash); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	templatePath, err := seedStarterTemplate()
	if err != nil {
		return fmt.Errorf("failed to seed starter template: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	if templatePath != "" {
		fmt.Printf("Starter instance template created at: %s\n", templatePath)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the control plane with: groundplane start")
	fmt.Printf("  3. Or specify custom config: groundplane start --config %s\n", configPath)
	if initNonInteractive {
		fmt.Println("\nNo operator credential was set. Run groundplane init again without")
		fmt.Println("--non-interactive, or fill in api.admin.password_hash manually.")
	}
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", api.EnvAPISecret)

	return nil
}

// seedStarterTemplate writes a minimal instance template matching the sample
// config's template settings, so a fresh install starts without editing
// anything. Returns the descriptor path, or "" when a default template
// already exists.
func seedStarterTemplate() (string, error) {
	dir := filepath.Join(config.GetConfigDir(), "templates", "default")
	descriptorPath := filepath.Join(dir, "template.yaml")

	if _, err := os.Stat(descriptorPath); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	descriptor := `# Starter instance template. The instance bootstrap copies this template's
# tree into the coordination store and runs its initializers in order.
id: default
name: Default Instance
# initializers:
#   - subsystem: user-management
#     scripts:
#       - scripts/seed-users.json
`
	if err := os.WriteFile(descriptorPath, []byte(descriptor), 0644); err != nil {
		return "", err
	}
	return descriptorPath, nil
}
