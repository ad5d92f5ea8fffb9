package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	embeddedconfig "github.com/inercia/adkinspect/config"
	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/secrets"
)

var configForce bool

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage adkinspect configuration",
	Long: `Manage the adkinspect configuration file.

Use the subcommands to create the file or print the effective settings.`,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a default configuration file",
	Long: `Create a commented configuration file with the default settings at the
configuration path ($ADKINSPECT_DIR/config.yaml, or --config).

Examples:
  adkinspect config create                         # Create the default file
  adkinspect config create --config ./dev.yaml     # Create ./dev.yaml
  adkinspect config create --force                 # Overwrite existing file`,
	Args: cobra.NoArgs,
	RunE: runConfigCreate,
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying defaults, the file, the
environment and command-line overrides.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n%s", cfgFile, data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd, configShowCmd)

	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing configuration file without prompting")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil && !configForce {
		fmt.Printf("⚠️  Configuration file already exists: %s\n", cfgFile)
		fmt.Println("Use --force to overwrite the existing file.")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgFile, embeddedconfig.DefaultConfigYAML, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("✅ Configuration file created: %s\n", cfgFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set agent.base_url (or export " + config.EnvBaseURL + ") and agent.app_name")
	fmt.Println("  2. Store an API key with 'adkinspect key set' (or export " + secrets.EnvAPIKey + ")")
	fmt.Println("  3. Run 'adkinspect web' to start the web interface")
	return nil
}
