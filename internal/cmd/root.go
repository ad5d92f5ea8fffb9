// Package cmd provides the CLI commands for adkinspect.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/appdir"
	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/logging"
	"github.com/inercia/adkinspect/internal/registry"
	"github.com/inercia/adkinspect/internal/secrets"
)

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	baseURL       string

	// Loaded configuration
	cfg *config.Config
	// cfgFile is the path the configuration was loaded from
	cfgFile string

	// Default credential and where it came from
	defaultCredential string
	credentialSource  secrets.Source
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adkinspect",
	Short: "adkinspect - chat with and inspect agents served by an ADK API server",
	Long: `adkinspect talks to an agent service exposing the ADK REST API.

It holds one agent session per browser tab (or terminal), sends user
messages, renders the replies and shows the execution traces and graphs
recorded by the service for every event.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		cfgFile = configPath
		if cfgFile == "" {
			var err error
			cfgFile, err = config.DefaultPath()
			if err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.LoadOrDefault(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", cfgFile, err)
		}
		if baseURL != "" {
			cfg.Agent.BaseURL = baseURL
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		// Priority: --log-level flag > --debug flag > config file
		effectiveLogLevel := cfg.Log.Level
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		effectiveLogFile := cfg.Log.File
		if logFile != "" {
			effectiveLogFile = logFile
		}
		logCfg := logging.Config{
			Level:      effectiveLogLevel,
			FileLevel:  cfg.Log.FileLevel,
			JSON:       cfg.Log.JSON,
			Components: parseComponents(logComponents),
		}
		if effectiveLogFile != "" {
			logCfg.FileLog = &logging.FileLogConfig{Path: effectiveLogFile}
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		defaultCredential, credentialSource = secrets.DefaultCredential()
		logging.Settings().Debug("Configuration loaded",
			"path", cfgFile,
			"base_url", cfg.Agent.BaseURL,
			"app_name", cfg.Agent.AppName,
			"credential_source", string(credentialSource),
		)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: $ADKINSPECT_DIR/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config, info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'web,agent,registry'). Empty means all components.")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Agent service base URL (overrides config and "+config.EnvBaseURL+")")
}

func parseComponents(s string) []string {
	var components []string
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}

// newRegistry builds a client registry from the loaded configuration.
func newRegistry(c *config.Config) (*registry.Registry, error) {
	return registry.New(
		registry.NewClientFactory(c.Agent, c.Cache, nil, defaultCredential),
		registry.WithCapacity(c.Registry.Capacity),
		registry.WithEndOnEvict(c.Registry.EndOnEvict),
		registry.WithLogger(logging.Registry()),
	)
}

// printErr writes a user-facing error line to stderr.
func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
}
