package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/secrets"
)

// keyCmd represents the key parent command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the default API key",
	Long: `Manage the default API key sent to the agent service.

The key is stored in the system keychain (macOS). The ` + secrets.EnvAPIKey + `
environment variable, when set, takes precedence over the stored key.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set [value]",
	Short: "Store the default API key",
	Long: `Store the default API key in the system keychain.

When no value is given, the key is read from standard input so it does not
end up in the shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKeySet,
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored default API key",
	Args:  cobra.NoArgs,
	RunE:  runKeyClear,
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the default API key comes from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch credentialSource {
		case secrets.SourceEnv:
			fmt.Printf("🔑 Using %s from the environment\n", secrets.EnvAPIKey)
		case secrets.SourceKeychain:
			fmt.Println("🔑 Using the key stored in the system keychain")
		default:
			fmt.Println("No default API key configured")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keySetCmd, keyClearCmd, keyStatusCmd)
}

func runKeySet(cmd *cobra.Command, args []string) error {
	store := secrets.Default()
	if !store.IsSupported() {
		return fmt.Errorf("no secret store on this platform, set %s instead", secrets.EnvAPIKey)
	}

	var value string
	if len(args) == 1 {
		value = args[0]
	} else {
		fmt.Fprint(os.Stderr, "API key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key: %w", err)
		}
		value = strings.TrimSpace(line)
	}

	if err := secrets.StoreCredential(store, value); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	fmt.Println("✅ API key stored")
	return nil
}

func runKeyClear(cmd *cobra.Command, args []string) error {
	store := secrets.Default()
	if !store.IsSupported() {
		return fmt.Errorf("no secret store on this platform")
	}
	if err := secrets.ClearCredential(store); err != nil {
		return fmt.Errorf("failed to clear key: %w", err)
	}
	fmt.Println("✅ API key removed")
	return nil
}
