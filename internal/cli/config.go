package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the loaded configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration taskflow runs with, after merging defaults,
.taskflow.yaml, .env and TASKFLOW_* environment variables.

The Notion token is never printed; only whether it is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		data, err := yaml.Marshal(Config)
		if err != nil {
			return fmt.Errorf("formatting configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprint(out, string(data))
		token := "unset"
		if Config.Notion.Token != "" {
			token = "set"
		}
		fmt.Fprintf(out, "# notion token: %s\n", token)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and report every problem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		if err := core.ValidateConfig(Config); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
