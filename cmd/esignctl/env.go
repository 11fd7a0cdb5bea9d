package main

import (
	"fmt"

	"esign-orchestrator/core/models"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show or change the provider environment",
}

var envShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := resolver.Resolve(cmd.Context())
		if err != nil {
			return err
		}
		printEnvironment(cmd, env)
		return nil
	},
}

var envSetCmd = &cobra.Command{
	Use:   "set <sandbox|sb|prod|production|url>",
	Short: "Store the preferred environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := resolver.Set(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printEnvironment(cmd, env)
		if cfg.EnvironmentOverride != "" || cfg.BaseURLOverride != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "note: KASBO_ENV / KASBO_SERVICE_BASE_URL override the stored preference")
		}
		return nil
	},
}

var envHealCmd = &cobra.Command{
	Use:   "heal",
	Short: "Rewrite a stored base URL that drifted from its target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, healed, err := resolver.Heal(cmd.Context())
		if err != nil {
			return err
		}
		printEnvironment(cmd, env)
		if healed {
			fmt.Fprintln(cmd.OutOrStdout(), "stored preference repaired")
		}
		return nil
	},
}

func init() {
	envCmd.AddCommand(envShowCmd, envSetCmd, envHealCmd)
}

func printEnvironment(cmd *cobra.Command, env models.EnvironmentConfig) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", env.Label(), env.BaseURL)
}
