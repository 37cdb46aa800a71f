package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting after defaults, config.toml, .env and flags are applied",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	RootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, kv := range cfg.Settings() {
		fmt.Fprintf(out, "%s = %s\n", kv[0], kv[1])
	}
	if path, err := cfg.Tracker.ResolveLogPath(); err == nil {
		fmt.Fprintf(out, "# game log: %s\n", path)
	} else {
		fmt.Fprintf(out, "# game log: %v\n", err)
	}
	return nil
}
