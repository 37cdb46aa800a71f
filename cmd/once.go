package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TorchLedger/internal/app"
	"TorchLedger/internal/logger"
)

var onceJSON bool

var onceCmd = &cobra.Command{
	Use:   "once [log file]",
	Short: "Process a log file once and print the totals",
	Long: `Reads the whole log (the argument, --log, or the configured path), replays
every map in it and prints the resulting statistics. Nothing is written to the
drop journal or the run history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOnce,
}

func init() {
	onceCmd.Flags().BoolVar(&onceJSON, "json", false, "Print the state as JSON")
	RootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Tracker.LogPath = os.ExpandEnv(args[0])
	}
	path, err := cfg.Tracker.ResolveLogPath()
	if err != nil {
		return err
	}
	offline(cfg)

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logg.Sync()

	ctx := cmdContext(cmd)
	a, shutdown, err := openApp(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer shutdown()

	st, err := processOnce(cmd, a, path)
	if err != nil {
		return err
	}
	logg.Debug("log processed", zap.String("path", path), zap.Int("maps", st.MapCount))
	if onceJSON {
		return printJSON(cmd.OutOrStdout(), st)
	}
	printState(cmd.OutOrStdout(), st)
	return nil
}

// processOnce feeds the file at path through a and returns the final state.
func processOnce(cmd *cobra.Command, a *app.App, path string) (app.UIState, error) {
	f, err := os.Open(path)
	if err != nil {
		return app.UIState{}, err
	}
	defer f.Close()
	if err := a.Ingest(cmdContext(cmd), f); err != nil {
		return app.UIState{}, fmt.Errorf("process %s: %w", path, err)
	}
	return a.UIState(), nil
}
