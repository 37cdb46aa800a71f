package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TorchLedger/internal/logger"
)

var exportCurrent bool

var exportCmd = &cobra.Command{
	Use:   "export <output.xlsx|output.csv>",
	Short: "Replay the game log and export the drops",
	Long: `Replays the game log from the start and writes the drops to a spreadsheet.
The format follows the file extension. With --current only the map in progress
at the end of the log is exported.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportCurrent, "current", false, "Export only the current map")
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	a, shutdown, err := openApp(cmdContext(cmd), cfg, logg)
	if err != nil {
		return err
	}
	defer shutdown()

	if _, err := processOnce(cmd, a, path); err != nil {
		return err
	}
	sum, err := a.Export(args[0], exportCurrent)
	if err != nil {
		return err
	}
	logg.Debug("export written", zap.String("path", sum.Path))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d items to %s\n", sum.Items, sum.Path)
	fmt.Fprintf(out, "Elapsed: %s\n", sum.Elapsed)
	if !exportCurrent {
		fmt.Fprintf(out, "Maps: %d\n", sum.MapCount)
	}
	fmt.Fprintf(out, "Total: %.2f FE (%.2f FE/hour)\n", sum.Total, sum.PerHour)
	return nil
}
