package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TorchLedger/internal/logger"
)

var trackJSON bool

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Follow the game log without the overlay",
	Long:  `Follows the game log and prints the statistics every second until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runTrack,
}

func init() {
	trackCmd.Flags().BoolVar(&trackJSON, "json", false, "Print each state snapshot as JSON")
	RootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := cfg.Tracker.ResolveLogPath()
	if err != nil {
		return err
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, shutdown, err := openApp(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer shutdown()

	states, cancel := a.Subscribe()
	defer cancel()
	if err := a.StartTrackingWithOptions(path, cfg.Tracker.FromStart); err != nil {
		return err
	}
	logg.Info("tracking", zap.String("path", path))

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			logg.Info("stopping")
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			if trackJSON {
				if err := printJSON(out, st); err != nil {
					return err
				}
				continue
			}
			printState(out, st)
		}
	}
}
