package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TorchLedger/internal/app"
	"TorchLedger/internal/config"
	"TorchLedger/internal/logger"
	"TorchLedger/internal/overlay"
	"TorchLedger/internal/prefs"
)

var (
	configDir string
	logPath   string
	gameDir   string
	fromStart bool
	verbose   bool
	exportDir string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "torchledger",
	Short: "Torchlight Infinite drop and income tracker",
	Long: `TorchLedger follows the Torchlight Infinite game log, works out what each
map dropped from inventory changes and values the drops against a price table.

Run without arguments to open the terminal overlay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOverlay,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory holding config.toml and .env")
	RootCmd.PersistentFlags().StringVarP(&logPath, "log", "l", "", "Path to UE_game.log (overrides tracker.log_path)")
	RootCmd.PersistentFlags().StringVar(&gameDir, "game-dir", "", "Game executable directory, used to locate UE_game.log")
	RootCmd.PersistentFlags().BoolVar(&fromStart, "from-start", false, "Read the log from the start instead of following new lines")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	RootCmd.Flags().StringVar(&exportDir, "export-dir", ".", "Directory for spreadsheets written from the overlay")
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logPath != "" {
		cfg.Tracker.LogPath = os.ExpandEnv(logPath)
	}
	if gameDir != "" {
		cfg.Tracker.GameDir = os.ExpandEnv(gameDir)
	}
	if fromStart {
		cfg.Tracker.FromStart = true
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openApp builds and starts an App from cfg. The returned function shuts it down.
func openApp(ctx context.Context, cfg *config.Config, logg *zap.Logger) (*app.App, func(), error) {
	prefsPath := cfg.Storage.Prefs
	p, _ := prefs.Load(prefsPath)
	a := app.New(cfg, app.WithLogger(logg), app.WithPrefs(p, prefsPath))
	if err := a.Startup(ctx); err != nil {
		return nil, nil, err
	}
	return a, a.Shutdown, nil
}

// offline turns off the journal and history so that reading an old log
// leaves no trace.
func offline(cfg *config.Config) {
	cfg.Storage.DropLog = ""
	cfg.Storage.HistoryDB = ""
	cfg.Prices.RefreshOnStart = false
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runOverlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The overlay owns the terminal, so logs only go to a file.
	logg := zap.NewNop()
	if cfg.Log.File != "" {
		if logg, err = logger.New(&cfg.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	defer logg.Sync()

	a, shutdown, err := openApp(cmdContext(cmd), cfg, logg)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := filepath.Abs(exportDir)
	if err != nil {
		return err
	}
	_, resolveErr := cfg.Tracker.ResolveLogPath()
	return overlay.Run(overlay.Options{
		Controller: a,
		FromStart:  cfg.Tracker.FromStart,
		AutoStart:  resolveErr == nil,
		ExportDir:  dir,
		Opacity:    a.Prefs().Opacity,
	})
}
