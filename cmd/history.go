package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"TorchLedger/internal/history"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed maps from the run history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show, newest first")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print runs and totals as JSON")
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.HistoryDB == "" {
		return errors.New("run history is disabled (storage.history_db is empty)")
	}
	store, err := history.Open(cfg.Storage.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext(cmd)
	runs, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		return printJSON(out, struct {
			Runs   []history.Run  `json:"runs"`
			Totals history.Totals `json:"totals"`
		}{runs, totals})
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	fmt.Fprintln(out, runsTable(runs))
	fmt.Fprintf(out, "%d runs, %s in maps, net %.2f FE (%.2f FE/hour)\n",
		totals.Runs, totals.Duration, totals.Income-totals.Cost, totals.PerHour())
	return nil
}

func runsTable(runs []history.Run) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Started", "Duration", "Items", "Income", "Cost", "Net")
	for _, r := range runs {
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			ms(r.Duration.Milliseconds()).String(),
			strconv.Itoa(r.Items),
			strconv.FormatFloat(r.Income, 'f', 2, 64),
			strconv.FormatFloat(r.Cost, 'f', 2, 64),
			strconv.FormatFloat(r.Net(), 'f', 2, 64),
		)
	}
	return t.String()
}
