package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"TorchLedger/internal/logger"
	"TorchLedger/internal/pricing"
)

var (
	pricesFile     string
	pricesEndpoint string
	pricesDryRun   bool
	pricesBackup   bool
	pricesTimeout  time.Duration
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage the item price table",
}

var pricesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Merge the remote price feed into the item table",
	Long: `Fetches the remote price feed and writes price and last_update for every
id already present in the table. Ids the table does not know are ignored, and
fields other than price and last_update are kept as they are.`,
	Args: cobra.NoArgs,
	RunE: runPricesUpdate,
}

var pricesShowCmd = &cobra.Command{
	Use:   "show [item id...]",
	Short: "Print table entries with their taxed price and freshness",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPricesShow,
}

func init() {
	pricesUpdateCmd.Flags().StringVar(&pricesFile, "file", "", "Item table to update (defaults to the table the tracker loads)")
	pricesUpdateCmd.Flags().StringVar(&pricesEndpoint, "endpoint", "", "Pricing endpoint URL (defaults to prices.endpoint)")
	pricesUpdateCmd.Flags().BoolVar(&pricesDryRun, "dry-run", false, "Do not write changes, only report what would change")
	pricesUpdateCmd.Flags().BoolVar(&pricesBackup, "backup", true, "Create a .bak backup before writing")
	pricesUpdateCmd.Flags().DurationVar(&pricesTimeout, "timeout", 0, "HTTP timeout for the pricing request (defaults to prices.timeout)")

	pricesCmd.AddCommand(pricesUpdateCmd, pricesShowCmd)
	RootCmd.AddCommand(pricesCmd)
}

func runPricesUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logg.Sync()

	path := strings.TrimSpace(pricesFile)
	var loaded *pricing.Table
	if path == "" {
		loaded, err = pricing.LoadTable(cfg.Prices.TablePath, logg)
		if err != nil {
			return err
		}
		path = loaded.Path()
	}
	endpoint := pricesEndpoint
	if endpoint == "" {
		endpoint = cfg.Prices.Endpoint
	}
	timeout := pricesTimeout
	if timeout <= 0 {
		timeout = cfg.Prices.Timeout
	}

	// Generic map so fields this program does not model survive the rewrite.
	existing, onDisk, err := tableRows(path, loaded)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	feed := pricing.Feed{Endpoint: endpoint, Timeout: timeout}
	updates, err := feed.Fetch(cmdContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to fetch remote pricing: %w", err)
	}

	changed, total := mergePrices(existing, updates)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Remote items: %d, Updated entries: %d\n", total, changed)

	if pricesDryRun {
		fmt.Fprintln(out, "Dry-run: no changes written.")
		return nil
	}
	if pricesBackup && onDisk {
		if err := writeBackup(path); err != nil {
			logg.Warn("could not create backup", zap.String("path", path), zap.Error(err))
		}
	}
	if err := writeJSON(path, existing); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if !onDisk {
		logg.Info("wrote embedded item table", zap.String("path", path))
	}
	fmt.Fprintln(out, "Prices updated successfully:", path)
	return nil
}

// tableRows reads the table at path. When the file does not exist yet and the
// tracker fell back to the embedded copy, that copy is used instead; onDisk
// then reports false.
func tableRows(path string, fallback *pricing.Table) (rows map[string]map[string]any, onDisk bool, err error) {
	rows, err = loadJSON(path)
	if err == nil {
		return rows, true, nil
	}
	if fallback == nil || !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	b, err := json.Marshal(fallback)
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, false, err
	}
	return rows, false, nil
}

func runPricesShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tbl, err := pricing.LoadTable(cfg.Prices.TablePath, zap.NewNop())
	if err != nil {
		return err
	}
	now := time.Now()
	out := cmd.OutOrStdout()
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid item id %q", arg)
		}
		it, ok := tbl.Lookup(id)
		if !ok {
			fmt.Fprintf(out, "%d\t%s\n", id, tbl.Name(id))
			continue
		}
		taxed := pricing.UnitPrice(it.Price, id, true)
		fmt.Fprintf(out, "%d\t%s\t%s\t%.4f (taxed %.4f)\t%s\t%s\n",
			id, it.Name, it.Type, it.Price, taxed, it.From, pricing.FreshnessOf(it.LastUpdate, now))
	}
	return nil
}

// loadJSON reads the file path into a generic nested map.
func loadJSON(path string) (map[string]map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// writeJSON writes the map back to disk with indentation.
func writeJSON(path string, m map[string]map[string]any) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeBackup(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return errors.New("not a regular file: " + path)
	}
	bak := path + ".bak"
	// keep earlier backups
	if _, err := os.Stat(bak); err == nil {
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(filepath.Base(path), ext)
		dir := filepath.Dir(path)
		bak = filepath.Join(dir, fmt.Sprintf("%s.%d%s.bak", base, time.Now().Unix(), ext))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(bak, data, 0o644)
}

// mergePrices applies feed updates to rows already in existing, the same way
// the tracker's live refresh does. It returns how many rows changed and how
// many updates were seen.
func mergePrices(existing map[string]map[string]any, updates map[string]pricing.PriceUpdate) (changed int, total int) {
	for id, u := range updates {
		total++
		if row, ok := existing[id]; ok && u.ApplyRaw(row) {
			changed++
		}
	}
	return changed, total
}
