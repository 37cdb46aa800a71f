// Package export writes drop statistics to spreadsheet files.
package export

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"TorchLedger/internal/pricing"
	"TorchLedger/internal/tracker"
)

// ErrUnsupportedFormat is returned for file extensions other than .xlsx and .csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	KindAll     = "All Drops"
	KindCurrent = "Current Map Drops"
)

// Catalog resolves item metadata for rows.
type Catalog interface {
	Lookup(id int) (pricing.Item, bool)
}

// Row is one exported item line.
type Row struct {
	Category  string
	Name      string
	Quantity  int
	UnitPrice float64
	Total     float64
	Status    string
}

// Report is what gets exported.
type Report struct {
	Kind  string
	Stats tracker.Stats
	// ShowMapCount adds the map count line; set for whole-run exports.
	ShowMapCount bool
	Tax          bool
}

// Summary describes a finished export.
type Summary struct {
	Path     string
	Items    int
	Elapsed  string
	MapCount int
	Total    float64
	PerHour  float64
}

// BuildRows prices every known item in drops, ordered by category and then by
// total value, highest first. Ids missing from the catalog are skipped.
func BuildRows(drops map[int]int, cat Catalog, tax bool, now time.Time) []Row {
	rows := make([]Row, 0, len(drops))
	for id, n := range drops {
		it, ok := cat.Lookup(id)
		if !ok {
			continue
		}
		category := it.Type
		if category == "" {
			category = "Unknown"
		}
		unit := pricing.UnitPrice(it.Price, id, tax)
		rows = append(rows, Row{
			Category:  category,
			Name:      it.Name,
			Quantity:  n,
			UnitPrice: round2(unit),
			Total:     round2(float64(n) * unit),
			Status:    pricing.FreshnessOf(it.LastUpdate, now).String(),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := pricing.CategoryRank(rows[i].Category), pricing.CategoryRank(rows[j].Category)
		if ri != rj {
			return ri < rj
		}
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// Write exports rep to path, choosing the format from the extension.
func Write(path string, rep Report, cat Catalog, now time.Time) (Summary, error) {
	rows := BuildRows(rep.Stats.Drops, cat, rep.Tax, now)
	meta := metadata(rep, now)

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = writeXLSX(path, meta, rows)
	case ".csv":
		err = writeCSV(path, meta, rows)
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Path:     path,
		Items:    len(rows),
		Elapsed:  FormatDuration(rep.Stats.Duration),
		MapCount: rep.Stats.MapCount,
		Total:    round2(rep.Stats.Income),
		PerHour:  round2(PerHour(rep.Stats.Income, rep.Stats.Duration)),
	}, nil
}

var headers = []string{"Category", "Item Name", "Quantity", "Unit Price", "Total Value", "Price Status"}

func metadata(rep Report, now time.Time) []string {
	kind := rep.Kind
	if kind == "" {
		kind = KindAll
	}
	lines := []string{
		"Torchlight Infinite Drops Export - " + kind,
		"Export Date: " + now.Format("2006-01-02 15:04:05"),
		"Time Elapsed: " + FormatDuration(rep.Stats.Duration),
	}
	if rep.ShowMapCount {
		lines = append(lines, fmt.Sprintf("Map Count: %d", rep.Stats.MapCount))
	}
	lines = append(lines,
		fmt.Sprintf("FE/Hour: %s", formatNum(PerHour(rep.Stats.Income, rep.Stats.Duration))),
		fmt.Sprintf("Total Income: %s FE", formatNum(rep.Stats.Income)),
	)
	return lines
}

// PerHour converts income over d into an hourly rate.
func PerHour(income float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return income / d.Hours()
}

// FormatDuration renders d as 1h2m3s, dropping the hour part when zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	h, m := s/3600, (s%3600)/60
	s %= 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func formatNum(v float64) string {
	return fmt.Sprintf("%g", round2(v))
}
