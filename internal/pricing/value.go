package pricing

import (
	"time"

	"TorchLedger/internal/types"
)

// TaxRate is the share of a sale kept after the market fee.
const TaxRate = 0.875

// UnitPrice applies the market fee to price when tax is enabled.
// The base currency is never taxed.
func UnitPrice(price float64, itemID int, tax bool) float64 {
	if tax && itemID != types.BaseCurrencyID {
		return price * TaxRate
	}
	return price
}

// Freshness grades how recently a price was observed.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
	Old
)

const (
	freshWithin = 2 * time.Hour
	staleWithin = 24 * time.Hour
)

// FreshnessOf grades lastUpdate, a unix timestamp in seconds, relative to now.
func FreshnessOf(lastUpdate float64, now time.Time) Freshness {
	if lastUpdate <= 0 {
		return Old
	}
	age := now.Sub(time.Unix(int64(lastUpdate), 0))
	switch {
	case age < freshWithin:
		return Fresh
	case age < staleWithin:
		return Stale
	default:
		return Old
	}
}

// Symbol is the single-glyph marker shown next to a price.
func (f Freshness) Symbol() string {
	switch f {
	case Fresh:
		return "✔"
	case Stale:
		return "◯"
	default:
		return "✘"
	}
}

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "old"
	}
}

// ItemTypes is the display order of item categories.
var ItemTypes = []string{
	"Compass",
	"Currency",
	"Special Item",
	"Memory Material",
	"Equipment Material",
	"Gameplay Ticket",
	"Game Ticket",
	"Map Ticket",
	"Cube Material",
	"Magic Cube Material",
	"Magic Cube Materials",
	"Corruption Material",
	"Corrosion Material",
	"Erosion Material",
	"Dream Material",
	"Tower Material",
	"Tower Materials",
	"BOSS Ticket",
	"Boss Ticket",
	"Memory Glow",
	"Memory Fluorescence",
	"Divine Emblem",
	"God's Emblem",
	"Overlap Material",
	"Overlay Material",
	"Remembrance Material",
	"Hard Currency",
}

// CategoryRank orders item types for display; unknown types sort last.
func CategoryRank(itemType string) int {
	for i, t := range ItemTypes {
		if t == itemType {
			return i
		}
	}
	return len(ItemTypes) + 1
}

// Filter selects which item types are shown in the drops list.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterCurrency Filter = "currency"
	FilterAshes    Filter = "ashes"
	FilterCompass  Filter = "compass"
	FilterGlow     Filter = "glow"
	FilterOthers   Filter = "others"
)

// Filters lists every filter in cycling order.
var Filters = []Filter{FilterAll, FilterCurrency, FilterAshes, FilterCompass, FilterGlow, FilterOthers}

var filterTypes = map[Filter][]string{
	FilterCurrency: {"Currency", "Hard Currency"},
	FilterAshes:    {"Equipment Material", "Ashes"},
	FilterCompass:  {"Compass"},
	FilterGlow:     {"Memory Glow", "Memory Fluorescence"},
}

// Match reports whether itemType passes f. FilterOthers matches everything not
// claimed by another filter.
func (f Filter) Match(itemType string) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterOthers:
		for _, claimed := range filterTypes {
			for _, t := range claimed {
				if t == itemType {
					return false
				}
			}
		}
		return true
	}
	for _, t := range filterTypes[f] {
		if t == itemType {
			return true
		}
	}
	return false
}

// Next returns the filter after f in Filters.
func (f Filter) Next() Filter {
	for i, x := range Filters {
		if x == f {
			return Filters[(i+1)%len(Filters)]
		}
	}
	return FilterAll
}
