package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"TorchLedger/internal/app"
	"TorchLedger/internal/pricing"
)

// printState writes a plain-text summary of st to w.
func printState(w io.Writer, st app.UIState) {
	status := "Idle"
	switch {
	case st.SessionPaused:
		status = "Paused"
	case st.InMap:
		status = "In Map"
	}
	fmt.Fprintln(w, "------------------------------")
	fmt.Fprintf(w, "Status: %s\n", status)
	if st.MapCount == 0 && st.TotalDrops == 0 {
		fmt.Fprintln(w, "No maps yet.")
		return
	}
	fmt.Fprintf(w, "Maps: %d (avg %s)\n", st.MapCount, ms(st.AvgMapTimeMs))
	if st.InMap {
		fmt.Fprintf(w, "Map time: %s\n", ms(st.MapDurationMs))
		fmt.Fprintf(w, "Map income: %.2f FE (%.2f/min)\n", st.MapIncome, st.MapPerMinute)
	}
	fmt.Fprintf(w, "Time in maps: %s\n", ms(st.TotalTimeMs))
	fmt.Fprintf(w, "Total income: %.2f FE (%.2f/min, %.2f/hour)\n", st.TotalIncome, st.TotalPerMinute, st.EarningsPerHour)

	drops := app.SortedDrops(st.AllTally, pricing.FilterAll)
	if len(drops) == 0 {
		fmt.Fprintln(w, "Drops: (none yet)")
	} else {
		fmt.Fprintln(w, "Drops:")
		for _, it := range drops {
			fmt.Fprintf(w, "  %s %s x%d = %.2f\n", it.Freshness, it.Name, it.Count, it.Value)
		}
	}
	if len(st.Pending) > 0 {
		fmt.Fprintf(w, "Unpriced ids: %v\n", st.Pending)
	}
	if len(st.Bag) > 0 {
		var held int
		for _, n := range st.Bag {
			held += n
		}
		fmt.Fprintf(w, "Bag: %d items of %d kinds\n", held, len(st.Bag))
	}

	if len(st.Recent) > 0 {
		last := st.Recent
		if len(last) > 10 {
			last = last[len(last)-10:]
		}
		fmt.Fprintln(w, "Recent events:")
		for _, ev := range last {
			fmt.Fprintf(w, "- %s %s\n", time.UnixMilli(ev.Time).Format(time.Kitchen), ev.Kind)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ms(v int64) time.Duration {
	return (time.Duration(v) * time.Millisecond).Truncate(time.Second)
}
