package app

import (
	"sort"
	"strconv"
	"time"

	"TorchLedger/internal/inventory"
	"TorchLedger/internal/pricing"
)

// UITallyItem is one counted item id enriched with table metadata.
type UITallyItem struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Price      float64 `json:"price"` // after tax when enabled
	LastUpdate float64 `json:"last_update"`
	From       string  `json:"from"`
	Count      int     `json:"count"`
	Value      float64 `json:"value"`
	Freshness  string  `json:"freshness"`
	Known      bool    `json:"known"`
}

type UIMap struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	DurationMs int64   `json:"durationMs"`
	Earnings   float64 `json:"earnings"`
}

type UIEvent struct {
	Time int64  `json:"time"`
	Kind string `json:"kind"`
}

type UIState struct {
	Running       bool   `json:"running"`
	LogPath       string `json:"logPath"`
	InMap         bool   `json:"inMap"`
	Initialized   bool   `json:"initialized"`
	AwaitingInit  bool   `json:"awaitingInit"`
	SessionStart  int64  `json:"sessionStart"`
	SessionEnd    int64  `json:"sessionEnd"`
	SessionPaused bool   `json:"sessionPaused"`
	PausedAt      int64  `json:"pausedAt"`
	PausedAccumMs int64  `json:"pausedAccumMs"`
	MapStart      int64  `json:"mapStart"`
	MapEnd        int64  `json:"mapEnd"`
	MapCount      int    `json:"mapCount"`
	MapDurationMs int64  `json:"mapDurationMs"`
	TotalTimeMs   int64  `json:"totalTimeMs"`
	TotalDrops    int    `json:"totalDrops"`

	Tally    map[string]UITallyItem `json:"tally"`    // current map
	AllTally map[string]UITallyItem `json:"allTally"` // every map since reset
	Pending  []int                  `json:"pending"`
	Bag      map[string]int         `json:"bag"` // held quantity by item id
	Recent   []UIEvent              `json:"recent"`
	Maps     []UIMap                `json:"maps"`

	MapIncome          float64 `json:"mapIncome"`
	MapPerMinute       float64 `json:"mapPerMinute"`
	TotalIncome        float64 `json:"totalIncome"`
	TotalPerMinute     float64 `json:"totalPerMinute"`
	EarningsPerSession float64 `json:"earningsPerSession"`
	EarningsPerHour    float64 `json:"earningsPerHour"`
	AvgMapTimeMs       int64   `json:"avgMapTimeMs"`

	Tax    bool   `json:"tax"`
	Filter string `json:"filter"`
}

// GetState returns the latest state snapshot for the UI to pull on demand.
func (a *App) GetState() UIState {
	return a.UIState()
}

// UIState converts internal tracker state to a JSON-friendly struct for the UI.
func (a *App) UIState() UIState {
	st := a.trk.GetState()
	// snapshot app-level session fields
	a.mu.Lock()
	startedAt := a.trackStartedAt
	stoppedAt := a.trackStoppedAt
	paused := a.trackPaused
	pausedAt := a.trackPausedAt
	pausedAccum := a.trackPausedAccum
	lastEv := a.lastEventAt
	replay := a.replay
	running := a.cancel != nil
	logPath := a.logPath
	filter := a.prefs.Filter
	tbl := a.table
	a.mu.Unlock()

	now := time.Now()
	clock := now
	if replay && !lastEv.IsZero() {
		clock = lastEv // clamp to last event time to avoid huge durations when parsing old logs
	}
	mapStats := a.trk.MapStats(clock)
	total := a.trk.TotalStats(clock)
	tax := a.trk.Tax()

	maps := make([]UIMap, 0, len(st.Completed)+1)
	var sumMs int64
	for _, m := range st.Completed {
		durMs := m.Duration(m.EndedAt).Milliseconds()
		maps = append(maps, UIMap{Start: m.StartedAt.UnixMilli(), End: m.EndedAt.UnixMilli(), DurationMs: durMs, Earnings: m.Net()})
		sumMs += durMs
	}
	var avgMapMs int64
	if len(st.Completed) > 0 {
		avgMapMs = sumMs / int64(len(st.Completed))
	}
	inMap := st.InMap && st.Current.Active
	if inMap {
		maps = append(maps, UIMap{Start: st.Current.StartedAt.UnixMilli(), DurationMs: mapStats.Duration.Milliseconds(), Earnings: mapStats.Income})
	}

	// compute earnings per hour over session active time (excluding pauses)
	var sessionStartMs, sessionEndMs, pausedAccumMs, calcEndMs int64
	if !startedAt.IsZero() {
		sessionStartMs = startedAt.UnixMilli()
		pausedAccumMs = pausedAccum.Milliseconds()
		switch {
		case !stoppedAt.IsZero():
			calcEndMs = stoppedAt.UnixMilli()
			sessionEndMs = calcEndMs
		case paused && !pausedAt.IsZero():
			calcEndMs = pausedAt.UnixMilli()
		default:
			calcEndMs = now.UnixMilli()
		}
	}
	var eph float64
	if replay {
		// wall time says nothing about a replayed log; use time spent in maps
		if total.Duration > 0 {
			eph = total.Income / total.Duration.Hours()
		}
	} else if sessionStartMs > 0 && calcEndMs > sessionStartMs {
		if active := (calcEndMs - sessionStartMs) - pausedAccumMs; active > 0 {
			eph = total.Income / (float64(active) / 3600000.0)
		}
	}

	recent := make([]UIEvent, 0, len(st.LastEvents))
	for _, ev := range st.LastEvents {
		recent = append(recent, UIEvent{Time: ev.Time.UnixMilli(), Kind: ev.Kind.String()})
	}

	var pausedAtMs int64
	if paused {
		pausedAtMs = pausedAt.UnixMilli()
	}
	var mapEndMs int64
	if !st.Current.EndedAt.IsZero() {
		mapEndMs = st.Current.EndedAt.UnixMilli()
	}
	var mapStartMs int64
	if !st.Current.StartedAt.IsZero() {
		mapStartMs = st.Current.StartedAt.UnixMilli()
	}

	return UIState{
		Running:            running,
		LogPath:            logPath,
		InMap:              inMap,
		Initialized:        a.inv.Initialized(),
		AwaitingInit:       a.inv.Awaiting(),
		SessionStart:       sessionStartMs,
		SessionEnd:         sessionEndMs,
		SessionPaused:      paused,
		PausedAt:           pausedAtMs,
		PausedAccumMs:      pausedAccumMs,
		MapStart:           mapStartMs,
		MapEnd:             mapEndMs,
		MapCount:           st.MapCount,
		MapDurationMs:      mapStats.Duration.Milliseconds(),
		TotalTimeMs:        total.Duration.Milliseconds(),
		TotalDrops:         st.TotalDrops,
		Tally:              buildTally(tbl, st.Current.Tally, tax, now),
		AllTally:           buildTally(tbl, st.Totals, tax, now),
		Pending:            a.trk.PendingIDs(),
		Bag:                bagState(a.inv.Summary()),
		Recent:             recent,
		Maps:               maps,
		MapIncome:          mapStats.Income,
		MapPerMinute:       mapStats.IncomePerMinute,
		TotalIncome:        total.Income,
		TotalPerMinute:     total.IncomePerMinute,
		EarningsPerSession: total.Income,
		EarningsPerHour:    eph,
		AvgMapTimeMs:       avgMapMs,
		Tax:                tax,
		Filter:             filter,
	}
}

func bagState(held inventory.Snapshot) map[string]int {
	out := make(map[string]int, len(held))
	for id, n := range held {
		out[strconv.Itoa(id)] = n
	}
	return out
}

func buildTally(tbl *pricing.Table, counts map[int]int, tax bool, now time.Time) map[string]UITallyItem {
	out := make(map[string]UITallyItem, len(counts))
	for id, n := range counts {
		key := strconv.Itoa(id)
		if tbl != nil {
			if info, ok := tbl.Lookup(id); ok {
				unit := pricing.UnitPrice(info.Price, id, tax)
				out[key] = UITallyItem{
					ID:         id,
					Name:       info.Name,
					Type:       info.Type,
					Price:      unit,
					LastUpdate: info.LastUpdate,
					From:       info.From,
					Count:      n,
					Value:      float64(n) * unit,
					Freshness:  pricing.FreshnessOf(info.LastUpdate, now).Symbol(),
					Known:      true,
				}
				continue
			}
		}
		// Fallback: show unknown IDs so the tally is visible even without item table
		out[key] = UITallyItem{ID: id, Name: "#" + key, Type: "Unknown", Count: n}
	}
	return out
}

// SortedDrops lists the tally entries that pass f, ordered by category and then
// by value, highest first. Items without a known value sort last.
func SortedDrops(tally map[string]UITallyItem, f pricing.Filter) []UITallyItem {
	out := make([]UITallyItem, 0, len(tally))
	for _, it := range tally {
		if it.Count == 0 {
			continue
		}
		if it.Known && !f.Match(it.Type) {
			continue
		}
		if !it.Known && f != pricing.FilterAll && f != pricing.FilterOthers && f != "" {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Known != out[j].Known {
			return out[i].Known
		}
		ri, rj := pricing.CategoryRank(out[i].Type), pricing.CategoryRank(out[j].Type)
		if ri != rj {
			return ri < rj
		}
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ID < out[j].ID
	})
	return out
}
