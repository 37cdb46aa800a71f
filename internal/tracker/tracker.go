package tracker

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"TorchLedger/internal/inventory"
	"TorchLedger/internal/pricing"
	"TorchLedger/internal/types"
)

const maxEvents = 100

// Catalog resolves item ids to prices and display names.
type Catalog interface {
	pricing.Source
	Name(id int) string
}

type MapSession struct {
	StartedAt time.Time
	EndedAt   time.Time
	Active    bool
	// Tally by ConfigBaseID -> net quantity gained during this session
	Tally  map[int]int
	Income float64
	Cost   float64
}

// Duration is the session length, measured to now while it is active.
func (s MapSession) Duration(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if s.Active || end.IsZero() {
		end = now
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Net is the session income after the map cost.
func (s MapSession) Net() float64 { return s.Income - s.Cost }

func (s MapSession) clone() MapSession {
	c := s
	c.Tally = make(map[int]int, len(s.Tally))
	for k, v := range s.Tally {
		c.Tally[k] = v
	}
	return c
}

type State struct {
	InMap      bool
	Current    MapSession
	Completed  []MapSession
	MapCount   int
	TotalTime  time.Duration // completed maps only
	TotalDrops int
	Totals     map[int]int
	Income     float64 // all maps, before costs
	Cost       float64
	Pending    map[int]int // ids missing from the catalog
	LastEvents []types.Event
}

// Counted is one change that reached the tallies.
type Counted struct {
	ItemID    int
	Name      string
	Delta     int
	UnitPrice float64
}

// Value is the signed worth of the change.
func (c Counted) Value() float64 { return float64(c.Delta) * c.UnitPrice }

// Stats summarizes either the current map or the whole run.
type Stats struct {
	Drops           map[int]int
	Income          float64
	Duration        time.Duration
	IncomePerMinute float64
	MapCount        int
}

type Tracker struct {
	mu      sync.Mutex
	state   State
	catalog Catalog
	tax     bool
	mapCost float64
	exclude map[string]struct{}
	log     *zap.Logger
}

type Option func(*Tracker)

func WithCatalog(c Catalog) Option { return func(t *Tracker) { t.catalog = c } }

func WithTax(on bool) Option { return func(t *Tracker) { t.tax = on } }

// WithMapCost charges cost against income on every map entry.
func WithMapCost(cost float64) Option { return func(t *Tracker) { t.mapCost = cost } }

func WithExclude(names []string) Option { return func(t *Tracker) { t.setExclude(names) } }

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{log: zap.NewNop(), exclude: map[string]struct{}{}}
	for _, o := range opts {
		o(t)
	}
	t.log = t.log.Named("tracker")
	t.state = freshState()
	return t
}

func freshState() State {
	return State{
		Totals:  make(map[int]int),
		Pending: make(map[int]int),
		Current: MapSession{Tally: make(map[int]int)},
	}
}

func (t *Tracker) SetTax(on bool) {
	t.mu.Lock()
	t.tax = on
	t.mu.Unlock()
}

func (t *Tracker) Tax() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tax
}

func (t *Tracker) SetMapCost(cost float64) {
	t.mu.Lock()
	t.mapCost = cost
	t.mu.Unlock()
}

func (t *Tracker) SetExclude(names []string) {
	t.mu.Lock()
	t.setExclude(names)
	t.mu.Unlock()
}

func (t *Tracker) setExclude(names []string) {
	t.exclude = make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			t.exclude[n] = struct{}{}
		}
	}
}

// Reset clears all statistics. Settings are kept.
func (t *Tracker) Reset() { t.ResetAt(time.Now()) }

// ResetAt clears all statistics. A map in progress stays open and restarts
// at the given time as the first map, without its cost.
func (t *Tracker) ResetAt(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	inMap := t.state.InMap && t.state.Current.Active
	t.state = freshState()
	if inMap {
		t.state.InMap = true
		t.state.MapCount = 1
		t.state.Current = MapSession{StartedAt: at, Active: true, Tally: make(map[int]int)}
	}
	t.log.Info("statistics reset", zap.Bool("in_map", inMap))
}

// GetState returns a snapshot copy of current state for use by UI/CLI.
func (t *Tracker) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	st.Current = t.state.Current.clone()
	st.Completed = make([]MapSession, len(t.state.Completed))
	for i, m := range t.state.Completed {
		st.Completed[i] = m.clone()
	}
	st.Totals = copyTally(t.state.Totals)
	st.Pending = copyTally(t.state.Pending)
	st.LastEvents = make([]types.Event, len(t.state.LastEvents))
	copy(st.LastEvents, t.state.LastEvents)
	return st
}

func copyTally(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *Tracker) appendEvent(ev types.Event) {
	t.state.LastEvents = append(t.state.LastEvents, ev)
	if len(t.state.LastEvents) > maxEvents {
		// drop oldest
		copy(t.state.LastEvents, t.state.LastEvents[len(t.state.LastEvents)-maxEvents:])
		t.state.LastEvents = t.state.LastEvents[:maxEvents]
	}
}

// OnEvent ingests a parsed log event and updates map state. It returns the
// session that the event closed, if any.
func (t *Tracker) OnEvent(ev *types.Event) *MapSession {
	if ev == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendEvent(*ev)

	switch ev.Kind {
	case types.EventMapStart:
		if t.hopLocked(ev) {
			t.log.Debug("moved within map", zap.String("from", ev.FromScene))
			return nil
		}
		// A start while in a map means the exit line was missed.
		closed := t.finishLocked(ev.Time)
		t.state.InMap = true
		t.state.MapCount++
		t.state.Current = MapSession{StartedAt: ev.Time, Active: true, Tally: make(map[int]int), Cost: t.mapCost}
		t.state.Cost += t.mapCost
		t.log.Info("entered map", zap.Int("map", t.state.MapCount))
		return closed
	case types.EventMapEnd:
		return t.finishLocked(ev.Time)
	}
	return nil
}

// IsHop reports whether ev moves between areas of the map in progress, such
// as into a boss room. A hop neither starts a new map nor charges its cost.
func (t *Tracker) IsHop(ev *types.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hopLocked(ev)
}

func (t *Tracker) hopLocked(ev *types.Event) bool {
	if ev == nil || ev.Kind != types.EventMapStart || !t.state.InMap || !t.state.Current.Active {
		return false
	}
	from := ev.FromScene
	return from != "" && from != types.RefugeScene && !strings.HasPrefix(from, types.UIScenePrefix)
}

func (t *Tracker) finishLocked(at time.Time) *MapSession {
	if !t.state.InMap || !t.state.Current.Active {
		return nil
	}
	t.state.InMap = false
	s := t.state.Current
	s.Active = false
	s.EndedAt = at
	t.state.Current = s
	d := s.Duration(at)
	t.state.TotalTime += d
	t.state.Completed = append(t.state.Completed, s.clone())
	t.log.Info("exited map", zap.Duration("duration", d), zap.Float64("income", s.Income))
	done := s.clone()
	return &done
}

// Record counts inventory changes against the current map.
func (t *Tracker) Record(changes []inventory.Change) []Counted {
	return t.RecordAt(time.Now(), changes)
}

// RecordAt counts changes observed at the given time. Changes for unknown ids
// or excluded items are not counted; unknown ids are remembered as pending.
// A change seen outside a map means the entry line was missed, so tracking
// resumes in a map session opened at that time. Such a session is not
// counted as a new map and carries no cost.
func (t *Tracker) RecordAt(at time.Time, changes []inventory.Change) []Counted {
	if len(changes) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.InMap || !t.state.Current.Active {
		t.state.InMap = true
		t.state.Current = MapSession{StartedAt: at, Active: true, Tally: make(map[int]int)}
		t.log.Info("changes outside a map, resuming map tracking")
	}

	merged := make(map[int]int, len(changes))
	order := make([]int, 0, len(changes))
	for _, c := range changes {
		if _, seen := merged[c.ItemID]; !seen {
			order = append(order, c.ItemID)
		}
		merged[c.ItemID] += c.Delta
	}

	var out []Counted
	for _, id := range order {
		delta := merged[id]
		if delta == 0 {
			continue
		}
		c, ok := t.countLocked(id, delta)
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tracker) countLocked(id, delta int) (Counted, bool) {
	if t.catalog == nil {
		t.state.Pending[id] += delta
		return Counted{}, false
	}
	price, known := t.catalog.Price(id)
	if !known {
		if _, seen := t.state.Pending[id]; !seen {
			t.log.Warn("unknown item id", zap.Int("id", id))
		}
		t.state.Pending[id] += delta
		return Counted{}, false
	}
	name := t.catalog.Name(id)
	if _, skip := t.exclude[name]; skip {
		t.log.Debug("excluded", zap.String("item", name), zap.Int("delta", delta))
		return Counted{}, false
	}
	unit := pricing.UnitPrice(price, id, t.tax)
	t.state.Current.Tally[id] += delta
	t.state.Totals[id] += delta
	if delta > 0 {
		t.state.TotalDrops += delta
	}
	v := float64(delta) * unit
	t.state.Current.Income += v
	t.state.Income += v
	return Counted{ItemID: id, Name: name, Delta: delta, UnitPrice: unit}, true
}

// MapStats reports the current map. Duration is zero outside a map.
func (t *Tracker) MapStats(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.state.Current
	var d time.Duration
	if t.state.InMap && cur.Active {
		d = cur.Duration(now)
	}
	income := cur.Net()
	return Stats{
		Drops:           copyTally(cur.Tally),
		Income:          income,
		Duration:        d,
		IncomePerMinute: perMinute(income, d),
		MapCount:        t.state.MapCount,
	}
}

// TotalStats reports every map since the last reset.
func (t *Tracker) TotalStats(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.state.TotalTime
	if t.state.InMap && t.state.Current.Active {
		d += t.state.Current.Duration(now)
	}
	income := t.state.Income - t.state.Cost
	return Stats{
		Drops:           copyTally(t.state.Totals),
		Income:          income,
		Duration:        d,
		IncomePerMinute: perMinute(income, d),
		MapCount:        t.state.MapCount,
	}
}

// PendingIDs lists unknown ids seen so far, ascending.
func (t *Tracker) PendingIDs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.state.Pending))
	for id := range t.state.Pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func perMinute(income float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return income / d.Minutes()
}
