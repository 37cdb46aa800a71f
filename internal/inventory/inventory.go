// Package inventory tracks bag contents from BagMgr log events and turns slot
// updates into per-item quantity changes.
package inventory

import (
	"sync"

	"go.uber.org/zap"

	"TorchLedger/internal/types"
)

// MinInitSlots is how many InitBagData entries a full bag dump must contain before
// it is trusted as the inventory baseline.
const MinInitSlots = 20

// Snapshot maps an item id to the held quantity.
type Snapshot map[int]int

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Diff returns the quantities gained and lost going from prev to next.
// Items whose quantity did not change appear in neither result.
func Diff(prev, next Snapshot) (gained, lost Snapshot) {
	gained, lost = Snapshot{}, Snapshot{}
	for id, n := range next {
		if d := n - prev[id]; d > 0 {
			gained[id] = d
		} else if d < 0 {
			lost[id] = -d
		}
	}
	for id, n := range prev {
		if _, ok := next[id]; !ok && n > 0 {
			lost[id] = n
		}
	}
	return gained, lost
}

// Change is a net quantity change for one item. Positive is a drop,
// negative is consumption.
type Change struct {
	ItemID int
	Delta  int
}

// Differ holds slot quantities and per-item baselines.
type Differ struct {
	mu  sync.Mutex
	log *zap.Logger

	minInit  int
	slots    map[types.SlotKey]int
	baseline Snapshot

	initialized bool
	awaiting    bool
	burst       []types.BagEvent
}

// Option configures a Differ.
type Option func(*Differ)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *zap.Logger) Option {
	return func(d *Differ) { d.log = l.Named("inventory") }
}

// WithMinInitSlots overrides MinInitSlots.
func WithMinInitSlots(n int) Option {
	return func(d *Differ) {
		if n > 0 {
			d.minInit = n
		}
	}
}

func New(opts ...Option) *Differ {
	d := &Differ{
		log:      zap.NewNop(),
		minInit:  MinInitSlots,
		slots:    make(map[types.SlotKey]int),
		baseline: Snapshot{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Initialized reports whether a full bag dump has been accepted.
func (d *Differ) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Awaiting reports whether BeginInit was called and no dump has been accepted yet.
func (d *Differ) Awaiting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.awaiting
}

// BeginInit arms the differ to take the next full bag dump as its baseline.
// It returns false when an initialization is already pending.
func (d *Differ) BeginInit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.awaiting {
		d.log.Warn("initialization already in progress")
		return false
	}
	d.awaiting = true
	d.burst = d.burst[:0]
	d.log.Info("initialization started, waiting for bag dump")
	return true
}

// ApplyInit records an InitBagData entry. While awaiting initialization the
// entries are buffered until EndBurst; otherwise the slot is seeded directly.
func (d *Differ) ApplyInit(b types.BagEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.awaiting {
		d.burst = append(d.burst, b)
		return
	}
	// A resent slot is a resync, never a drop.
	prev := Snapshot{b.ConfigBaseID: d.totalLocked(b.ConfigBaseID)}
	d.slots[b.Key()] = b.Num
	cur := d.totalLocked(b.ConfigBaseID)
	d.baseline[b.ConfigBaseID] = cur
	if gained, lost := Diff(prev, Snapshot{b.ConfigBaseID: cur}); len(gained)+len(lost) > 0 {
		d.log.Debug("slot resynced", zap.Int("item", b.ConfigBaseID),
			zap.Int("gained", gained[b.ConfigBaseID]), zap.Int("lost", lost[b.ConfigBaseID]))
	}
}

// EndBurst closes a run of InitBagData entries. If the differ was awaiting
// initialization and the burst is large enough, the burst replaces the bag state
// and the number of distinct items is returned with ok=true.
func (d *Differ) EndBurst() (items int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.awaiting || len(d.burst) == 0 {
		return 0, false
	}
	if len(d.burst) < d.minInit {
		d.log.Debug("bag dump too small, still waiting", zap.Int("entries", len(d.burst)))
		d.burst = d.burst[:0]
		return 0, false
	}
	prev := d.totalsLocked()
	d.slots = make(map[types.SlotKey]int, len(d.burst))
	for _, b := range d.burst {
		d.slots[b.Key()] = b.Num
	}
	d.baseline = d.totalsLocked()
	gained, lost := Diff(prev, d.baseline)
	d.initialized = true
	d.awaiting = false
	d.log.Info("initialization complete",
		zap.Int("items", len(d.baseline)),
		zap.Int("slots", len(d.burst)),
		zap.Int("items_gained", len(gained)),
		zap.Int("items_lost", len(lost)))
	d.burst = d.burst[:0]
	return len(d.baseline), true
}

// ApplyMod records a single Modfy BagItem entry. See ApplyMods.
func (d *Differ) ApplyMod(b types.BagEvent) []Change {
	return d.ApplyMods(b)
}

// ApplyMods records Modfy BagItem entries logged together and returns one
// change per item whose total moved, so a stack split across slots nets out.
// Before initialization only increases of the item total are reported, since a
// decrease cannot be told apart from a slot that was never seen.
func (d *Differ) ApplyMods(bs ...types.BagEvent) []Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	var order []int
	before := make(map[int]int, len(bs))
	for _, b := range bs {
		if _, ok := before[b.ConfigBaseID]; !ok {
			before[b.ConfigBaseID] = d.totalLocked(b.ConfigBaseID)
			order = append(order, b.ConfigBaseID)
		}
	}
	for _, b := range bs {
		d.slots[b.Key()] = b.Num
	}

	var out []Change
	for _, id := range order {
		cur := d.totalLocked(id)
		if !d.initialized {
			d.baseline[id] = cur
			if delta := cur - before[id]; delta > 0 {
				out = append(out, Change{ItemID: id, Delta: delta})
			}
			continue
		}
		if net := cur - d.baseline[id]; net != 0 {
			d.baseline[id] = cur
			out = append(out, Change{ItemID: id, Delta: net})
		}
	}
	return out
}

// ResetBaseline sets every item's baseline to its current total and returns the
// number of items covered.
func (d *Differ) ResetBaseline() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = d.totalsLocked()
	return len(d.baseline)
}

// Reset clears all state, including initialization.
func (d *Differ) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots = make(map[types.SlotKey]int)
	d.baseline = Snapshot{}
	d.initialized = false
	d.awaiting = false
	d.burst = d.burst[:0]
}

// Summary returns the current per-item totals. Items with nothing held are left out.
func (d *Differ) Summary() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalsLocked()
}

func (d *Differ) totalLocked(item int) int {
	var n int
	for k, v := range d.slots {
		if k.ConfigBaseID == item {
			n += v
		}
	}
	return n
}

func (d *Differ) totalsLocked() Snapshot {
	out := Snapshot{}
	for k, v := range d.slots {
		if v != 0 {
			out[k.ConfigBaseID] += v
		}
	}
	return out
}
