package pricing

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"TorchLedger/internal/types"
)

// TableFile is the on-disk name of the item table.
const TableFile = "full_table.json"

// EnvTablePath overrides where the item table is read from.
const EnvTablePath = "TORCHLEDGER_ITEM_TABLE"

// FromLocal marks prices observed from the player's own price checks.
const FromLocal = "Local"

//go:embed data/full_table.json
var embeddedFS embed.FS

// Item is one entry of full_table.json.
type Item struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Price      float64 `json:"price"`
	LastUpdate float64 `json:"last_update,omitempty"`
	LastTime   float64 `json:"last_time,omitempty"`
	From       string  `json:"from,omitempty"`
}

// Source answers price lookups by item id.
type Source interface {
	Price(id int) (float64, bool)
}

// Table is the item table keyed by decimal item id. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	items  map[string]Item
	path   string
	source string
	log    *zap.Logger
}

// NewTable wraps items in a Table that saves to path.
func NewTable(items map[string]Item, path string) *Table {
	if items == nil {
		items = map[string]Item{}
	}
	return &Table{items: items, path: path, source: "memory", log: zap.NewNop()}
}

// LoadTable reads the item table, trying in order: explicit path, $TORCHLEDGER_ITEM_TABLE,
// the working directory, the executable directory and finally the embedded copy.
// Saves go to the first file location that loaded, or path (./full_table.json if empty).
func LoadTable(path string, log *zap.Logger) (*Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Table{log: log.Named("pricing")}

	candidates := make([][2]string, 0, 4)
	if path != "" {
		candidates = append(candidates, [2]string{"config", path})
	}
	if p := os.Getenv(EnvTablePath); p != "" {
		candidates = append(candidates, [2]string{"env", p})
	}
	candidates = append(candidates, [2]string{"file", TableFile})
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, [2]string{"exe_dir", filepath.Join(filepath.Dir(exe), TableFile)})
	}

	for _, c := range candidates {
		m, err := readTable(c[1])
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				t.log.Warn("item table unreadable", zap.String("path", c[1]), zap.Error(err))
			}
			continue
		}
		t.items, t.path, t.source = m, c[1], c[0]+":"+c[1]
		t.log.Info("item table loaded", zap.Int("items", len(m)), zap.String("source", t.source))
		return t, nil
	}

	b, err := embeddedFS.ReadFile("data/" + TableFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded item table: %w", err)
	}
	m, err := decodeTable(b)
	if err != nil {
		return nil, fmt.Errorf("decode embedded item table: %w", err)
	}
	t.items, t.source = m, "embedded"
	t.path = path
	if t.path == "" {
		t.path = TableFile
	}
	t.log.Info("item table loaded", zap.Int("items", len(m)), zap.String("source", t.source))
	return t, nil
}

func readTable(path string) (map[string]Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeTable(b)
}

func decodeTable(b []byte) (map[string]Item, error) {
	var m map[string]Item
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("empty item table")
	}
	return m, nil
}

// Origin describes where the table was loaded from.
func (t *Table) Origin() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.source
}

// Path is where Save writes.
func (t *Table) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

// Len returns the number of known items.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Lookup returns the entry for id.
func (t *Table) Lookup(id int) (Item, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	it, ok := t.items[strconv.Itoa(id)]
	return it, ok
}

// Price implements Source.
func (t *Table) Price(id int) (float64, bool) {
	it, ok := t.Lookup(id)
	if !ok {
		return 0, false
	}
	return it.Price, true
}

// UnitPrice is the price of id after the optional market fee.
func (t *Table) UnitPrice(id int, tax bool) (float64, bool) {
	p, ok := t.Price(id)
	if !ok {
		return 0, false
	}
	return UnitPrice(p, id, tax), true
}

// Name returns the display name of id, or a placeholder for unknown ids.
func (t *Table) Name(id int) string {
	if it, ok := t.Lookup(id); ok && it.Name != "" {
		return it.Name
	}
	return fmt.Sprintf("Unknown item (ID: %d)", id)
}

// ApplyLocal records a price observed in the log. Non-positive prices, the base
// currency and ids missing from the table are ignored.
func (t *Table) ApplyLocal(s types.PriceSample, now time.Time) bool {
	if s.Price <= 0 || s.Samples == 0 || s.ItemID == types.BaseCurrencyID {
		return false
	}
	key := strconv.Itoa(s.ItemID)
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[key]
	if !ok {
		return false
	}
	ts := float64(now.Unix())
	it.Price = math.Round(s.Price*10000) / 10000
	it.LastUpdate = ts
	it.LastTime = ts
	it.From = FromLocal
	t.items[key] = it
	return true
}

// Merge applies remote updates to ids already in the table. It returns how many
// entries changed and how many updates matched a known id.
func (t *Table) Merge(updates map[string]PriceUpdate) (changed, matched int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, u := range updates {
		it, ok := t.items[id]
		if !ok {
			continue
		}
		matched++
		if u.Apply(&it) {
			t.items[id] = it
			changed++
		}
	}
	return changed, matched
}

// IDs returns all known ids in ascending order.
func (t *Table) IDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, 0, len(t.items))
	for k := range t.items {
		if n, err := strconv.Atoi(k); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the entries the way full_table.json stores them.
func (t *Table) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(t.items)
}

// Save writes the whole table as indented JSON, replacing the file atomically.
func (t *Table) Save() error {
	t.mu.RLock()
	b, err := json.MarshalIndent(t.items, "", "  ")
	path := t.path
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode item table: %w", err)
	}
	if path == "" {
		path = TableFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create table dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write item table: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace item table: %w", err)
	}
	return nil
}
