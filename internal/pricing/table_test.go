package pricing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TorchLedger/internal/types"
)

func writeTable(t *testing.T, items map[string]Item) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), TableFile)
	b, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadTableExplicitPath(t *testing.T) {
	t.Setenv(EnvTablePath, "")
	path := writeTable(t, map[string]Item{"42": {Name: "Probe", Type: "Currency", Price: 3}})

	tbl, err := LoadTable(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, path, tbl.Path())
	assert.Equal(t, "config:"+path, tbl.Origin())

	p, ok := tbl.Price(42)
	assert.True(t, ok)
	assert.Equal(t, 3.0, p)
	assert.Equal(t, "Probe", tbl.Name(42))
	assert.Equal(t, "Unknown item (ID: 7)", tbl.Name(7))
}

func TestLoadTableEnvOverride(t *testing.T) {
	path := writeTable(t, map[string]Item{"5": {Name: "Env", Price: 1}})
	t.Setenv(EnvTablePath, path)

	tbl, err := LoadTable("", nil)
	require.NoError(t, err)
	assert.Equal(t, "env:"+path, tbl.Origin())
}

func TestLoadTableEmbeddedFallback(t *testing.T) {
	t.Setenv(EnvTablePath, "")
	missing := filepath.Join(t.TempDir(), "nope.json")

	tbl, err := LoadTable(missing, nil)
	require.NoError(t, err)
	assert.Equal(t, "embedded", tbl.Origin())
	assert.Equal(t, missing, tbl.Path())
	_, ok := tbl.Lookup(types.BaseCurrencyID)
	assert.True(t, ok)
}

func TestLoadTableSkipsCorruptFile(t *testing.T) {
	t.Setenv(EnvTablePath, "")
	path := filepath.Join(t.TempDir(), TableFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	tbl, err := LoadTable(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "embedded", tbl.Origin())
}

func TestApplyLocal(t *testing.T) {
	tbl := NewTable(map[string]Item{
		"10":     {Name: "Ten", Price: 1},
		"100300": {Name: "FE", Price: 1},
	}, "")
	now := time.Unix(1700000000, 0)

	assert.True(t, tbl.ApplyLocal(types.PriceSample{ItemID: 10, Price: 2.123456, Samples: 5}, now))
	it, _ := tbl.Lookup(10)
	assert.Equal(t, 2.1235, it.Price)
	assert.Equal(t, FromLocal, it.From)
	assert.Equal(t, float64(1700000000), it.LastUpdate)

	assert.False(t, tbl.ApplyLocal(types.PriceSample{ItemID: 10, Price: -1}, now), "empty result")
	assert.False(t, tbl.ApplyLocal(types.PriceSample{ItemID: types.BaseCurrencyID, Price: 9, Samples: 1}, now))
	assert.False(t, tbl.ApplyLocal(types.PriceSample{ItemID: 99, Price: 9, Samples: 1}, now), "unknown id")

	fe, _ := tbl.Lookup(types.BaseCurrencyID)
	assert.Equal(t, 1.0, fe.Price)
}

func TestMerge(t *testing.T) {
	tbl := NewTable(map[string]Item{
		"1": {Name: "A", Price: 1, LastUpdate: 10},
		"2": {Name: "B", Price: 2, LastUpdate: 20},
	}, "")
	changed, matched := tbl.Merge(map[string]PriceUpdate{
		"1": {Price: 5, LastUpdate: 11},
		"2": {Price: 2, LastUpdate: 20},
		"3": {Price: 9, LastUpdate: 30},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, 2, matched)
	a, _ := tbl.Lookup(1)
	assert.Equal(t, 5.0, a.Price)
	assert.Equal(t, []int{1, 2}, tbl.IDs())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", TableFile)
	tbl := NewTable(map[string]Item{"1": {Name: "A", Type: "Compass", Price: 0.5}}, path)
	require.NoError(t, tbl.Save())

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	again, err := LoadTable(path, nil)
	require.NoError(t, err)
	it, ok := again.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, Item{Name: "A", Type: "Compass", Price: 0.5}, it)
}

func TestTableUnitPrice(t *testing.T) {
	tbl := NewTable(map[string]Item{"1": {Price: 2}, "100300": {Price: 1}}, "")
	p, ok := tbl.UnitPrice(1, true)
	assert.True(t, ok)
	assert.InDelta(t, 1.75, p, 1e-9)
	p, _ = tbl.UnitPrice(types.BaseCurrencyID, true)
	assert.Equal(t, 1.0, p)
	_, ok = tbl.UnitPrice(3, true)
	assert.False(t, ok)
}
