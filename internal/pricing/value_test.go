package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnitPrice(t *testing.T) {
	assert.Equal(t, 8.0, UnitPrice(8, 1, false))
	assert.Equal(t, 7.0, UnitPrice(8, 1, true))
	assert.Equal(t, 8.0, UnitPrice(8, 100300, true))
}

func TestFreshnessOf(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := func(d time.Duration) float64 { return float64(now.Add(-d).Unix()) }

	cases := []struct {
		name string
		last float64
		want Freshness
	}{
		{"just now", ts(time.Minute), Fresh},
		{"under two hours", ts(119 * time.Minute), Fresh},
		{"two hours", ts(2 * time.Hour), Stale},
		{"a day", ts(24 * time.Hour), Old},
		{"never", 0, Old},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FreshnessOf(tc.last, now))
		})
	}
	assert.Equal(t, "✔", Fresh.Symbol())
	assert.Equal(t, "stale", Stale.String())
}

func TestCategoryRank(t *testing.T) {
	assert.Equal(t, 0, CategoryRank("Compass"))
	assert.Less(t, CategoryRank("Currency"), CategoryRank("Hard Currency"))
	assert.Greater(t, CategoryRank("Mystery"), CategoryRank("Hard Currency"))
}

func TestFilterMatch(t *testing.T) {
	assert.True(t, FilterAll.Match("anything"))
	assert.True(t, FilterCurrency.Match("Hard Currency"))
	assert.False(t, FilterCurrency.Match("Compass"))
	assert.True(t, FilterGlow.Match("Memory Fluorescence"))
	assert.True(t, FilterOthers.Match("Tower Material"))
	assert.False(t, FilterOthers.Match("Compass"))
}

func TestFilterNextCycles(t *testing.T) {
	f := FilterAll
	for range Filters {
		f = f.Next()
	}
	assert.Equal(t, FilterAll, f)
	assert.Equal(t, FilterAll, Filter("bogus").Next())
}
