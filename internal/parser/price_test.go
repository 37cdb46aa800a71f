package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TorchLedger/internal/types"
)

func feedAll(p *Parser, lines ...string) []*types.Event {
	var out []*types.Event
	for _, l := range lines {
		out = append(out, p.Feed(l)...)
	}
	return out
}

func searchLines(syn, item int) []string {
	return []string{
		fmt.Sprintf("[2025.11.04-19.30.00:000][100]GameLog: Display: [Game] ----Socket SendMessage STT----XchgSearchPrice----SynId = %d", syn),
		"[2025.11.04-19.30.00:000][100]GameLog: Display: [Game] +filter",
		fmt.Sprintf("[2025.11.04-19.30.00:000][100]GameLog: Display: [Game] +refer [%d]", item),
	}
}

func TestFeedPriceBlockAverage(t *testing.T) {
	p := New()
	lines := searchLines(42, 5210)
	lines = append(lines,
		"[2025.11.04-19.30.01:000][101]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 42",
		"[2025.11.04-19.30.01:000][101]GameLog: Display: [Game] +prices",
		"+1 [1.5]",
		"+2 [2.5] +3 [3.0]",
	)
	evs := feedAll(p, lines...)
	assert.Empty(t, evs, "block must stay open until the next socket message")

	closing := p.Feed("[2025.11.04-19.30.02:000][102]GameLog: Display: [Game] ----Socket RecvMessage STT----Other----SynId = 43")
	require.Len(t, closing, 1)
	ev := closing[0]
	assert.Equal(t, types.EventPriceCheck, ev.Kind)
	require.NotNil(t, ev.Price)
	assert.Equal(t, 5210, ev.Price.ItemID)
	assert.Equal(t, 42, ev.Price.SynID)
	assert.Equal(t, 3, ev.Price.Samples)
	assert.InDelta(t, 2.3333, ev.Price.Price, 1e-9)
}

func TestFeedPriceBlockCapsSamples(t *testing.T) {
	p := New()
	feedAll(p, searchLines(7, 300)...)
	feedAll(p, "[2025.11.04-19.30.01:000][101]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 7")
	var b strings.Builder
	for i := 1; i <= PriceSampleSize; i++ {
		fmt.Fprintf(&b, "+%d [1] ", i)
	}
	// listings past the cap must not move the average
	b.WriteString("+31 [1000] +32 [1000]")
	feedAll(p, b.String())

	ev := p.Flush()
	require.NotNil(t, ev)
	assert.Equal(t, PriceSampleSize, ev.Price.Samples)
	assert.Equal(t, 1.0, ev.Price.Price)
	assert.Nil(t, p.Flush(), "flush twice yields nothing")
}

func TestFeedPriceBlockWithoutListings(t *testing.T) {
	p := New()
	feedAll(p, searchLines(9, 400)...)
	feedAll(p, "[2025.11.04-19.30.01:000][101]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 9")
	ev := p.Flush()
	require.NotNil(t, ev)
	assert.Equal(t, -1.0, ev.Price.Price)
	assert.Zero(t, ev.Price.Samples)
}

func TestFeedIgnoresBaseCurrencyAndUnknownSyn(t *testing.T) {
	p := New()
	feedAll(p, searchLines(1, types.BaseCurrencyID)...)
	feedAll(p, "[x]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 1", "+1 [5]")
	assert.Nil(t, p.Flush())

	feedAll(p, "[x]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 999", "+1 [5]")
	assert.Nil(t, p.Flush())
}

func TestFeedPassesThroughOtherEventsInsideBlock(t *testing.T) {
	p := New()
	feedAll(p, searchLines(5, 600)...)
	feedAll(p, "[x]GameLog: Display: [Game] ----Socket RecvMessage STT----XchgSearchPrice----SynId = 5")
	evs := p.Feed(lineMod)
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventBagMod, evs[0].Kind)

	evs = p.Feed(lineMap)
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventMapStart, evs[0].Kind)
	require.NotNil(t, p.Flush())
}

func TestFeedSingleLineEvents(t *testing.T) {
	p := New()
	evs := p.Feed(lineInit + "\r\n")
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventBagInit, evs[0].Kind)
	assert.Empty(t, p.Feed("unrelated"))
}
