package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TorchLedger/internal/app"
)

func TestOncePrintsTotals(t *testing.T) {
	ws := newWorkspace(t, sampleLog())
	out, err := execute(t, ws, "once")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: In Map")
	assert.Contains(t, out, "Maps: 1")
	assert.Contains(t, out, "Fluorescent Memory x2 = 1.00")
	assert.Contains(t, out, "Total income: 1.00 FE")
	assert.Contains(t, out, "Bag: 2 items of 1 kinds")

	_, err = os.Stat(ws.history)
	assert.True(t, os.IsNotExist(err), "once must not write the run history")
}

func TestOnceJSONWithPathArgument(t *testing.T) {
	ws := newWorkspace(t, "")
	other := filepath.Join(t.TempDir(), "other.log")
	require.NoError(t, os.WriteFile(other, []byte(sampleLog()), 0o644))
	t.Setenv("TORCHLEDGER_TEST_LOG", other)

	out, err := execute(t, ws, "once", "--json", "$TORCHLEDGER_TEST_LOG")
	require.NoError(t, err)
	var st app.UIState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.TotalDrops)
	assert.Equal(t, 1, st.MapCount)
	assert.InDelta(t, 1.0, st.TotalIncome, 1e-9)
	assert.Equal(t, map[string]int{"1001": 2}, st.Bag)
}

func TestOnceMissingFile(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := execute(t, ws, "once", filepath.Join(ws.dir, "missing.log"))
	require.Error(t, err)
}

func TestPrintStateNoMaps(t *testing.T) {
	var b strings.Builder
	printState(&b, app.UIState{})
	assert.Contains(t, b.String(), "Status: Idle")
	assert.Contains(t, b.String(), "No maps yet.")
}

func TestPrintStatePausedWithPending(t *testing.T) {
	var b strings.Builder
	printState(&b, app.UIState{
		SessionPaused: true,
		MapCount:      3,
		TotalDrops:    1,
		AvgMapTimeMs:  61_500,
		Pending:       []int{4242},
		Recent:        []app.UIEvent{{Time: 0, Kind: "MapEnd"}},
	})
	out := b.String()
	assert.Contains(t, out, "Status: Paused")
	assert.Contains(t, out, "Maps: 3 (avg 1m1s)")
	assert.Contains(t, out, "Drops: (none yet)")
	assert.Contains(t, out, "Unpriced ids: [4242]")
	assert.Contains(t, out, "MapEnd")
}
