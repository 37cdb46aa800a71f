package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TorchLedger/internal/parser"
)

const bossScene = "/Game/Art/Maps/07YJ/YJ_Boss/YJ_Boss.YJ_Boss"

func moveScene(ts, from, to string) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] PageApplyBase@ _UpdateGameEnd: LastSceneName = World'%s' NextSceneName = World'%s'", ts, from, to)
}

func TestBossRoomStaysInOneMap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tracker.MapCost = 10
	a := startApp(t, cfg, WithTable(testTable()))
	ingest(t, a,
		moveScene("2025.11.04-19.20.00:000", parser.RefugePath, mapScene),
		bagMod("2025.11.04-19.20.10:000", 1, 1, 5210, 1),
		moveScene("2025.11.04-19.21.00:000", mapScene, bossScene),
		bagMod("2025.11.04-19.21.10:000", 1, 1, 5210, 2),
		moveScene("2025.11.04-19.22.00:000", bossScene, parser.RefugePath),
	)
	st := a.UIState()
	assert.Equal(t, 1, st.MapCount)
	assert.InDelta(t, -6.0, st.TotalIncome, 1e-9, "cost is charged once")
	assert.Equal(t, 2, st.AllTally["5210"].Count)

	runs, err := a.History().Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, map[int]int{5210: 2}, runs[0].Drops)
	assert.Equal(t, int64(120000), runs[0].Duration.Milliseconds())
}

func TestDropsAfterLeavingMapStillCount(t *testing.T) {
	a := startApp(t, testConfig(t), WithTable(testTable()))
	ingest(t, a,
		moveScene("2025.11.04-19.20.00:000", parser.RefugePath, mapScene),
		bagMod("2025.11.04-19.20.10:000", 1, 1, 5210, 1),
		leaveMap("2025.11.04-19.21.00:000"),
		bagMod("2025.11.04-19.21.30:000", 1, 1, 5210, 3),
	)
	st := a.UIState()
	assert.Equal(t, 3, st.TotalDrops)
	assert.Equal(t, 3, st.AllTally["5210"].Count)
	assert.InDelta(t, 6.0, st.TotalIncome, 1e-9)
	assert.True(t, st.InMap, "a change outside a map resumes map tracking")
	assert.Equal(t, 1, st.MapCount)
}

func TestStackMoveIsNotADrop(t *testing.T) {
	a := startApp(t, testConfig(t), WithTable(testTable()))
	ingest(t, a,
		bagInit("2025.11.04-19.19.00:000", 1, 1, 5210, 5),
		enterMap("2025.11.04-19.20.00:000"),
		bagMod("2025.11.04-19.20.10:000", 1, 1, 5210, 3),
		bagMod("2025.11.04-19.20.10:000", 1, 2, 5210, 2),
	)
	st := a.UIState()
	assert.Zero(t, st.TotalDrops)
	assert.Empty(t, st.Tally)

	ingest(t, a, bagMod("2025.11.04-19.20.20:000", 1, 2, 5210, 4))
	assert.Equal(t, 2, a.UIState().Tally["5210"].Count)
}
