package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"TorchLedger/internal/config"
	"TorchLedger/internal/parser"
	"TorchLedger/internal/pricing"
)

const mapScene = "/Game/Art/Maps/07YJ/YJ_YongZhouHuiLang200/YJ_YongZhouHuiLang200.YJ_YongZhouHuiLang200"

func transition(ts, scene string) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] PageApplyBase@ _UpdateGameEnd: LastSceneName = /Game/Art/Maps/UI/LoginScene/LoginScene NextSceneName = World'%s'", ts, scene)
}

func enterMap(ts string) string { return transition(ts, mapScene) }

func leaveMap(ts string) string { return transition(ts, parser.RefugePath) }

func bagInit(ts string, page, slot, id, n int) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] BagMgr@:InitBagData PageId = %d SlotId = %d ConfigBaseId = %d Num = %d", ts, page, slot, id, n)
}

func bagMod(ts string, page, slot, id, n int) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] BagMgr@:Modfy BagItem PageId = %d SlotId = %d ConfigBaseId = %d Num = %d", ts, page, slot, id, n)
}

func logText(lines ...string) string { return strings.Join(lines, "\n") + "\n" }

func testTable() *pricing.Table {
	return pricing.NewTable(map[string]pricing.Item{
		"1001":   {Name: "Fluorescent Memory", Type: "Memory Fluorescence", Price: 0.1},
		"5210":   {Name: "Flame Sand", Type: "Currency", Price: 2},
		"10042":  {Name: "Dream Compass", Type: "Compass", Price: 8},
		"100300": {Name: "Flame Elementium", Type: "Hard Currency", Price: 1},
	}, "")
}

// testConfig keeps every file the app writes inside a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(pricing.EnvTablePath, "")
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Tracker.PollMs = 50
	cfg.Prices.TablePath = filepath.Join(dir, "full_table.json")
	cfg.Storage.DropLog = filepath.Join(dir, "drop.txt")
	cfg.Storage.HistoryDB = filepath.Join(dir, "runs.db")
	cfg.Storage.Prefs = filepath.Join(dir, "prefs.toml")
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a := New(cfg, opts...)
	require.NoError(t, a.Startup(context.Background()))
	t.Cleanup(a.Shutdown)
	return a
}
