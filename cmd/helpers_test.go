package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"TorchLedger/internal/pricing"
)

const mapScene = "/Game/Art/Maps/07YJ/YJ_YongZhouHuiLang200/YJ_YongZhouHuiLang200.YJ_YongZhouHuiLang200"

func sceneLine(ts, scene string) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] PageApplyBase@ _UpdateGameEnd: LastSceneName = /Game/Art/Maps/UI/LoginScene/LoginScene NextSceneName = World'%s'", ts, scene)
}

func bagLine(kind, ts string, slot, id, n int) string {
	return fmt.Sprintf("[%s][302]GameLog: Display: [Game] BagMgr@:%s PageId = 1 SlotId = %d ConfigBaseId = %d Num = %d", ts, kind, slot, id, n)
}

// sampleLog is one map with two Fluorescent Memory drops.
func sampleLog() string {
	return strings.Join([]string{
		sceneLine("2025.11.04-19.20.45:474", mapScene),
		bagLine("InitBagData", "2025.11.04-19.20.46:000", 1, 1001, 0),
		bagLine("Modfy BagItem", "2025.11.04-19.20.47:000", 1, 1001, 2),
	}, "\n") + "\n"
}

type workspace struct {
	dir     string
	log     string
	table   string
	history string
}

// newWorkspace writes a log, an item table and a config.toml pointing at
// them, and points --config at the directory.
func newWorkspace(t *testing.T, logText string) workspace {
	t.Helper()
	t.Setenv(pricing.EnvTablePath, "")
	dir := t.TempDir()
	ws := workspace{
		dir:     dir,
		log:     filepath.Join(dir, "UE_game.log"),
		table:   filepath.Join(dir, "full_table.json"),
		history: filepath.Join(dir, "runs.db"),
	}
	require.NoError(t, os.WriteFile(ws.log, []byte(logText), 0o644))

	table := map[string]pricing.Item{
		"1001":  {Name: "Fluorescent Memory", Type: "Memory Fluorescence", Price: 0.5, LastUpdate: float64(time.Now().Unix())},
		"10042": {Name: "Dream Compass", Type: "Compass", Price: 8},
	}
	b, err := json.Marshal(table)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.table, b, 0o644))

	toml := fmt.Sprintf(`[log]
level = "error"

[tracker]
log_path = %q

[prices]
table_path = %q

[storage]
drop_log = ""
history_db = %q
prefs = %q
`, ws.log, ws.table, ws.history, filepath.Join(dir, "prefs.toml"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))
	return ws
}

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, ws workspace, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append([]string{"--config", ws.dir}, args...))
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores flag variables between runs; cobra keeps them.
func resetFlags() {
	configDir, logPath, gameDir, exportDir = ".", "", "", "."
	fromStart, verbose = false, false
	onceJSON, trackJSON = false, false
	pricesFile, pricesEndpoint = "", ""
	pricesDryRun, pricesBackup, pricesTimeout = false, true, 0
	exportCurrent = false
	historyLimit, historyJSON = 20, false
}
