package cmd

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportCSV(t *testing.T) {
	ws := newWorkspace(t, sampleLog())
	dest := filepath.Join(t.TempDir(), "drops.csv")
	out, err := execute(t, ws, "export", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 items to "+dest)
	assert.Contains(t, out, "Maps: 1")

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	found := false
	for _, rec := range records {
		for _, cell := range rec {
			if cell == "Fluorescent Memory" {
				found = true
			}
		}
	}
	assert.True(t, found, "drop row missing: %v", records)
}

func TestExportCurrentXLSX(t *testing.T) {
	ws := newWorkspace(t, sampleLog())
	dest := filepath.Join(t.TempDir(), "drops.xlsx")
	out, err := execute(t, ws, "export", "--current", dest)
	require.NoError(t, err)
	assert.NotContains(t, out, "Maps:")

	wb, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Drops Export")
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestExportUnsupportedExtension(t *testing.T) {
	ws := newWorkspace(t, sampleLog())
	_, err := execute(t, ws, "export", filepath.Join(t.TempDir(), "drops.txt"))
	require.Error(t, err)
}
