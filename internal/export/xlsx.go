package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Drops Export"
	headerColor    = "4472C4"
	columnPadding  = 2
	maxColumnWidth = 50
)

func writeXLSX(path string, meta []string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	widths := make([]int, len(headers))
	track := func(vals []any) {
		for i, v := range vals {
			if i >= len(widths) {
				break
			}
			if n := len([]rune(fmt.Sprint(v))); n > widths[i] {
				widths[i] = n
			}
		}
	}

	r := 1
	put := func(vals []any) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &vals); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
		r++
		return nil
	}

	for _, line := range meta {
		if err := put([]any{line}); err != nil {
			return err
		}
	}
	r++ // blank row

	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	headerRow := r
	if err := put(head); err != nil {
		return err
	}
	track(head)

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
	if err := f.SetCellStyle(sheetName, first, last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	category := ""
	for i, row := range rows {
		if i == 0 || row.Category != category {
			category = row.Category
			r++ // separator
		}
		vals := []any{row.Category, row.Name, row.Quantity, row.UnitPrice, row.Total, row.Status}
		if err := put(vals); err != nil {
			return err
		}
		track(vals)
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := w + columnPadding
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(sheetName, col, col, float64(width)); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
