package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

func writeCSV(path string, meta []string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	for _, line := range meta {
		if err := writer.Write([]string{line}); err != nil {
			return err
		}
	}
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Category,
			row.Name,
			strconv.Itoa(row.Quantity),
			strconv.FormatFloat(row.UnitPrice, 'f', 2, 64),
			strconv.FormatFloat(row.Total, 'f', 2, 64),
			row.Status,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return file.Close()
}
