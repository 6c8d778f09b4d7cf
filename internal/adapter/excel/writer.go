package excel

import (
	"fmt"
	"math"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// WriteTable saves t as a single-sheet workbook: label columns first, then
// measurement columns, with NaN written as an empty cell.
func WriteTable(path, sheet string, t *domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	header := make([]any, 0, len(t.LabelColumns)+len(t.Columns))
	for _, c := range t.LabelColumns {
		header = append(header, c)
	}
	for _, c := range t.Columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write table header: %w", err)
	}

	for i, r := range t.Records {
		row := make([]any, 0, len(header))
		for _, c := range t.LabelColumns {
			row = append(row, r.Labels[c])
		}
		for _, v := range r.Values {
			if math.IsNaN(v) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("write table: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write table row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
