package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultSheet    = "Sheet1"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// writeSheet writes headings on row 1 and one row per record below.
func writeSheet(f *excelize.File, sheetName string, headings []string, data []ExcelExporter) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for r, d := range data {
		for c, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheetName, cell, err)
			}
		}
	}
	return nil
}
