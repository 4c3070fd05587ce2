// testhelpers/workbook.go
package testhelpers

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Workbook builds an in-memory xlsx laid out like the published bond data:
// title in A1, a blank legend row, the column header on row 3 and data below.
// Cell values are written with SetCellValue, so time.Time values get a date style.
func Workbook(t *testing.T, title string, columns []string, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Sheet1"

	if title != "" {
		if err := f.SetCellValue(sheet, "A1", title); err != nil {
			t.Fatalf("failed to set title cell: %v", err)
		}
	}
	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			t.Fatalf("failed to set header cell: %v", err)
		}
	}
	for r, row := range rows {
		for c, val := range row {
			if val == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+4)
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				t.Fatalf("failed to set cell: %v", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to write Excel file: %v", err)
	}
	return buf.Bytes()
}
