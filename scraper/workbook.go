// scraper/workbook.go
package scraper

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/gewnthar/bondstats/models"
	"github.com/gewnthar/bondstats/utils"
	"github.com/xuri/excelize/v2"
)

// Workbook is the first sheet of a parsed spreadsheet document.
type Workbook struct {
	Sheet      string
	HeaderText string // text of the period cell, if one was requested
	Columns    []string
	Rows       []models.RawRow
}

// ParseWorkbook reads the first sheet of an xlsx document. The first skipRows
// rows are titles and legends; the row after them names the columns and every
// later non-blank row becomes a RawRow. periodCell (e.g. "A1") is read before
// any rows are skipped; pass "" to skip it.
func ParseWorkbook(data []byte, skipRows int, periodCell string) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	wb := &Workbook{Sheet: sheets[0]}

	if periodCell != "" {
		wb.HeaderText, err = f.GetCellValue(wb.Sheet, periodCell)
		if err != nil {
			return nil, fmt.Errorf("failed to read header cell %s: %w", periodCell, err)
		}
	}

	rows, err := f.GetRows(wb.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", wb.Sheet, err)
	}
	if len(rows) <= skipRows {
		return nil, fmt.Errorf("sheet %s has %d rows, no column header after %d skipped rows", wb.Sheet, len(rows), skipRows)
	}

	// Column index -> name; blank header cells drop their column.
	names := make(map[int]string)
	for i, h := range rows[skipRows] {
		if name := utils.NormalizeHeader(h); name != "" {
			names[i] = name
			wb.Columns = append(wb.Columns, name)
		}
	}
	if len(wb.Columns) == 0 {
		return nil, fmt.Errorf("sheet %s has an empty column header row", wb.Sheet)
	}

	dates := newDateDetector(f, wb.Sheet)
	for r := skipRows + 1; r < len(rows); r++ {
		row := models.RawRow{Columns: wb.Columns, Cells: make(map[string]models.Cell, len(wb.Columns))}
		blank := true
		for c, raw := range rows[r] {
			name, ok := names[c]
			if !ok {
				continue
			}
			cell := dates.cell(c, r, strings.TrimSpace(raw))
			if cell.Kind != models.CellEmpty {
				blank = false
			}
			row.Cells[name] = cell
		}
		if !blank {
			wb.Rows = append(wb.Rows, row)
		}
	}
	return wb, nil
}

// dateDetector turns numeric cells formatted as dates into Date cells.
// Style lookups are cached per style index.
type dateDetector struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateDetector(f *excelize.File, sheet string) *dateDetector {
	d := &dateDetector{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// cell classifies raw, the unformatted value at zero-based column c, row r.
func (d *dateDetector) cell(c, r int, raw string) models.Cell {
	if raw == "" {
		return models.Cell{}
	}
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.TextCell(raw)
	}
	if d.isDate(c, r) {
		if t, err := excelize.ExcelDateToTime(num, d.date1904); err == nil {
			return models.DateCell(t)
		}
	}
	return models.NumberCell(num)
}

func (d *dateDetector) isDate(c, r int) bool {
	name, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return false
	}
	idx, err := d.f.GetCellStyle(d.sheet, name)
	if err != nil || idx == 0 {
		return false
	}
	if isDate, seen := d.styles[idx]; seen {
		return isDate
	}
	isDate := false
	if style, err := d.f.GetStyle(idx); err == nil && style != nil {
		isDate = isDateFormat(style.NumFmt, style.CustomNumFmt)
	}
	d.styles[idx] = isDate
	return isDate
}

// isDateFormat reports whether a number format renders dates. Built-in ids
// follow ECMA-376 18.8.30 plus the common East Asian date ids.
func isDateFormat(numFmt int, custom *string) bool {
	if custom != nil && *custom != "" {
		return customFormatIsDate(*custom)
	}
	switch {
	case numFmt >= 14 && numFmt <= 22:
		return true
	case numFmt >= 27 && numFmt <= 36:
		return true
	case numFmt >= 50 && numFmt <= 58:
		return true
	}
	return false
}

func customFormatIsDate(format string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	stripped := b.String()
	return strings.ContainsAny(stripped, "yd")
}
