// models/cell.go
package models

import (
	"strconv"
	"time"
)

// CellKind tells which field of a Cell carries the value.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
	CellDate
)

func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	case CellDate:
		return "date"
	default:
		return "empty"
	}
}

// Cell is one raw spreadsheet value.
type Cell struct {
	Kind   CellKind
	Text   string // raw text as stored in the sheet, set for every non-empty kind
	Number float64
	Time   time.Time
}

func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: CellText, Text: s}
}

func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Text: strconv.FormatFloat(f, 'f', -1, 64), Number: f}
}

func DateCell(t time.Time) Cell {
	return Cell{Kind: CellDate, Text: t.Format("2006-01-02 15:04:05"), Time: t}
}

// String renders the cell the way it would appear in a log line.
func (c Cell) String() string {
	return c.Text
}

// RawRow is one data row of a workbook, keyed by the header row's column names.
type RawRow struct {
	Columns []string
	Cells   map[string]Cell

	// Provenance
	SourceURL string
	Period    time.Time // zero unless the document header carried a reporting period
}

// Get returns the cell under column name, or an empty cell.
func (r RawRow) Get(column string) Cell {
	return r.Cells[column]
}
