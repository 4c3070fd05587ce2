// normalize/normalize.go
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/bondstats/models"
)

// Source column names as published.
const (
	ColLodgementDate = "Lodgement Date"
	ColPaymentDate   = "Payment Date"
	ColPostcode      = "Postcode"
	ColDwellingType  = "Dwelling Type"
	ColBedrooms      = "Bedrooms"
	ColWeeklyRent    = "Weekly Rent"
	ColToAgent       = "Payment To Agent"
	ColToTenant      = "Payment To Tenant"
	ColDaysHeld      = "Days Bond Held"
	ColBondsHeld     = "Bonds Held"
)

// RowError says which field made a row unusable.
type RowError struct {
	Field  string
	Value  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("field %q value %q: %s", e.Field, e.Value, e.Reason)
}

// Result is a normalized table plus the number of rows that were dropped.
type Result[T any] struct {
	Records []T
	Dropped int
	// FirstError is kept for logging; nil when nothing was dropped.
	FirstError error
}

// Table applies fn to every row. A row that fails is dropped whole.
func Table[T any](rows []models.RawRow, fn func(models.RawRow) (T, error)) Result[T] {
	res := Result[T]{Records: make([]T, 0, len(rows))}
	for _, row := range rows {
		rec, err := fn(row)
		if err != nil {
			res.Dropped++
			if res.FirstError == nil {
				res.FirstError = err
			}
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// Lodgement coerces a lodgement row. Dwelling type is optional.
func Lodgement(row models.RawRow) (models.Lodgement, error) {
	var (
		rec models.Lodgement
		err error
	)
	if rec.DateLodged, err = Date(row, ColLodgementDate); err != nil {
		return models.Lodgement{}, err
	}
	if rec.Postcode, err = Postcode(row, ColPostcode); err != nil {
		return models.Lodgement{}, err
	}
	if rec.NumBedrooms, err = Int(row, ColBedrooms); err != nil {
		return models.Lodgement{}, err
	}
	if rec.WeeklyRent, err = Int(row, ColWeeklyRent); err != nil {
		return models.Lodgement{}, err
	}
	rec.DwellingType = row.Get(ColDwellingType).Text
	return rec, nil
}

// Refund coerces a refund row. Dwelling type is optional.
func Refund(row models.RawRow) (models.Refund, error) {
	var (
		rec models.Refund
		err error
	)
	if rec.DatePaid, err = Date(row, ColPaymentDate); err != nil {
		return models.Refund{}, err
	}
	if rec.Postcode, err = Postcode(row, ColPostcode); err != nil {
		return models.Refund{}, err
	}
	if rec.NumBedrooms, err = Int(row, ColBedrooms); err != nil {
		return models.Refund{}, err
	}
	if rec.AgentPayment, err = Int(row, ColToAgent); err != nil {
		return models.Refund{}, err
	}
	if rec.TenantPayment, err = Int(row, ColToTenant); err != nil {
		return models.Refund{}, err
	}
	if rec.NumDaysHeld, err = Int(row, ColDaysHeld); err != nil {
		return models.Refund{}, err
	}
	rec.DwellingType = row.Get(ColDwellingType).Text
	return rec, nil
}

// Holding coerces a holdings row. The period comes from the document header.
func Holding(row models.RawRow) (models.Holding, error) {
	if row.Period.IsZero() {
		return models.Holding{}, &RowError{Field: "period", Reason: "document has no reporting period"}
	}
	postcode, err := Postcode(row, ColPostcode)
	if err != nil {
		return models.Holding{}, err
	}
	held, err := Int(row, ColBondsHeld)
	if err != nil {
		return models.Holding{}, err
	}
	return models.Holding{Postcode: postcode, BondsHeld: held, Period: row.Period}, nil
}

// Int coerces column to a whole number.
func Int(row models.RawRow, column string) (int, error) {
	c := row.Get(column)
	switch c.Kind {
	case models.CellNumber:
		if c.Number != math.Trunc(c.Number) || math.IsInf(c.Number, 0) || math.Abs(c.Number) > math.MaxInt32 {
			return 0, &RowError{Field: column, Value: c.Text, Reason: "not a whole number"}
		}
		return int(c.Number), nil
	case models.CellText:
		s := strings.ReplaceAll(strings.TrimSpace(c.Text), ",", "")
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return 0, &RowError{Field: column, Value: c.Text, Reason: "not an integer"}
		}
		return int(n), nil
	case models.CellDate:
		return 0, &RowError{Field: column, Value: c.Text, Reason: "date where a number was expected"}
	default:
		return 0, &RowError{Field: column, Reason: "empty"}
	}
}

// Postcode is Int restricted to 1..9999. Zero is reserved for all-postcode aggregates.
func Postcode(row models.RawRow, column string) (int, error) {
	n, err := Int(row, column)
	if err != nil {
		return 0, err
	}
	if n <= models.AllPostcodes || n > 9999 {
		return 0, &RowError{Field: column, Value: row.Get(column).Text, Reason: "not a postcode"}
	}
	return n, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Date coerces column to a calendar date (UTC midnight). A bare "2006-01"
// becomes the first of that month.
func Date(row models.RawRow, column string) (time.Time, error) {
	c := row.Get(column)
	switch c.Kind {
	case models.CellDate:
		return day(c.Time), nil
	case models.CellText:
		s := strings.TrimSpace(c.Text)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return day(t), nil
			}
		}
		if t, err := time.Parse("2006-01", s); err == nil {
			return t, nil
		}
		return time.Time{}, &RowError{Field: column, Value: c.Text, Reason: "not an ISO date"}
	case models.CellNumber:
		return time.Time{}, &RowError{Field: column, Value: c.Text, Reason: "number where a date was expected"}
	default:
		return time.Time{}, &RowError{Field: column, Reason: "empty"}
	}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
