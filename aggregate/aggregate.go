// aggregate/aggregate.go
package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/gewnthar/bondstats/models"
)

// month returns the first day of t's month, the reporting period of a dated record.
func month(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// median of values; values is sorted in place. Even counts average the two middle values.
func median(values []int) float64 {
	slices.Sort(values)
	n := len(values)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(values[n/2])
	}
	return float64(values[n/2-1]+values[n/2]) / 2
}

// Holdings converts holdings records to output rows sorted by postcode then date.
func Holdings(holdings []models.Holding) []models.HoldingRow {
	rows := make([]models.HoldingRow, 0, len(holdings))
	for _, h := range holdings {
		rows = append(rows, models.HoldingRow{
			Postcode:  int64(h.Postcode),
			BondsHeld: int64(h.BondsHeld),
			Date:      formatDate(h.Period),
		})
	}
	slices.SortStableFunc(rows, func(a, b models.HoldingRow) int {
		return cmp.Or(cmp.Compare(a.Postcode, b.Postcode), cmp.Compare(a.Date, b.Date))
	})
	return rows
}

// LodgementRows is the output shape of the normalized lodgement table, in input order.
func LodgementRows(lodgements []models.Lodgement) []models.LodgementRow {
	rows := make([]models.LodgementRow, 0, len(lodgements))
	for _, l := range lodgements {
		rows = append(rows, models.LodgementRow{
			DateLodged:   formatDate(l.DateLodged),
			Postcode:     int64(l.Postcode),
			DwellingType: l.DwellingType,
			NumBedrooms:  int64(l.NumBedrooms),
			WeeklyRent:   int64(l.WeeklyRent),
		})
	}
	return rows
}

// RefundRows is the output shape of the normalized refund table, in input order.
func RefundRows(refunds []models.Refund) []models.RefundRow {
	rows := make([]models.RefundRow, 0, len(refunds))
	for _, r := range refunds {
		rows = append(rows, models.RefundRow{
			DatePaid:      formatDate(r.DatePaid),
			Postcode:      int64(r.Postcode),
			DwellingType:  r.DwellingType,
			NumBedrooms:   int64(r.NumBedrooms),
			AgentPayment:  int64(r.AgentPayment),
			TenantPayment: int64(r.TenantPayment),
			NumDaysHeld:   int64(r.NumDaysHeld),
		})
	}
	return rows
}
