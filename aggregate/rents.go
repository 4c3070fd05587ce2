// aggregate/rents.go
package aggregate

import (
	"cmp"
	"slices"

	"github.com/gewnthar/bondstats/models"
)

type rentKey struct {
	date     string
	postcode int
	bedrooms int
}

// rentGroups collects weekly rents per key. Every lodgement lands in its own
// postcode's group and in the all-postcodes group of the same period.
func rentGroups(lodgements []models.Lodgement, byBedrooms bool) map[rentKey][]int {
	groups := make(map[rentKey][]int)
	for _, l := range lodgements {
		k := rentKey{date: formatDate(month(l.DateLodged)), postcode: l.Postcode}
		if byBedrooms {
			k.bedrooms = l.NumBedrooms
		}
		groups[k] = append(groups[k], l.WeeklyRent)

		k.postcode = models.AllPostcodes
		groups[k] = append(groups[k], l.WeeklyRent)
	}
	return groups
}

func compareRentKeys(a, b rentKey) int {
	return cmp.Or(
		cmp.Compare(a.date, b.date),
		cmp.Compare(a.postcode, b.postcode),
		cmp.Compare(a.bedrooms, b.bedrooms),
	)
}

func sortedKeys(groups map[rentKey][]int) []rentKey {
	keys := make([]rentKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareRentKeys)
	return keys
}

// MedianRents is the median weekly rent and number of lodgements per
// (month, postcode), plus one all-postcodes row (postcode 0) per month.
func MedianRents(lodgements []models.Lodgement) []models.MedianRentRow {
	groups := rentGroups(lodgements, false)
	rows := make([]models.MedianRentRow, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		rents := groups[k]
		rows = append(rows, models.MedianRentRow{
			Date:       k.date,
			Postcode:   int64(k.postcode),
			MedianRent: median(rents),
			DataPoints: int64(len(rents)),
		})
	}
	return rows
}

// BedroomMedianRents is MedianRents split further by number of bedrooms.
func BedroomMedianRents(lodgements []models.Lodgement) []models.BedroomMedianRentRow {
	groups := rentGroups(lodgements, true)
	rows := make([]models.BedroomMedianRentRow, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		rents := groups[k]
		rows = append(rows, models.BedroomMedianRentRow{
			Date:        k.date,
			Postcode:    int64(k.postcode),
			NumBedrooms: int64(k.bedrooms),
			MedianRent:  median(rents),
			DataPoints:  int64(len(rents)),
		})
	}
	return rows
}
