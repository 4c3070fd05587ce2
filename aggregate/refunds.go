// aggregate/refunds.go
package aggregate

import (
	"cmp"
	"math/big"
	"slices"

	"github.com/gewnthar/bondstats/models"
)

// RefundTotals sums tenant and agent payments per postcode.
func RefundTotals(refunds []models.Refund) []models.RefundTotalRow {
	totals := make(map[int]*models.RefundTotalRow)
	for _, r := range refunds {
		row, ok := totals[r.Postcode]
		if !ok {
			row = &models.RefundTotalRow{Postcode: int64(r.Postcode)}
			totals[r.Postcode] = row
		}
		row.TenantPayment += int64(r.TenantPayment)
		row.AgentPayment += int64(r.AgentPayment)
	}

	rows := make([]models.RefundTotalRow, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b models.RefundTotalRow) int {
		return cmp.Compare(a.Postcode, b.Postcode)
	})
	return rows
}

// AgentRatio is the share of a refund paid to the agent, kept as an exact
// fraction. ok is false when nothing was paid to either party.
func AgentRatio(r models.Refund) (ratio *big.Rat, ok bool) {
	total := int64(r.AgentPayment) + int64(r.TenantPayment)
	if total == 0 {
		return nil, false
	}
	return big.NewRat(int64(r.AgentPayment), total), true
}

// Bins splits [min, max] into three equal-width bins. A value on an edge
// belongs to the lower bin, and min itself is in bin 0.
type Bins struct {
	Min, Max *big.Rat
}

// BinsFor spans the observed range of ratios.
func BinsFor(ratios []*big.Rat) Bins {
	if len(ratios) == 0 {
		return Bins{}
	}
	b := Bins{Min: ratios[0], Max: ratios[0]}
	for _, r := range ratios[1:] {
		if r.Cmp(b.Min) < 0 {
			b.Min = r
		}
		if r.Cmp(b.Max) > 0 {
			b.Max = r
		}
	}
	return b
}

// Index returns the bin (0, 1 or 2) of r. When the range is empty every value is in bin 0.
// Edges are compared as 3*(r-min) against (max-min) and 2*(max-min), so no rounding applies.
func (b Bins) Index(r *big.Rat) int {
	if b.Min == nil || b.Max == nil {
		return 0
	}
	span := new(big.Rat).Sub(b.Max, b.Min)
	if span.Sign() == 0 {
		return 0
	}
	offset := new(big.Rat).Sub(r, b.Min)
	offset.Mul(offset, big.NewRat(3, 1))
	switch {
	case offset.Cmp(span) <= 0:
		return 0
	case offset.Cmp(new(big.Rat).Add(span, span)) <= 0:
		return 1
	default:
		return 2
	}
}

// RefundPortions classifies each refund by the agent's share of the payout
// and counts refunds per (postcode, recipient). Refunds with no payout are
// left out. Only occurring pairs are returned, recipients in bin order.
func RefundPortions(refunds []models.Refund) []models.RefundPortionRow {
	type classified struct {
		postcode int
		ratio    *big.Rat
	}
	var (
		items  []classified
		ratios []*big.Rat
	)
	for _, r := range refunds {
		ratio, ok := AgentRatio(r)
		if !ok {
			continue
		}
		items = append(items, classified{postcode: r.Postcode, ratio: ratio})
		ratios = append(ratios, ratio)
	}

	bins := BinsFor(ratios)
	type portionKey struct {
		postcode int
		bin      int
	}
	counts := make(map[portionKey]int64)
	for _, it := range items {
		counts[portionKey{postcode: it.postcode, bin: bins.Index(it.ratio)}]++
	}

	keys := make([]portionKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b portionKey) int {
		return cmp.Or(cmp.Compare(a.postcode, b.postcode), cmp.Compare(a.bin, b.bin))
	})

	rows := make([]models.RefundPortionRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, models.RefundPortionRow{
			Postcode:  int64(k.postcode),
			Recipient: models.RecipientLabels[k.bin],
			BinCount:  counts[k],
		})
	}
	return rows
}
