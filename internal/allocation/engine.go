package allocation

import (
	"github.com/shopspring/decimal"
)

// Pool holds the settlement totals to distribute. TotalUsageFee is the sum
// of taxable and exempt as carried by the settlement subsystem.
type Pool struct {
	TotalTaxable  decimal.Decimal
	TotalExempt   decimal.Decimal
	TotalUsageFee decimal.Decimal
}

// Allocate computes one item per operator share. It is a pure function:
// preconditions (non-empty shares, resolvable settlement) are enforced by
// the service before it is invoked.
//
// Each amount is rounded to two decimals at its own point of computation,
// never re-derived from already-rounded header totals. The sum of
// TotalAllocated over all items therefore matches pool.TotalUsageFee within
// 0.01 per item, the maximum rounding drift.
func Allocate(pool Pool, shares []OperatorShare, directByOperator map[int64]decimal.Decimal, vatRatePercent decimal.Decimal, mode DistributionMode) []Item {
	subsetPoolNonEmpty := false
	for _, share := range shares {
		if share.SubsetUnits > 0 {
			subsetPoolNonEmpty = true
			break
		}
	}

	items := make([]Item, 0, len(shares))
	for _, share := range shares {
		active := mode.ActivePercent(share, subsetPoolNonEmpty)

		taxable := pool.TotalTaxable.Mul(active).Div(hundred).Round(2)
		exempt := pool.TotalExempt.Mul(active).Div(hundred).Round(2)
		total := taxable.Add(exempt).Round(2)
		direct := directByOperator[share.OperatorID].Round(2)
		vat := taxable.Mul(vatRatePercent).Div(hundred).Round(2)
		net := total.Sub(direct).Round(2)

		items = append(items, Item{
			OperatorID:       share.OperatorID,
			AllocationBasis:  share.AllocationBasis,
			SharePercent:     active,
			TotalAllocated:   total,
			DirectSettlement: direct,
			TaxableAmount:    taxable,
			VATAmount:        vat,
			ExemptAmount:     exempt,
			NetPayable:       net,
		})
	}
	return items
}
