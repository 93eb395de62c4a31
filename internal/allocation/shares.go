package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/parkwind-erp/parkwind-erp/internal/membership"
)

var hundred = decimal.NewFromInt(100)

// ComputeShares converts resolved per-operator unit counts into normalized
// percentage shares under the given distribution mode. The result is ordered
// by operator id so persisted items stay reproducible across runs.
//
// Total shares are always computed; subset shares only carry meaning under
// a subset-tracking mode. An operator with zero subset units keeps its place
// in the result with a 0% subset share.
func ComputeShares(resolution membership.Resolution, mode DistributionMode) []OperatorShare {
	totalSubset := 0
	for _, counts := range resolution.PerOperator {
		totalSubset += counts.Subset
	}

	shares := make([]OperatorShare, 0, len(resolution.PerOperator))
	for _, operatorID := range resolution.OperatorIDs() {
		counts := resolution.PerOperator[operatorID]
		share := OperatorShare{
			OperatorID:        operatorID,
			TotalUnits:        counts.Total,
			SubsetUnits:       counts.Subset,
			TotalSharePercent: percentOf(counts.Total, resolution.TotalUnits),
		}
		if mode.TracksSubset() {
			share.SubsetSharePercent = percentOf(counts.Subset, totalSubset)
			share.AllocationBasis = fmt.Sprintf("%d/%d (subset units)", counts.Subset, totalSubset)
		} else {
			share.AllocationBasis = fmt.Sprintf("%d/%d (total units)", counts.Total, resolution.TotalUnits)
		}
		shares = append(shares, share)
	}
	return shares
}

// percentOf returns count/total×100 at four decimals, and 0 for an empty
// total so a zero-subset pool never divides by zero.
func percentOf(count, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(count)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(4)
}
