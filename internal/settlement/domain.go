// Package settlement provides read access to the settlement pools produced
// by the external settlement-calculation workflow. This service never
// mutates a settlement; it only distributes its pool.
package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates settlement lifecycle states.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusCalculated Status = "CALCULATED"
	StatusApproved   Status = "APPROVED"
	StatusVoid       Status = "VOID"
)

// Calculable reports whether an allocation may be computed from the
// settlement in its current state.
func (s Status) Calculable() bool {
	return s == StatusCalculated || s == StatusApproved
}

// DirectBillingLine is an amount already billed directly to an operator,
// to be netted out of its pool-derived allocation.
type DirectBillingLine struct {
	OperatorID int64
	Amount     decimal.Decimal
}

// Settlement is the aggregate to be distributed for one park and period.
type Settlement struct {
	ID               int64
	TenantID         int64
	ParkID           int64
	PeriodYear       int
	Status           Status
	DistributionMode string
	TotalTaxable     decimal.Decimal
	TotalExempt      decimal.Decimal
	TotalUsageFee    decimal.Decimal
	ReferenceDate    time.Time
	DirectBilling    []DirectBillingLine
}

// DirectByOperator aggregates direct-billing lines per operator.
func (s *Settlement) DirectByOperator() map[int64]decimal.Decimal {
	direct := make(map[int64]decimal.Decimal, len(s.DirectBilling))
	for _, line := range s.DirectBilling {
		direct[line.OperatorID] = direct[line.OperatorID].Add(line.Amount)
	}
	return direct
}

// ErrNotFound occurs when a settlement does not exist or is not visible to
// the caller's tenant.
var ErrNotFound = errors.New("settlement: not found")
