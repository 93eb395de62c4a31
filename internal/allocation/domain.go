// Package allocation distributes a settlement's usage-fee pool across the
// operators of a park and persists the result as one allocation with its
// per-operator items.
package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
)

// DistributionMode selects which membership subset shares are derived from.
type DistributionMode string

const (
	// ModePooled computes revenue shares over the pooled turbine subset only.
	ModePooled DistributionMode = "POOLED"
	// ModeProportional computes shares over all turbines of the park.
	ModeProportional DistributionMode = "PROPORTIONAL"
)

// ErrUnknownMode occurs when a settlement carries an unrecognised
// distribution mode.
var ErrUnknownMode = errors.New("allocation: unknown distribution mode")

// ParseMode validates the raw mode selector carried by a settlement.
func ParseMode(raw string) (DistributionMode, error) {
	mode := DistributionMode(raw)
	if _, ok := modeRules[mode]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
	return mode, nil
}

// modeRule carries the per-mode share-selection behaviour as data, so a new
// mode is a new table entry rather than a change to the engine formula.
type modeRule struct {
	tracksSubset  bool
	activePercent func(share OperatorShare, subsetPoolNonEmpty bool) decimal.Decimal
}

var modeRules = map[DistributionMode]modeRule{
	ModeProportional: {
		tracksSubset: false,
		activePercent: func(share OperatorShare, _ bool) decimal.Decimal {
			return share.TotalSharePercent
		},
	},
	ModePooled: {
		tracksSubset: true,
		activePercent: func(share OperatorShare, subsetPoolNonEmpty bool) decimal.Decimal {
			if subsetPoolNonEmpty {
				return share.SubsetSharePercent
			}
			return share.TotalSharePercent
		},
	},
}

// TracksSubset reports whether membership resolution must count the pooled
// turbine subset for this mode.
func (m DistributionMode) TracksSubset() bool {
	return modeRules[m].tracksSubset
}

// ActivePercent returns the percentage the engine allocates by.
func (m DistributionMode) ActivePercent(share OperatorShare, subsetPoolNonEmpty bool) decimal.Decimal {
	return modeRules[m].activePercent(share, subsetPoolNonEmpty)
}

// OperatorShare is the derived share of one operator for a park and period.
// Percentages are rounded to four decimals.
type OperatorShare struct {
	OperatorID         int64
	OperatorName       string
	TotalUnits         int
	SubsetUnits        int
	TotalSharePercent  decimal.Decimal
	SubsetSharePercent decimal.Decimal
	AllocationBasis    string
}

// Status enumerates allocation lifecycle states.
type Status string

const (
	StatusDraft Status = "DRAFT"
	StatusVoid  Status = "VOID"
)

// Allocation is the persisted header, created exactly once per settlement.
type Allocation struct {
	ID             int64
	Reference      uuid.UUID
	TenantID       int64
	SettlementID   int64
	ParkID         int64
	PeriodLabel    string
	Notes          string
	Status         Status
	Mode           DistributionMode
	VATRatePercent decimal.Decimal
	TotalUsageFee  decimal.Decimal
	TotalTaxable   decimal.Decimal
	TotalExempt    decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []Item
}

// Item is one per-operator line of an allocation. All amounts are rounded
// to two decimals at the point of computation.
type Item struct {
	ID               int64
	AllocationID     int64
	OperatorID       int64
	AllocationBasis  string
	SharePercent     decimal.Decimal
	TotalAllocated   decimal.Decimal
	DirectSettlement decimal.Decimal
	TaxableAmount    decimal.Decimal
	VATAmount        decimal.Decimal
	ExemptAmount     decimal.Decimal
	NetPayable       decimal.Decimal
}

var (
	// ErrNotFound occurs when an allocation does not exist for the tenant.
	ErrNotFound = errors.New("allocation: not found")
	// ErrAllocationExists occurs when a non-void allocation already exists
	// for the settlement. Callers must void it before recomputing.
	ErrAllocationExists = errors.New("allocation: allocation already exists for settlement")
	// ErrNoBeneficiaries occurs when membership resolution yields no
	// operators to distribute to.
	ErrNoBeneficiaries = errors.New("allocation: no operators resolved for settlement period")
	// ErrNotVoidable occurs when voiding an allocation that is not a draft.
	ErrNotVoidable = errors.New("allocation: only draft allocations can be voided")
)

// InvalidStateError reports a settlement whose status forbids allocation.
// The status is carried so callers can explain the conflict to an operator.
type InvalidStateError struct {
	Status settlement.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("allocation: settlement status %s does not permit allocation", e.Status)
}
