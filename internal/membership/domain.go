// Package membership reconstructs which operator ran which turbines of a
// park during a settlement period, from the time-bounded assignment history.
package membership

import (
	"errors"
	"sort"
	"time"
)

// TurbineStatus enumerates turbine lifecycle states.
type TurbineStatus string

const (
	TurbineActive   TurbineStatus = "ACTIVE"
	TurbineInactive TurbineStatus = "INACTIVE"
	TurbineRetired  TurbineStatus = "RETIRED"
)

// AssignmentStatus enumerates assignment record states.
type AssignmentStatus string

const (
	AssignmentActive     AssignmentStatus = "ACTIVE"
	AssignmentHistorical AssignmentStatus = "HISTORICAL"
)

// Turbine is an individually identifiable unit of a park. Pooled marks the
// unit as belonging to the pooled accounting treatment.
type Turbine struct {
	ID     int64
	ParkID int64
	Status TurbineStatus
	Pooled bool
}

// OperatorAssignment assigns a turbine to an operator for a validity window.
// A nil ValidTo means the assignment is open-ended.
type OperatorAssignment struct {
	TurbineID  int64
	OperatorID int64
	Status     AssignmentStatus
	ValidFrom  time.Time
	ValidTo    *time.Time
}

// Operator is a legal entity that can receive an allocation.
type Operator struct {
	ID        int64
	Name      string
	LegalForm string
}

// Period is a closed date range. Settlements always run over calendar years.
type Period struct {
	Start time.Time
	End   time.Time
}

// CalendarYear returns the period covering the full calendar year.
func CalendarYear(year int) Period {
	return Period{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Overlaps reports whether a validity window [from, to] intersects the
// period. A nil to is treated as open-ended.
func (p Period) Overlaps(from time.Time, to *time.Time) bool {
	if from.After(p.End) {
		return false
	}
	if to != nil && to.Before(p.Start) {
		return false
	}
	return true
}

// UnitCounts holds per-operator turbine counts for one period.
type UnitCounts struct {
	Total  int
	Subset int
}

// Resolution is the in-memory snapshot produced by the resolver.
// TotalUnits counts only turbines that resolved to an operator, so that
// derived shares always sum to 100%.
type Resolution struct {
	TotalUnits  int
	PerOperator map[int64]UnitCounts
}

// OperatorIDs returns the resolved operator ids in ascending order.
func (r Resolution) OperatorIDs() []int64 {
	ids := make([]int64, 0, len(r.PerOperator))
	for id := range r.PerOperator {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var (
	// ErrNoMembers occurs when a park has no active turbines.
	ErrNoMembers = errors.New("membership: park has no active turbines")
	// ErrInvalidYear occurs when the period year is not a plausible calendar year.
	ErrInvalidYear = errors.New("membership: invalid period year")
)
