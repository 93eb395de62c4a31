package membership

import (
	"context"
	"fmt"
)

// HistorySource provides read access to the turbine and assignment history.
// The history is owned by the operator-change workflow; this package never
// mutates it.
type HistorySource interface {
	ActiveTurbines(ctx context.Context, tenantID, parkID int64) ([]Turbine, error)
	AssignmentsByTurbine(ctx context.Context, tenantID, parkID int64) (map[int64][]OperatorAssignment, error)
}

// Resolver derives per-operator unit counts for a park and period.
type Resolver struct {
	source HistorySource
}

// NewResolver builds a Resolver instance.
func NewResolver(source HistorySource) *Resolver {
	return &Resolver{source: source}
}

// Resolve counts, per operator, the active turbines whose assignment window
// overlaps the calendar year. Turbines without a matching active assignment
// contribute to no operator. When trackSubset is set, pooled turbines are
// additionally counted into the operator's subset.
func (r *Resolver) Resolve(ctx context.Context, tenantID, parkID int64, periodYear int, trackSubset bool) (Resolution, error) {
	if periodYear < 1990 || periodYear > 2100 {
		return Resolution{}, fmt.Errorf("%w: %d", ErrInvalidYear, periodYear)
	}

	turbines, err := r.source.ActiveTurbines(ctx, tenantID, parkID)
	if err != nil {
		return Resolution{}, fmt.Errorf("membership: load turbines: %w", err)
	}
	if len(turbines) == 0 {
		return Resolution{}, ErrNoMembers
	}

	history, err := r.source.AssignmentsByTurbine(ctx, tenantID, parkID)
	if err != nil {
		return Resolution{}, fmt.Errorf("membership: load assignments: %w", err)
	}

	period := CalendarYear(periodYear)
	result := Resolution{PerOperator: make(map[int64]UnitCounts)}

	for _, turbine := range turbines {
		assignment, ok := resolveAssignment(history[turbine.ID], period)
		if !ok {
			// No active assignment covers the period; the unit is excluded
			// from every share rather than guessed into one.
			continue
		}
		counts := result.PerOperator[assignment.OperatorID]
		counts.Total++
		if trackSubset && turbine.Pooled {
			counts.Subset++
		}
		result.PerOperator[assignment.OperatorID] = counts
		result.TotalUnits++
	}

	return result, nil
}

// resolveAssignment picks the single active assignment overlapping the
// period. Overlapping active windows violate the upstream invariant; the
// record with the latest ValidFrom wins so the outcome stays deterministic.
func resolveAssignment(candidates []OperatorAssignment, period Period) (OperatorAssignment, bool) {
	var (
		best  OperatorAssignment
		found bool
	)
	for _, candidate := range candidates {
		if candidate.Status != AssignmentActive {
			continue
		}
		if !period.Overlaps(candidate.ValidFrom, candidate.ValidTo) {
			continue
		}
		if !found || candidate.ValidFrom.After(best.ValidFrom) {
			best = candidate
			found = true
		}
	}
	return best, found
}
