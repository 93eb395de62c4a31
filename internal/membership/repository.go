package membership

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements HistorySource against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveTurbines returns all active turbines of a park.
func (r *Repository) ActiveTurbines(ctx context.Context, tenantID, parkID int64) ([]Turbine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, park_id, status, pooled
		FROM turbines
		WHERE tenant_id = $1 AND park_id = $2 AND status = $3
		ORDER BY id
	`, tenantID, parkID, TurbineActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turbines []Turbine
	for rows.Next() {
		var t Turbine
		if err := rows.Scan(&t.ID, &t.ParkID, &t.Status, &t.Pooled); err != nil {
			return nil, err
		}
		turbines = append(turbines, t)
	}
	return turbines, rows.Err()
}

// AssignmentsByTurbine returns the full assignment history of a park keyed
// by turbine id.
func (r *Repository) AssignmentsByTurbine(ctx context.Context, tenantID, parkID int64) (map[int64][]OperatorAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.turbine_id, a.operator_id, a.status, a.valid_from, a.valid_to
		FROM operator_assignments a
		JOIN turbines t ON t.id = a.turbine_id
		WHERE t.tenant_id = $1 AND t.park_id = $2
		ORDER BY a.turbine_id, a.valid_from
	`, tenantID, parkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make(map[int64][]OperatorAssignment)
	for rows.Next() {
		var (
			a       OperatorAssignment
			validTo *time.Time
		)
		if err := rows.Scan(&a.TurbineID, &a.OperatorID, &a.Status, &a.ValidFrom, &validTo); err != nil {
			return nil, err
		}
		a.ValidTo = validTo
		history[a.TurbineID] = append(history[a.TurbineID], a)
	}
	return history, rows.Err()
}

// Operators returns display data for the given operator ids.
func (r *Repository) Operators(ctx context.Context, tenantID int64, ids []int64) (map[int64]Operator, error) {
	if len(ids) == 0 {
		return map[int64]Operator{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, legal_form
		FROM operators
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY id
	`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operators := make(map[int64]Operator, len(ids))
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ID, &op.Name, &op.LegalForm); err != nil {
			return nil, err
		}
		operators[op.ID] = op
	}
	return operators, rows.Err()
}
