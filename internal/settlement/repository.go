package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads settlement aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads one settlement with its direct-billing lines, scoped to the
// tenant.
func (r *Repository) Get(ctx context.Context, tenantID, settlementID int64) (*Settlement, error) {
	var s Settlement
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, park_id, period_year, status, distribution_mode,
		       total_taxable, total_exempt, total_usage_fee, reference_date
		FROM settlements
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, settlementID).Scan(
		&s.ID, &s.TenantID, &s.ParkID, &s.PeriodYear, &s.Status, &s.DistributionMode,
		&s.TotalTaxable, &s.TotalExempt, &s.TotalUsageFee, &s.ReferenceDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("settlement: get %d: %w", settlementID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT operator_id, amount
		FROM settlement_direct_billing
		WHERE settlement_id = $1
		ORDER BY operator_id
	`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("settlement: load direct billing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line DirectBillingLine
		if err := rows.Scan(&line.OperatorID, &line.Amount); err != nil {
			return nil, err
		}
		s.DirectBilling = append(s.DirectBilling, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}
