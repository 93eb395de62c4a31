package taxrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository defines data access for VAT rates.
type Repository interface {
	RateAt(ctx context.Context, tenantID int64, category Category, at time.Time) (decimal.Decimal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// RateAt returns the percentage in force at the given date. When validity
// windows overlap, the row with the latest valid_from wins.
func (r *repository) RateAt(ctx context.Context, tenantID int64, category Category, at time.Time) (decimal.Decimal, error) {
	var percent decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT percent
		FROM vat_rates
		WHERE tenant_id = $1 AND category = $2
		  AND valid_from <= $3
		  AND (valid_to IS NULL OR valid_to >= $3)
		ORDER BY valid_from DESC
		LIMIT 1
	`, tenantID, category, at).Scan(&percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, fmt.Errorf("%w: %s at %s", ErrNoRateForDate, category, at.Format("2006-01-02"))
		}
		return decimal.Decimal{}, fmt.Errorf("taxrate: rate at: %w", err)
	}
	return percent, nil
}
