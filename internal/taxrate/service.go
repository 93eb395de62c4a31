package taxrate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service handles VAT rate resolution.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RateAt validates the request and resolves the rate in force at the date.
func (s *Service) RateAt(ctx context.Context, tenantID int64, category Category, at time.Time) (decimal.Decimal, error) {
	if tenantID <= 0 {
		return decimal.Decimal{}, fmt.Errorf("taxrate: tenant required")
	}
	switch category {
	case CategoryStandard, CategoryReduced:
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if at.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("taxrate: reference date required")
	}
	return s.repo.RateAt(ctx, tenantID, category, at)
}
