package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkwind-erp/parkwind-erp/internal/membership"
	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
	"github.com/parkwind-erp/parkwind-erp/internal/taxrate"
)

// SettlementSource reads settlement aggregates from the settlement subsystem.
type SettlementSource interface {
	Get(ctx context.Context, tenantID, settlementID int64) (*settlement.Settlement, error)
}

// MembershipResolver derives per-operator unit counts for a park and period.
type MembershipResolver interface {
	Resolve(ctx context.Context, tenantID, parkID int64, periodYear int, trackSubset bool) (membership.Resolution, error)
}

// OperatorDirectory resolves operator master data for display purposes.
type OperatorDirectory interface {
	Operators(ctx context.Context, tenantID int64, ids []int64) (map[int64]membership.Operator, error)
}

// RateSource resolves the VAT rate in force at a reference date.
type RateSource interface {
	RateAt(ctx context.Context, tenantID int64, category taxrate.Category, at time.Time) (decimal.Decimal, error)
}

// Repository defines data access for allocations.
type Repository interface {
	// CreateWithItems inserts header and items atomically. It returns
	// ErrAllocationExists when a non-void allocation already exists for the
	// settlement; the unique index is the authoritative guard against
	// concurrent runs. The settlement's status is re-validated inside the
	// write transaction, so a settlement voided after the service read it
	// surfaces as InvalidStateError rather than a stale allocation.
	CreateWithItems(ctx context.Context, alloc *Allocation) error
	ExistsForSettlement(ctx context.Context, tenantID, settlementID int64) (bool, error)
	Get(ctx context.Context, tenantID, allocationID int64) (*Allocation, error)
	GetBySettlement(ctx context.Context, tenantID, settlementID int64) (*Allocation, error)
	Void(ctx context.Context, tenantID, allocationID int64) error
}

// Service orchestrates settlement lookup, membership resolution, share and
// allocation computation, and the atomic write.
type Service struct {
	settlements SettlementSource
	resolver    MembershipResolver
	operators   OperatorDirectory
	rates       RateSource
	repo        Repository
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(settlements SettlementSource, resolver MembershipResolver, operators OperatorDirectory, rates RateSource, repo Repository, logger *slog.Logger) *Service {
	return &Service{
		settlements: settlements,
		resolver:    resolver,
		operators:   operators,
		rates:       rates,
		repo:        repo,
		logger:      logger,
	}
}

// Execute computes and persists the allocation for one settlement. Exactly
// one header row and its items are created; a second call for the same
// settlement fails with ErrAllocationExists until the prior allocation is
// voided. No other subsystem state is touched.
func (s *Service) Execute(ctx context.Context, tenantID, settlementID int64, periodLabel, notes string) (*Allocation, error) {
	stl, err := s.settlements.Get(ctx, tenantID, settlementID)
	if err != nil {
		return nil, err
	}
	if !stl.Status.Calculable() {
		return nil, &InvalidStateError{Status: stl.Status}
	}

	// Fast path only: the unique index on (tenant_id, settlement_id) for
	// non-void allocations is what actually prevents a concurrent duplicate.
	exists, err := s.repo.ExistsForSettlement(ctx, tenantID, settlementID)
	if err != nil {
		return nil, fmt.Errorf("allocation: check existing: %w", err)
	}
	if exists {
		return nil, ErrAllocationExists
	}

	mode, err := ParseMode(stl.DistributionMode)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolver.Resolve(ctx, tenantID, stl.ParkID, stl.PeriodYear, mode.TracksSubset())
	if err != nil {
		return nil, err
	}
	if len(resolution.PerOperator) == 0 {
		return nil, ErrNoBeneficiaries
	}

	shares := ComputeShares(resolution, mode)

	vatRate, err := s.rates.RateAt(ctx, tenantID, taxrate.CategoryStandard, stl.ReferenceDate)
	if err != nil {
		return nil, err
	}

	pool := Pool{
		TotalTaxable:  stl.TotalTaxable,
		TotalExempt:   stl.TotalExempt,
		TotalUsageFee: stl.TotalUsageFee,
	}
	items := Allocate(pool, shares, stl.DirectByOperator(), vatRate, mode)

	if strings.TrimSpace(periodLabel) == "" {
		periodLabel = fmt.Sprintf("Usage fee %d", stl.PeriodYear)
	}

	now := time.Now()
	alloc := &Allocation{
		Reference:      uuid.New(),
		TenantID:       tenantID,
		SettlementID:   settlementID,
		ParkID:         stl.ParkID,
		PeriodLabel:    periodLabel,
		Notes:          notes,
		Status:         StatusDraft,
		Mode:           mode,
		VATRatePercent: vatRate,
		TotalUsageFee:  stl.TotalUsageFee,
		TotalTaxable:   stl.TotalTaxable,
		TotalExempt:    stl.TotalExempt,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
	}

	if err := s.repo.CreateWithItems(ctx, alloc); err != nil {
		return nil, err
	}

	s.logger.Info("allocation created",
		slog.Int64("tenant", tenantID),
		slog.Int64("settlement", settlementID),
		slog.Int64("allocation", alloc.ID),
		slog.String("mode", string(mode)),
		slog.Int("items", len(items)),
	)
	return alloc, nil
}

// Get returns one allocation with its items.
func (s *Service) Get(ctx context.Context, tenantID, allocationID int64) (*Allocation, error) {
	return s.repo.Get(ctx, tenantID, allocationID)
}

// GetBySettlement returns the non-void allocation of a settlement.
func (s *Service) GetBySettlement(ctx context.Context, tenantID, settlementID int64) (*Allocation, error) {
	return s.repo.GetBySettlement(ctx, tenantID, settlementID)
}

// Void marks a draft allocation void so the settlement can be recomputed.
func (s *Service) Void(ctx context.Context, tenantID, allocationID int64) error {
	if err := s.repo.Void(ctx, tenantID, allocationID); err != nil {
		return err
	}
	s.logger.Info("allocation voided",
		slog.Int64("tenant", tenantID),
		slog.Int64("allocation", allocationID),
	)
	return nil
}

// PreviewShares resolves membership and computes shares without persisting
// anything. It backs the dry-run share endpoint.
func (s *Service) PreviewShares(ctx context.Context, tenantID, parkID int64, periodYear int, mode DistributionMode) ([]OperatorShare, error) {
	if _, ok := modeRules[mode]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}
	resolution, err := s.resolver.Resolve(ctx, tenantID, parkID, periodYear, mode.TracksSubset())
	if err != nil {
		return nil, err
	}
	if len(resolution.PerOperator) == 0 {
		return nil, ErrNoBeneficiaries
	}

	shares := ComputeShares(resolution, mode)
	operators, err := s.operators.Operators(ctx, tenantID, resolution.OperatorIDs())
	if err != nil {
		return nil, fmt.Errorf("allocation: load operators: %w", err)
	}
	for i := range shares {
		shares[i].OperatorName = operators[shares[i].OperatorID].Name
	}
	return shares, nil
}

// IsNotFound reports whether err is one of the not-found conditions of an
// allocation run, for callers that only need the category.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, settlement.ErrNotFound)
}
