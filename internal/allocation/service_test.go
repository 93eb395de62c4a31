package allocation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkwind-erp/parkwind-erp/internal/membership"
	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
	"github.com/parkwind-erp/parkwind-erp/internal/taxrate"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockSettlements struct {
	settlements map[int64]*settlement.Settlement
	getErr      error
}

func (m *mockSettlements) Get(ctx context.Context, tenantID, settlementID int64) (*settlement.Settlement, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.settlements[settlementID]
	if !ok || s.TenantID != tenantID {
		return nil, settlement.ErrNotFound
	}
	return s, nil
}

type mockResolver struct {
	resolution membership.Resolution
	err        error

	lastTrackSubset bool
}

func (m *mockResolver) Resolve(ctx context.Context, tenantID, parkID int64, periodYear int, trackSubset bool) (membership.Resolution, error) {
	m.lastTrackSubset = trackSubset
	if m.err != nil {
		return membership.Resolution{}, m.err
	}
	return m.resolution, nil
}

type mockOperators struct {
	operators map[int64]membership.Operator
	err       error
}

func (m *mockOperators) Operators(ctx context.Context, tenantID int64, ids []int64) (map[int64]membership.Operator, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.operators, nil
}

type mockRates struct {
	rate decimal.Decimal
	err  error
}

func (m *mockRates) RateAt(ctx context.Context, tenantID int64, category taxrate.Category, at time.Time) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Decimal{}, m.err
	}
	return m.rate, nil
}

type mockRepo struct {
	created []*Allocation
	nextID  int64

	existing   bool
	existsErr  error
	createErr  error
	getErr     error
	voidErr    error
	voidCalled bool
}

func (m *mockRepo) CreateWithItems(ctx context.Context, alloc *Allocation) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.existing {
		return ErrAllocationExists
	}
	m.nextID++
	alloc.ID = m.nextID
	m.created = append(m.created, alloc)
	m.existing = true
	return nil
}

func (m *mockRepo) ExistsForSettlement(ctx context.Context, tenantID, settlementID int64) (bool, error) {
	return m.existing, m.existsErr
}

func (m *mockRepo) Get(ctx context.Context, tenantID, allocationID int64) (*Allocation, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.created {
		if a.ID == allocationID && a.TenantID == tenantID {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetBySettlement(ctx context.Context, tenantID, settlementID int64) (*Allocation, error) {
	for _, a := range m.created {
		if a.SettlementID == settlementID && a.TenantID == tenantID && a.Status != StatusVoid {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Void(ctx context.Context, tenantID, allocationID int64) error {
	m.voidCalled = true
	if m.voidErr != nil {
		return m.voidErr
	}
	for _, a := range m.created {
		if a.ID == allocationID && a.TenantID == tenantID {
			a.Status = StatusVoid
			m.existing = false
			return nil
		}
	}
	return ErrNotFound
}

// ============================================================================
// FIXTURES
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func calculableSettlement() *settlement.Settlement {
	return &settlement.Settlement{
		ID:               7,
		TenantID:         1,
		ParkID:           10,
		PeriodYear:       2024,
		Status:           settlement.StatusCalculated,
		DistributionMode: "PROPORTIONAL",
		TotalTaxable:     dec("10000"),
		TotalExempt:      dec("2000"),
		TotalUsageFee:    dec("12000"),
		ReferenceDate:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		DirectBilling: []settlement.DirectBillingLine{
			{OperatorID: 100, Amount: dec("1000")},
		},
	}
}

func newTestService(stl *settlement.Settlement, res membership.Resolution) (*Service, *mockRepo, *mockResolver) {
	settlements := &mockSettlements{settlements: map[int64]*settlement.Settlement{}}
	if stl != nil {
		settlements.settlements[stl.ID] = stl
	}
	resolver := &mockResolver{resolution: res}
	operators := &mockOperators{operators: map[int64]membership.Operator{
		100: {ID: 100, Name: "Nordfeld Betriebs GmbH"},
		200: {ID: 200, Name: "Windkraft Beteiligungs KG"},
	}}
	rates := &mockRates{rate: dec("19")}
	repo := &mockRepo{}
	return NewService(settlements, resolver, operators, rates, repo, testLogger()), repo, resolver
}

func twoOperatorResolution() membership.Resolution {
	return membership.Resolution{
		TotalUnits: 10,
		PerOperator: map[int64]membership.UnitCounts{
			100: {Total: 7},
			200: {Total: 3},
		},
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestExecuteCreatesAllocation(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	alloc, err := service.Execute(context.Background(), 1, 7, "", "settled per contract")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, alloc, repo.created[0])
	assert.Equal(t, StatusDraft, alloc.Status)
	assert.Equal(t, "Usage fee 2024", alloc.PeriodLabel)
	assert.Equal(t, "settled per contract", alloc.Notes)
	assert.Equal(t, ModeProportional, alloc.Mode)
	assert.NotEqual(t, "", alloc.Reference.String())

	require.Len(t, alloc.Items, 2)
	assert.Equal(t, "7400.00", alloc.Items[0].NetPayable.StringFixed(2))
	assert.Equal(t, "3600.00", alloc.Items[1].NetPayable.StringFixed(2))
}

func TestExecuteUsesCustomPeriodLabel(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	alloc, err := service.Execute(context.Background(), 1, 7, "FY 2024 usage fee", "")
	require.NoError(t, err)
	assert.Equal(t, "FY 2024 usage fee", alloc.PeriodLabel)
}

func TestExecuteIdempotency(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	require.NoError(t, err)

	_, err = service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, ErrAllocationExists)
	assert.Len(t, repo.created, 1, "second run must not create rows")
}

func TestExecuteConflictFromUniqueIndex(t *testing.T) {
	// The fast-path check passes but the insert races a concurrent run; the
	// repository surfaces the unique violation as ErrAllocationExists.
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	repo.createErr = ErrAllocationExists

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, ErrAllocationExists)
	assert.Empty(t, repo.created)
}

func TestExecuteStaleSettlementRejectedAtWrite(t *testing.T) {
	// The settlement is voided by the external workflow between the service
	// read and the insert; the repository's in-transaction recheck refuses
	// the write and nothing is committed.
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	repo.createErr = &InvalidStateError{Status: settlement.StatusVoid}

	_, err := service.Execute(context.Background(), 1, 7, "", "")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, settlement.StatusVoid, stateErr.Status)
	assert.Empty(t, repo.created)
}

func TestExecuteSettlementNotFound(t *testing.T) {
	service, _, _ := newTestService(nil, twoOperatorResolution())

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, settlement.ErrNotFound)
}

func TestExecuteWrongTenant(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	_, err := service.Execute(context.Background(), 2, 7, "", "")
	assert.ErrorIs(t, err, settlement.ErrNotFound)
}

func TestExecuteInvalidState(t *testing.T) {
	for _, status := range []settlement.Status{settlement.StatusOpen, settlement.StatusVoid} {
		stl := calculableSettlement()
		stl.Status = status
		service, repo, _ := newTestService(stl, twoOperatorResolution())

		_, err := service.Execute(context.Background(), 1, 7, "", "")

		var stateErr *InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, status, stateErr.Status)
		assert.Contains(t, stateErr.Error(), string(status), "error must name the actual status")
		assert.Empty(t, repo.created)
	}
}

func TestExecuteNoBeneficiaries(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), membership.Resolution{
		PerOperator: map[int64]membership.UnitCounts{},
	})

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, ErrNoBeneficiaries)
	assert.Empty(t, repo.created)
}

func TestExecuteUnknownMode(t *testing.T) {
	stl := calculableSettlement()
	stl.DistributionMode = "FLAT"
	service, _, _ := newTestService(stl, twoOperatorResolution())

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestExecutePooledModeTracksSubset(t *testing.T) {
	stl := calculableSettlement()
	stl.DistributionMode = "POOLED"
	service, _, resolver := newTestService(stl, twoOperatorResolution())

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	require.NoError(t, err)
	assert.True(t, resolver.lastTrackSubset)
}

func TestExecutePropagatesRateError(t *testing.T) {
	settlements := &mockSettlements{settlements: map[int64]*settlement.Settlement{7: calculableSettlement()}}
	resolver := &mockResolver{resolution: twoOperatorResolution()}
	rates := &mockRates{err: taxrate.ErrNoRateForDate}
	repo := &mockRepo{}
	service := NewService(settlements, resolver, &mockOperators{}, rates, repo, testLogger())

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, taxrate.ErrNoRateForDate)
	assert.Empty(t, repo.created)
}

func TestExecutePropagatesResolverError(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), membership.Resolution{})
	serviceResolver := &mockResolver{err: membership.ErrNoMembers}
	service = NewService(
		&mockSettlements{settlements: map[int64]*settlement.Settlement{7: calculableSettlement()}},
		serviceResolver, &mockOperators{}, &mockRates{rate: dec("19")}, repo, testLogger(),
	)

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	assert.ErrorIs(t, err, membership.ErrNoMembers)
}

func TestVoidThenRecompute(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	first, err := service.Execute(context.Background(), 1, 7, "", "")
	require.NoError(t, err)

	require.NoError(t, service.Void(context.Background(), 1, first.ID))
	assert.Equal(t, StatusVoid, repo.created[0].Status)

	second, err := service.Execute(context.Background(), 1, 7, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestVoidNotFound(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	err := service.Void(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreviewShares(t *testing.T) {
	service, _, _ := newTestService(calculableSettlement(), twoOperatorResolution())

	shares, err := service.PreviewShares(context.Background(), 1, 10, 2024, ModeProportional)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, "70.0000", shares[0].TotalSharePercent.StringFixed(4))
	assert.Equal(t, "Nordfeld Betriebs GmbH", shares[0].OperatorName)

	_, err = service.PreviewShares(context.Background(), 1, 10, 2024, DistributionMode("FLAT"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestExecuteExistsCheckError(t *testing.T) {
	service, repo, _ := newTestService(calculableSettlement(), twoOperatorResolution())
	repo.existsErr = errors.New("db down")

	_, err := service.Execute(context.Background(), 1, 7, "", "")
	require.Error(t, err)
	assert.Empty(t, repo.created)
}
