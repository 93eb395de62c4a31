package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwind-erp/parkwind-erp/internal/platform/db"
	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
)

const uniqueViolation = "23505"

// PgRepository persists allocations in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// CreateWithItems inserts the header and all items in one transaction. The
// header must never be visible without its items, and the partial unique
// index uq_allocations_settlement (non-void rows only) turns a concurrent
// duplicate into ErrAllocationExists instead of a second header.
//
// The settlement was read outside this transaction, so its status is
// re-checked under a share lock before the insert: if the external workflow
// voided or reopened it mid-run, the write fails with InvalidStateError
// instead of committing an allocation against totals that no longer exist.
func (r *PgRepository) CreateWithItems(ctx context.Context, alloc *Allocation) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status settlement.Status
		err := tx.QueryRow(ctx, `
			SELECT status FROM settlements
			WHERE tenant_id = $1 AND id = $2
			FOR SHARE
		`, alloc.TenantID, alloc.SettlementID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return settlement.ErrNotFound
			}
			return fmt.Errorf("allocation: revalidate settlement: %w", err)
		}
		if !status.Calculable() {
			return &InvalidStateError{Status: status}
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO allocations (
				reference, tenant_id, settlement_id, park_id, period_label, notes,
				status, mode, vat_rate_percent, total_usage_fee, total_taxable,
				total_exempt, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`,
			alloc.Reference, alloc.TenantID, alloc.SettlementID, alloc.ParkID,
			alloc.PeriodLabel, alloc.Notes, alloc.Status, alloc.Mode,
			alloc.VATRatePercent, alloc.TotalUsageFee, alloc.TotalTaxable,
			alloc.TotalExempt, alloc.CreatedAt, alloc.UpdatedAt,
		).Scan(&alloc.ID)
		if err != nil {
			return fmt.Errorf("allocation: insert header: %w", err)
		}

		for i := range alloc.Items {
			item := &alloc.Items[i]
			item.AllocationID = alloc.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO allocation_items (
					allocation_id, operator_id, allocation_basis, share_percent,
					total_allocated, direct_settlement, taxable_amount, vat_amount,
					exempt_amount, net_payable
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id
			`,
				item.AllocationID, item.OperatorID, item.AllocationBasis,
				item.SharePercent, item.TotalAllocated, item.DirectSettlement,
				item.TaxableAmount, item.VATAmount, item.ExemptAmount,
				item.NetPayable,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("allocation: insert item for operator %d: %w", item.OperatorID, err)
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAllocationExists
		}
		return err
	}
	return nil
}

// ExistsForSettlement reports whether a non-void allocation exists.
func (r *PgRepository) ExistsForSettlement(ctx context.Context, tenantID, settlementID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM allocations
			WHERE tenant_id = $1 AND settlement_id = $2 AND status <> $3
		)
	`, tenantID, settlementID, StatusVoid).Scan(&exists)
	return exists, err
}

// Get loads one allocation with its items.
func (r *PgRepository) Get(ctx context.Context, tenantID, allocationID int64) (*Allocation, error) {
	return r.getOne(ctx, `
		SELECT id, reference, tenant_id, settlement_id, park_id, period_label,
		       notes, status, mode, vat_rate_percent, total_usage_fee,
		       total_taxable, total_exempt, created_at, updated_at
		FROM allocations
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, allocationID)
}

// GetBySettlement loads the non-void allocation of a settlement.
func (r *PgRepository) GetBySettlement(ctx context.Context, tenantID, settlementID int64) (*Allocation, error) {
	return r.getOne(ctx, `
		SELECT id, reference, tenant_id, settlement_id, park_id, period_label,
		       notes, status, mode, vat_rate_percent, total_usage_fee,
		       total_taxable, total_exempt, created_at, updated_at
		FROM allocations
		WHERE tenant_id = $1 AND settlement_id = $2 AND status <> 'VOID'
	`, tenantID, settlementID)
}

func (r *PgRepository) getOne(ctx context.Context, query string, args ...any) (*Allocation, error) {
	var a Allocation
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Reference, &a.TenantID, &a.SettlementID, &a.ParkID,
		&a.PeriodLabel, &a.Notes, &a.Status, &a.Mode, &a.VATRatePercent,
		&a.TotalUsageFee, &a.TotalTaxable, &a.TotalExempt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("allocation: get: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, allocation_id, operator_id, allocation_basis, share_percent,
		       total_allocated, direct_settlement, taxable_amount, vat_amount,
		       exempt_amount, net_payable
		FROM allocation_items
		WHERE allocation_id = $1
		ORDER BY operator_id
	`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("allocation: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(
			&item.ID, &item.AllocationID, &item.OperatorID, &item.AllocationBasis,
			&item.SharePercent, &item.TotalAllocated, &item.DirectSettlement,
			&item.TaxableAmount, &item.VATAmount, &item.ExemptAmount,
			&item.NetPayable,
		); err != nil {
			return nil, err
		}
		a.Items = append(a.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Void marks a draft allocation void. The partial unique index ignores void
// rows, which is what frees the settlement for recomputation.
func (r *PgRepository) Void(ctx context.Context, tenantID, allocationID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE allocations
		SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = $4
	`, StatusVoid, tenantID, allocationID, StatusDraft)
	if err != nil {
		return fmt.Errorf("allocation: void: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status Status
		err := r.pool.QueryRow(ctx, `
			SELECT status FROM allocations WHERE tenant_id = $1 AND id = $2
		`, tenantID, allocationID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return ErrNotVoidable
	}
	return nil
}
