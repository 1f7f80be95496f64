package postgres

import (
	"context"
	"errors"
	"fmt"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// HoldingRepo implements ports.HoldingRepository over the holdings ledger
// table, keyed by (address, asset).
type HoldingRepo struct {
	pool Pool
}

// NewHoldingRepo creates a new HoldingRepo.
func NewHoldingRepo(pool Pool) *HoldingRepo {
	return &HoldingRepo{pool: pool}
}

const holdingColumns = `address, asset, balance, created_at, updated_at`

// Get fetches a holding without locking.
func (r *HoldingRepo) Get(ctx context.Context, address, asset string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE address = $1 AND asset = $2`
	return scanHolding(r.pool.QueryRow(ctx, query, address, asset))
}

// GetTx fetches a holding inside a transaction without locking.
func (r *HoldingRepo) GetTx(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE address = $1 AND asset = $2`
	return scanHolding(tx.QueryRow(ctx, query, address, asset))
}

// GetForUpdate fetches a holding and takes its row lock. Must be called
// within a transaction.
func (r *HoldingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE address = $1 AND asset = $2 FOR UPDATE`
	return scanHolding(tx.QueryRow(ctx, query, address, asset))
}

// Credit adds amount to the row, creating it first if absent. The upsert is a
// pure addition, so concurrent credits to the same row commute.
func (r *HoldingRepo) Credit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error {
	query := `INSERT INTO holdings (address, asset, balance, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (address, asset)
		DO UPDATE SET balance = holdings.balance + EXCLUDED.balance, updated_at = now()`

	_, err := tx.Exec(ctx, query, address, asset, amount)
	if err != nil {
		return fmt.Errorf("credit holding: %w", err)
	}
	return nil
}

// Debit subtracts amount from an existing row. The caller must hold the row
// lock; the balance guard is a final defense against going negative.
func (r *HoldingRepo) Debit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error {
	query := `UPDATE holdings
		SET balance = balance - $1, updated_at = now()
		WHERE address = $2 AND asset = $3 AND balance >= $1`

	tag, err := tx.Exec(ctx, query, amount, address, asset)
	if err != nil {
		return fmt.Errorf("debit holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debit holding: %s/%s has insufficient balance", address, asset)
	}
	return nil
}

// Close removes an emptied custody row, reclaiming its storage. Rejects rows
// still carrying a balance.
func (r *HoldingRepo) Close(ctx context.Context, tx pgx.Tx, address, asset string) error {
	query := `DELETE FROM holdings WHERE address = $1 AND asset = $2 AND balance = 0`

	tag, err := tx.Exec(ctx, query, address, asset)
	if err != nil {
		return fmt.Errorf("close holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close holding: %s/%s missing or not empty", address, asset)
	}
	return nil
}

// ListByAddress returns all holdings of one address.
func (r *HoldingRepo) ListByAddress(ctx context.Context, address string) ([]domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE address = $1 ORDER BY asset`

	rows, err := r.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Address, &h.Asset, &h.Balance, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func scanHolding(row pgx.Row) (*domain.Holding, error) {
	h := &domain.Holding{}
	err := row.Scan(&h.Address, &h.Asset, &h.Balance, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan holding: %w", err)
	}
	return h, nil
}
