package postgres

import (
	"context"
	"errors"
	"fmt"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegistryRepo implements ports.RegistryRepository. The accepted asset set is
// stored as a text array; order is preserved as configured.
type RegistryRepo struct {
	pool Pool
}

// NewRegistryRepo creates a new RegistryRepo.
func NewRegistryRepo(pool Pool) *RegistryRepo {
	return &RegistryRepo{pool: pool}
}

// Create inserts a new merchant registry.
func (r *RegistryRepo) Create(ctx context.Context, reg *domain.MerchantRegistry) error {
	query := `INSERT INTO merchant_registries
		(owner_id, accepted_assets, preferred_asset, webhook_url, webhook_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		reg.Owner, reg.AcceptedAssets, reg.PreferredAsset,
		reg.WebhookURL, reg.WebhookSecret, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registry: %w", err)
	}
	return nil
}

// GetByOwner fetches the registry for an owner identity.
func (r *RegistryRepo) GetByOwner(ctx context.Context, owner uuid.UUID) (*domain.MerchantRegistry, error) {
	query := `SELECT owner_id, accepted_assets, preferred_asset, webhook_url, webhook_secret, created_at, updated_at
		FROM merchant_registries WHERE owner_id = $1`

	reg := &domain.MerchantRegistry{}
	err := r.pool.QueryRow(ctx, query, owner).Scan(
		&reg.Owner, &reg.AcceptedAssets, &reg.PreferredAsset,
		&reg.WebhookURL, &reg.WebhookSecret, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registry by owner: %w", err)
	}
	return reg, nil
}

// Update rewrites the registry's settlement policy.
func (r *RegistryRepo) Update(ctx context.Context, reg *domain.MerchantRegistry) error {
	query := `UPDATE merchant_registries
		SET accepted_assets = $1, preferred_asset = $2, webhook_url = $3, updated_at = $4
		WHERE owner_id = $5`

	tag, err := r.pool.Exec(ctx, query,
		reg.AcceptedAssets, reg.PreferredAsset, reg.WebhookURL, reg.UpdatedAt, reg.Owner,
	)
	if err != nil {
		return fmt.Errorf("update registry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update registry: owner %s not found", reg.Owner)
	}
	return nil
}
