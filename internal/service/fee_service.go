package service

import (
	"context"
	"fmt"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/internal/derive"
	"escrow-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeeVaultServiceImpl implements ports.FeeVaultService: custody of collected
// protocol fees, withdrawable only by the configured administrator.
type FeeVaultServiceImpl struct {
	holdingRepo  ports.HoldingRepository
	transactor   ports.DBTransactor
	auditSvc     ports.AuditService
	adminAccount uuid.UUID
	log          zerolog.Logger
}

// NewFeeVaultService creates a new FeeVaultServiceImpl.
func NewFeeVaultService(
	holdingRepo ports.HoldingRepository,
	transactor ports.DBTransactor,
	auditSvc ports.AuditService,
	adminAccount uuid.UUID,
	log zerolog.Logger,
) *FeeVaultServiceImpl {
	return &FeeVaultServiceImpl{
		holdingRepo:  holdingRepo,
		transactor:   transactor,
		auditSvc:     auditSvc,
		adminAccount: adminAccount,
		log:          log,
	}
}

// Withdraw moves amount of collected fees from the asset's fee vault to the
// administrator's wallet.
func (s *FeeVaultServiceImpl) Withdraw(ctx context.Context, caller uuid.UUID, asset string, amount int64) error {
	if caller != s.adminAccount {
		return apperror.ErrUnauthorized()
	}
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	vaultAddr, _, err := derive.FeeVault(asset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("derive fee vault: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	vault, err := s.holdingRepo.GetForUpdate(ctx, dbTx, vaultAddr.String(), asset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock fee vault: %w", err))
	}
	if vault == nil || vault.Balance < amount {
		return apperror.ErrInsufficientBalance()
	}

	if err := s.holdingRepo.Debit(ctx, dbTx, vaultAddr.String(), asset, amount); err != nil {
		return apperror.InternalError(fmt.Errorf("debit fee vault: %w", err))
	}
	if err := s.holdingRepo.Credit(ctx, dbTx, caller.String(), asset, amount); err != nil {
		return apperror.InternalError(fmt.Errorf("credit admin wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &caller,
		Action:       domain.AuditActionWithdrawFees,
		ResourceType: "fee_vault",
		ResourceID:   vaultAddr.String(),
		Details:      fmt.Sprintf(`{"asset":%q,"amount":%d}`, asset, amount),
		CreatedAt:    time.Now().UTC(),
	})

	s.log.Info().
		Str("asset", asset).
		Int64("amount", amount).
		Msg("protocol fees withdrawn")

	return nil
}

// Balance returns the current fee vault balance for asset. A vault that has
// never collected fees reports zero.
func (s *FeeVaultServiceImpl) Balance(ctx context.Context, asset string) (int64, error) {
	vaultAddr, _, err := derive.FeeVault(asset)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("derive fee vault: %w", err))
	}
	holding, err := s.holdingRepo.Get(ctx, vaultAddr.String(), asset)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("fetch fee vault: %w", err))
	}
	if holding == nil {
		return 0, nil
	}
	return holding.Balance, nil
}
