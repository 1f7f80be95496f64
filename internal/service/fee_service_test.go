package service

import (
	"context"
	"testing"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports/mocks"
	"escrow-settlement-engine/internal/derive"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type feeTestDeps struct {
	svc         *FeeVaultServiceImpl
	holdingRepo *mocks.MockHoldingRepository
	transactor  *mocks.MockDBTransactor
	auditSvc    *mocks.MockAuditService
	admin       uuid.UUID
	ctrl        *gomock.Controller
}

func setupFeeService(t *testing.T) *feeTestDeps {
	ctrl := gomock.NewController(t)
	d := &feeTestDeps{
		holdingRepo: mocks.NewMockHoldingRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		auditSvc:    mocks.NewMockAuditService(ctrl),
		admin:       uuid.New(),
		ctrl:        ctrl,
	}
	d.svc = NewFeeVaultService(d.holdingRepo, d.transactor, d.auditSvc, d.admin, newTestLogger())
	return d
}

func TestFeeVaultService_Withdraw_Success(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	vaultAddr, _, err := derive.FeeVault("USDC")
	require.NoError(t, err)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.holdingRepo.EXPECT().GetForUpdate(ctx, tx, vaultAddr.String(), "USDC").Return(&domain.Holding{
		Address: vaultAddr.String(), Asset: "USDC", Balance: 50000,
	}, nil)
	d.holdingRepo.EXPECT().Debit(ctx, tx, vaultAddr.String(), "USDC", int64(20000)).Return(nil)
	d.holdingRepo.EXPECT().Credit(ctx, tx, d.admin.String(), "USDC", int64(20000)).Return(nil)
	d.auditSvc.EXPECT().Record(gomock.Any(), gomock.Any())

	err = d.svc.Withdraw(ctx, d.admin, "USDC", 20000)
	require.NoError(t, err)
}

func TestFeeVaultService_Withdraw_NotAdmin(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	err := d.svc.Withdraw(context.Background(), uuid.New(), "USDC", 100)
	assertAppErrorCode(t, err, "ESC_001")
}

func TestFeeVaultService_Withdraw_InvalidAmount(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	err := d.svc.Withdraw(context.Background(), d.admin, "USDC", 0)
	assertAppErrorCode(t, err, "ESC_003")
}

func TestFeeVaultService_Withdraw_InsufficientBalance(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	vaultAddr, _, err := derive.FeeVault("USDC")
	require.NoError(t, err)

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.holdingRepo.EXPECT().GetForUpdate(gomock.Any(), tx, vaultAddr.String(), "USDC").Return(&domain.Holding{
		Address: vaultAddr.String(), Asset: "USDC", Balance: 100,
	}, nil)

	err = d.svc.Withdraw(context.Background(), d.admin, "USDC", 20000)
	assertAppErrorCode(t, err, "ESC_010")
}

func TestFeeVaultService_Withdraw_EmptyVault(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	vaultAddr, _, err := derive.FeeVault("BONK")
	require.NoError(t, err)

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.holdingRepo.EXPECT().GetForUpdate(gomock.Any(), tx, vaultAddr.String(), "BONK").Return(nil, nil)

	err = d.svc.Withdraw(context.Background(), d.admin, "BONK", 1)
	assertAppErrorCode(t, err, "ESC_010")
}

func TestFeeVaultService_Balance(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	vaultAddr, _, err := derive.FeeVault("USDC")
	require.NoError(t, err)

	d.holdingRepo.EXPECT().Get(gomock.Any(), vaultAddr.String(), "USDC").Return(&domain.Holding{
		Address: vaultAddr.String(), Asset: "USDC", Balance: 12345,
	}, nil)

	balance, err := d.svc.Balance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), balance)
}

func TestFeeVaultService_Balance_NeverCollected(t *testing.T) {
	d := setupFeeService(t)
	defer d.ctrl.Finish()

	vaultAddr, _, err := derive.FeeVault("SOL")
	require.NoError(t, err)

	d.holdingRepo.EXPECT().Get(gomock.Any(), vaultAddr.String(), "SOL").Return(nil, nil)

	balance, err := d.svc.Balance(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Zero(t, balance)
}
