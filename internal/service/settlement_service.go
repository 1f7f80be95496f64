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
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SettlementServiceImpl implements ports.SettlementService. Finalize runs as
// a single ledger transaction: FINALIZING is set, every vault is converted or
// moved into the settlement accumulator, the fee is split off, and SETTLED is
// committed together with the payout. Any failed leg rolls the whole
// settlement back, deposits included.
type SettlementServiceImpl struct {
	sessionRepo         ports.SessionRepository
	holdingRepo         ports.HoldingRepository
	transactor          ports.DBTransactor
	swapExec            ports.SwapExecutor
	feePolicy           ports.FeePolicy
	cache               ports.SessionCache
	auditSvc            ports.AuditService
	webhookSvc          ports.WebhookService
	requireFullProceeds bool
	log                 zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	sessionRepo ports.SessionRepository,
	holdingRepo ports.HoldingRepository,
	transactor ports.DBTransactor,
	swapExec ports.SwapExecutor,
	feePolicy ports.FeePolicy,
	cache ports.SessionCache,
	auditSvc ports.AuditService,
	webhookSvc ports.WebhookService,
	requireFullProceeds bool,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		sessionRepo:         sessionRepo,
		holdingRepo:         holdingRepo,
		transactor:          transactor,
		swapExec:            swapExec,
		feePolicy:           feePolicy,
		cache:               cache,
		auditSvc:            auditSvc,
		webhookSvc:          webhookSvc,
		requireFullProceeds: requireFullProceeds,
		log:                 log,
	}
}

// Finalize converts every escrowed deposit into the session's preferred
// asset, extracts the protocol fee, and pays the remainder to the recipient.
func (s *SettlementServiceImpl) Finalize(ctx context.Context, req ports.FinalizeRequest) (*domain.SettlementReceipt, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	session, err := s.sessionRepo.GetForUpdate(ctx, dbTx, req.SessionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock session: %w", err))
	}
	if session == nil {
		return nil, apperror.ErrNotFound("session")
	}
	if req.Caller != session.Payer {
		return nil, apperror.ErrUnauthorized()
	}
	if !session.CanFinalize() {
		return nil, apperror.ErrInvalidState(string(session.Status))
	}
	if !session.HasDeposits() {
		return nil, apperror.ErrNothingToSettle()
	}

	session.Status = domain.SessionStatusFinalizing
	if err := s.sessionRepo.Update(ctx, dbTx, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark finalizing: %w", err))
	}

	accAddr, _, err := derive.Accumulator(session.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive accumulator: %w", err))
	}
	acc := accAddr.String()
	preferred := session.PreferredAsset

	// Assets are processed in ascending order so concurrent finalize attempts
	// acquire vault locks in the same order.
	for _, asset := range session.AssetOrder() {
		split := session.Splits[asset]
		if split.Deposited == 0 {
			continue
		}

		vaultAddr, _, err := derive.EscrowVault(session.ID, asset)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("derive vault: %w", err))
		}
		vault := vaultAddr.String()

		locked, err := s.holdingRepo.GetForUpdate(ctx, dbTx, vault, asset)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock vault: %w", err))
		}
		if locked == nil || locked.Balance != split.Deposited {
			return nil, apperror.InternalError(fmt.Errorf("vault %s/%s does not match deposit ledger", vault, asset))
		}

		if asset == preferred {
			if err := s.holdingRepo.Debit(ctx, dbTx, vault, asset, split.Deposited); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("drain vault: %w", err))
			}
			if err := s.holdingRepo.Credit(ctx, dbTx, acc, preferred, split.Deposited); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("credit accumulator: %w", err))
			}
		} else {
			if err := s.swapVerified(ctx, dbTx, session, vault, asset, split.Deposited, acc, req.SwapInstructions[asset]); err != nil {
				return nil, err
			}
		}

		if err := s.holdingRepo.Close(ctx, dbTx, vault, asset); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("close vault: %w", err))
		}
	}

	accHolding, err := s.holdingRepo.GetTx(ctx, dbTx, acc, preferred)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read accumulator: %w", err))
	}
	var gross int64
	if accHolding != nil {
		gross = accHolding.Balance
	}
	if gross == 0 {
		return nil, apperror.ErrNothingToSettle()
	}

	fee := s.feePolicy.Fee(gross)
	net := gross - fee
	if net < 0 {
		return nil, apperror.ErrInsufficientProceeds()
	}
	if s.requireFullProceeds && net < session.TotalRequested {
		return nil, apperror.ErrInsufficientProceeds()
	}

	if err := s.holdingRepo.Debit(ctx, dbTx, acc, preferred, gross); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("drain accumulator: %w", err))
	}
	if fee > 0 {
		feeAddr, _, err := derive.FeeVault(preferred)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("derive fee vault: %w", err))
		}
		if err := s.holdingRepo.Credit(ctx, dbTx, feeAddr.String(), preferred, fee); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("credit fee vault: %w", err))
		}
	}
	if net > 0 {
		if err := s.holdingRepo.Credit(ctx, dbTx, session.Recipient.String(), preferred, net); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("pay recipient: %w", err))
		}
	}
	if err := s.holdingRepo.Close(ctx, dbTx, acc, preferred); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("close accumulator: %w", err))
	}

	now := time.Now().UTC()
	session.Status = domain.SessionStatusSettled
	session.UpdatedAt = now
	if err := s.sessionRepo.Update(ctx, dbTx, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update session: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	receipt := &domain.SettlementReceipt{
		SessionID:      session.ID,
		PreferredAsset: preferred,
		GrossSettled:   gross,
		Fee:            fee,
		NetToRecipient: net,
		SettledAt:      now,
	}

	s.invalidateCache(ctx, session.ID)
	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &req.Caller,
		Action:       domain.AuditActionFinalize,
		ResourceType: "payment_session",
		ResourceID:   session.ID.String(),
		Details:      fmt.Sprintf(`{"asset":%q,"gross":%d,"fee":%d,"net":%d}`, preferred, gross, fee, net),
		CreatedAt:    now,
	})
	if s.webhookSvc != nil {
		if err := s.webhookSvc.NotifySettled(ctx, session, receipt); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("settlement webhook failed")
		}
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("asset", preferred).
		Int64("gross", gross).
		Int64("fee", fee).
		Int64("net", net).
		Msg("payment session settled")

	return receipt, nil
}

// swapVerified runs one conversion leg through the untrusted venue and
// confirms the ledger moves itself: the input vault must be drained by
// exactly the deposited amount and the accumulator must grow by exactly what
// the venue claims.
func (s *SettlementServiceImpl) swapVerified(
	ctx context.Context,
	dbTx pgx.Tx,
	session *domain.PaymentSession,
	vault, asset string,
	amount int64,
	acc string,
	instruction []byte,
) error {
	accPre, err := s.holdingRepo.GetTx(ctx, dbTx, acc, session.PreferredAsset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read accumulator: %w", err))
	}
	var pre int64
	if accPre != nil {
		pre = accPre.Balance
	}

	claimed, err := s.swapExec.Execute(ctx, dbTx, ports.SwapRequest{
		SourceVault: vault,
		InputAsset:  asset,
		InputAmount: amount,
		OutputAsset: session.PreferredAsset,
		Destination: acc,
		Instruction: instruction,
	})
	if err != nil {
		return apperror.ErrSwapFailed(fmt.Errorf("venue %s -> %s: %w", asset, session.PreferredAsset, err))
	}

	vaultPost, err := s.holdingRepo.GetTx(ctx, dbTx, vault, asset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read vault: %w", err))
	}
	if vaultPost == nil || vaultPost.Balance != 0 {
		return apperror.ErrSwapFailed(fmt.Errorf("venue did not drain vault %s/%s", vault, asset))
	}

	accPost, err := s.holdingRepo.GetTx(ctx, dbTx, acc, session.PreferredAsset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read accumulator: %w", err))
	}
	var post int64
	if accPost != nil {
		post = accPost.Balance
	}
	if claimed < 0 || post-pre != claimed {
		return apperror.ErrSwapFailed(fmt.Errorf("venue claimed %d but accumulator moved %d", claimed, post-pre))
	}

	return nil
}

func (s *SettlementServiceImpl) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("session cache invalidation failed")
	}
}
