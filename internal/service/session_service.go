package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/internal/derive"
	"escrow-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sessionCacheTTL = 5 * time.Minute

// SessionServiceImpl implements ports.SessionService: the deposit-phase
// session state machine. Every mutation runs as one ledger transaction, so a
// caller either gets a fully-applied transition or a full rejection.
type SessionServiceImpl struct {
	sessionRepo  ports.SessionRepository
	registryRepo ports.RegistryRepository
	holdingRepo  ports.HoldingRepository
	transactor   ports.DBTransactor
	cache        ports.SessionCache
	auditSvc     ports.AuditService
	webhookSvc   ports.WebhookService
	log          zerolog.Logger
}

// NewSessionService creates a new SessionServiceImpl.
func NewSessionService(
	sessionRepo ports.SessionRepository,
	registryRepo ports.RegistryRepository,
	holdingRepo ports.HoldingRepository,
	transactor ports.DBTransactor,
	cache ports.SessionCache,
	auditSvc ports.AuditService,
	webhookSvc ports.WebhookService,
	log zerolog.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		sessionRepo:  sessionRepo,
		registryRepo: registryRepo,
		holdingRepo:  holdingRepo,
		transactor:   transactor,
		cache:        cache,
		auditSvc:     auditSvc,
		webhookSvc:   webhookSvc,
		log:          log,
	}
}

// Open validates the request against the recipient's registry and creates a
// session in CREATED state. The registry's preferred asset is snapshotted so
// later policy changes cannot alter this settlement.
func (s *SessionServiceImpl) Open(ctx context.Context, req ports.OpenSessionRequest) (*domain.PaymentSession, error) {
	if len(req.Splits) == 0 {
		return nil, apperror.Validation("requested splits are empty")
	}
	if req.TotalRequested <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	for _, amount := range req.Splits {
		if amount <= 0 {
			return nil, apperror.ErrInvalidAmount()
		}
	}

	registry, err := s.registryRepo.GetByOwner(ctx, req.Recipient)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch registry: %w", err))
	}
	if registry == nil {
		return nil, apperror.ErrNotFound("registry")
	}
	if req.PreferredAsset != registry.PreferredAsset || !registry.Accepts(req.PreferredAsset) {
		return nil, apperror.ErrAssetNotAccepted(req.PreferredAsset)
	}
	for asset := range req.Splits {
		if !registry.Accepts(asset) {
			return nil, apperror.ErrAssetNotAccepted(asset)
		}
	}

	sessionID := uuid.New()
	authority, bump, err := derive.SessionAuthority(req.Payer, req.Recipient, sessionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive session authority: %w", err))
	}

	splits := make(map[string]domain.Split, len(req.Splits))
	for asset, amount := range req.Splits {
		splits[asset] = domain.Split{Requested: amount}
	}

	now := time.Now().UTC()
	session := &domain.PaymentSession{
		ID:             sessionID,
		Payer:          req.Payer,
		Recipient:      req.Recipient,
		PreferredAsset: req.PreferredAsset,
		Splits:         splits,
		TotalRequested: req.TotalRequested,
		Status:         domain.SessionStatusCreated,
		Authority:      authority.String(),
		AuthorityBump:  bump,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create session: %w", err))
	}

	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &req.Payer,
		Action:       domain.AuditActionOpenSession,
		ResourceType: "payment_session",
		ResourceID:   sessionID.String(),
		CreatedAt:    now,
	})

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("payer", req.Payer.String()).
		Str("recipient", req.Recipient.String()).
		Str("preferred_asset", req.PreferredAsset).
		Int64("total_requested", req.TotalRequested).
		Msg("payment session opened")

	return session, nil
}

// Deposit moves amount of asset from the payer's wallet into the session's
// escrow vault for that asset, creating the vault on first use.
func (s *SessionServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.PaymentSession, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

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
	if !session.AcceptsDeposits() {
		return nil, apperror.ErrInvalidState(string(session.Status))
	}

	split, ok := session.Splits[req.Asset]
	if !ok {
		return nil, apperror.ErrAssetNotRequested(req.Asset)
	}

	newDeposited, ok := addChecked(split.Deposited, req.Amount)
	if !ok || newDeposited > split.Requested {
		// Strict rejection: clipping the deposit to the remaining need would
		// silently strand the excess.
		return nil, apperror.ErrOverfunded(req.Asset)
	}

	payerAddr := session.Payer.String()
	wallet, err := s.holdingRepo.GetForUpdate(ctx, dbTx, payerAddr, req.Asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock payer holding: %w", err))
	}
	if wallet == nil || wallet.Balance < req.Amount {
		return nil, apperror.ErrInsufficientBalance()
	}

	vaultAddr, _, err := derive.EscrowVault(session.ID, req.Asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("derive vault: %w", err))
	}

	if err := s.holdingRepo.Debit(ctx, dbTx, payerAddr, req.Asset, req.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit payer: %w", err))
	}
	if err := s.holdingRepo.Credit(ctx, dbTx, vaultAddr.String(), req.Asset, req.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit vault: %w", err))
	}

	split.Deposited = newDeposited
	session.Splits[req.Asset] = split
	session.Status = session.FundingStatus()
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessionRepo.Update(ctx, dbTx, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update session: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.invalidateCache(ctx, session.ID)
	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &req.Caller,
		Action:       domain.AuditActionDeposit,
		ResourceType: "payment_session",
		ResourceID:   session.ID.String(),
		Details:      fmt.Sprintf(`{"asset":%q,"amount":%d}`, req.Asset, req.Amount),
		CreatedAt:    session.UpdatedAt,
	})

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("asset", req.Asset).
		Int64("amount", req.Amount).
		Str("status", string(session.Status)).
		Msg("deposit applied")

	return session, nil
}

// Cancel refunds every funded vault to the payer and closes the session.
func (s *SessionServiceImpl) Cancel(ctx context.Context, sessionID, caller uuid.UUID) (*domain.PaymentSession, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	session, err := s.sessionRepo.GetForUpdate(ctx, dbTx, sessionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock session: %w", err))
	}
	if session == nil {
		return nil, apperror.ErrNotFound("session")
	}
	if caller != session.Payer {
		return nil, apperror.ErrUnauthorized()
	}
	if !session.AcceptsDeposits() {
		return nil, apperror.ErrInvalidState(string(session.Status))
	}

	payerAddr := session.Payer.String()
	for _, asset := range session.AssetOrder() {
		split := session.Splits[asset]
		if split.Deposited == 0 {
			continue
		}

		vaultAddr, _, err := derive.EscrowVault(session.ID, asset)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("derive vault: %w", err))
		}
		vault, err := s.holdingRepo.GetForUpdate(ctx, dbTx, vaultAddr.String(), asset)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock vault: %w", err))
		}
		if vault == nil || vault.Balance != split.Deposited {
			return nil, apperror.InternalError(fmt.Errorf("vault %s/%s does not match deposit ledger", vaultAddr.String(), asset))
		}

		if err := s.holdingRepo.Debit(ctx, dbTx, vaultAddr.String(), asset, split.Deposited); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("drain vault: %w", err))
		}
		if err := s.holdingRepo.Credit(ctx, dbTx, payerAddr, asset, split.Deposited); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("refund payer: %w", err))
		}
		if err := s.holdingRepo.Close(ctx, dbTx, vaultAddr.String(), asset); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("close vault: %w", err))
		}
	}

	session.Status = domain.SessionStatusCancelled
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessionRepo.Update(ctx, dbTx, session); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update session: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.invalidateCache(ctx, session.ID)
	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &caller,
		Action:       domain.AuditActionCancel,
		ResourceType: "payment_session",
		ResourceID:   session.ID.String(),
		CreatedAt:    session.UpdatedAt,
	})

	if s.webhookSvc != nil {
		if err := s.webhookSvc.NotifyCancelled(ctx, session); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("cancellation webhook failed")
		}
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Msg("payment session cancelled, deposits refunded")

	return session, nil
}

// Close reclaims a terminal session's storage. Vaults are already closed by
// the terminal transition, so only the session row remains.
func (s *SessionServiceImpl) Close(ctx context.Context, sessionID, caller uuid.UUID) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	session, err := s.sessionRepo.GetForUpdate(ctx, dbTx, sessionID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock session: %w", err))
	}
	if session == nil {
		return apperror.ErrNotFound("session")
	}
	if caller != session.Payer {
		return apperror.ErrUnauthorized()
	}
	if !session.IsTerminal() {
		return apperror.ErrInvalidState(string(session.Status))
	}

	if err := s.sessionRepo.Delete(ctx, dbTx, sessionID); err != nil {
		return apperror.InternalError(fmt.Errorf("delete session: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.invalidateCache(ctx, sessionID)
	s.auditSvc.Record(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        &caller,
		Action:       domain.AuditActionCloseSession,
		ResourceType: "payment_session",
		ResourceID:   sessionID.String(),
		CreatedAt:    time.Now().UTC(),
	})

	return nil
}

// Get returns a committed session snapshot, served from the read cache when
// possible.
func (s *SessionServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("session cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch session: %w", err))
	}
	if session == nil {
		return nil, apperror.ErrNotFound("session")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, session, sessionCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("session cache write failed")
		}
	}

	return session, nil
}

// List returns the recipient's sessions, newest first.
func (s *SessionServiceImpl) List(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]domain.PaymentSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessionRepo.ListByRecipient(ctx, recipient, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list sessions: %w", err))
	}
	return sessions, nil
}

func (s *SessionServiceImpl) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("session cache invalidation failed")
	}
}

// addChecked adds two non-negative amounts, reporting overflow.
func addChecked(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
