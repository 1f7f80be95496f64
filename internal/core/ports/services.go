package ports

import (
	"context"
	"time"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SignatureService handles HMAC-SHA256 signing of settlement webhooks.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT identity token operations.
type TokenService interface {
	Generate(accountID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed identity claims.
type TokenClaims struct {
	AccountID uuid.UUID
}

// SessionCache is a best-effort read cache of committed session snapshots.
// It is invalidated on every committed transition and never consulted for
// authorization or state-machine decisions.
type SessionCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	Set(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// SwapExecutor is the untrusted external swap capability. Execute converts
// inputAmount of the source vault's asset into the output asset, crediting
// the destination account, all within the supplied ledger transaction. The
// returned amount is the venue's claim; the settlement engine never trusts
// it and verifies pre/post balances itself.
type SwapExecutor interface {
	Execute(ctx context.Context, tx pgx.Tx, req SwapRequest) (int64, error)
}

// SwapRequest describes one conversion leg of a finalization.
type SwapRequest struct {
	SourceVault string
	InputAsset  string
	InputAmount int64
	OutputAsset string
	Destination string
	Instruction []byte // opaque venue routing data, passed through unmodified
}

// FeePolicy maps a gross settled amount to the protocol fee.
type FeePolicy interface {
	Fee(gross int64) int64
}

// --- Service Ports (Business Logic) ---

// AuthService defines identity registration and login.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegistryService defines merchant registry management.
type RegistryService interface {
	Register(ctx context.Context, req RegisterMerchantRequest) (*domain.MerchantRegistry, error)
	Update(ctx context.Context, req UpdateRegistryRequest) (*domain.MerchantRegistry, error)
	Get(ctx context.Context, owner uuid.UUID) (*domain.MerchantRegistry, error)
}

// RegisterMerchantRequest holds validated input for registry creation.
type RegisterMerchantRequest struct {
	Owner          uuid.UUID
	AcceptedAssets []string
	PreferredAsset string
	WebhookURL     *string
}

// UpdateRegistryRequest holds validated input for registry updates.
// Caller is the authenticated identity attempting the change.
type UpdateRegistryRequest struct {
	Caller         uuid.UUID
	Owner          uuid.UUID
	AcceptedAssets []string
	PreferredAsset string
	WebhookURL     *string
}

// SessionService defines the deposit-phase session state machine.
type SessionService interface {
	Open(ctx context.Context, req OpenSessionRequest) (*domain.PaymentSession, error)
	Deposit(ctx context.Context, req DepositRequest) (*domain.PaymentSession, error)
	Cancel(ctx context.Context, sessionID, caller uuid.UUID) (*domain.PaymentSession, error)
	Close(ctx context.Context, sessionID, caller uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	List(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]domain.PaymentSession, error)
}

// OpenSessionRequest holds validated input for opening a session.
type OpenSessionRequest struct {
	Payer          uuid.UUID
	Recipient      uuid.UUID
	PreferredAsset string
	Splits         map[string]int64 // asset -> requested amount
	TotalRequested int64
}

// DepositRequest holds validated input for a deposit.
type DepositRequest struct {
	SessionID uuid.UUID
	Caller    uuid.UUID
	Asset     string
	Amount    int64
}

// SettlementService orchestrates finalization: swaps, fee split, payout.
type SettlementService interface {
	Finalize(ctx context.Context, req FinalizeRequest) (*domain.SettlementReceipt, error)
}

// FinalizeRequest holds validated input for finalization. SwapInstructions
// carries the opaque per-asset venue routing data, keyed by input asset.
type FinalizeRequest struct {
	SessionID        uuid.UUID
	Caller           uuid.UUID
	SwapInstructions map[string][]byte
}

// FeeVaultService defines protocol fee custody operations.
type FeeVaultService interface {
	Withdraw(ctx context.Context, caller uuid.UUID, asset string, amount int64) error
	Balance(ctx context.Context, asset string) (int64, error)
}

// WebhookService defines async settlement-event delivery.
type WebhookService interface {
	NotifySettled(ctx context.Context, session *domain.PaymentSession, receipt *domain.SettlementReceipt) error
	NotifyCancelled(ctx context.Context, session *domain.PaymentSession) error
}

// AuditService appends entries to the custody audit trail.
type AuditService interface {
	Record(ctx context.Context, entry *domain.AuditLog)
}
