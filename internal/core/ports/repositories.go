package ports

import (
	"context"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for identities.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
}

// RegistryRepository defines persistence operations for merchant registries,
// keyed by owner identity.
type RegistryRepository interface {
	Create(ctx context.Context, registry *domain.MerchantRegistry) error
	GetByOwner(ctx context.Context, owner uuid.UUID) (*domain.MerchantRegistry, error)
	Update(ctx context.Context, registry *domain.MerchantRegistry) error
}

// SessionRepository defines persistence operations for payment sessions.
// Methods accepting pgx.Tx run inside a ledger transaction; GetForUpdate
// takes the session's row lock so conflicting operations serialize.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.PaymentSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentSession, error)
	Update(ctx context.Context, tx pgx.Tx, session *domain.PaymentSession) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByRecipient(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]domain.PaymentSession, error)
}

// HoldingRepository defines persistence operations for ledger balance rows.
// All balance movements run inside a pgx transaction; a transfer is a Debit
// of one row and a Credit of another committed atomically.
type HoldingRepository interface {
	Get(ctx context.Context, address, asset string) (*domain.Holding, error)
	GetTx(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error)
	// Credit adds amount to the row, creating it at zero first if absent.
	// Pure addition, so concurrent credits to shared rows commute.
	Credit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error
	// Debit subtracts amount; the row must already be locked by the caller.
	Debit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error
	// Close removes an emptied custody row, reclaiming its storage.
	Close(ctx context.Context, tx pgx.Tx, address, asset string) error
	ListByAddress(ctx context.Context, address string) ([]domain.Holding, error)
}

// AuditRepository persists the custody audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditLog, error)
}

// WebhookRepository persists settlement-event delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
}

// DBTransactor provides ledger transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
