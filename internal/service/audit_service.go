package service

import (
	"context"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditServiceImpl implements ports.AuditService. Entries are persisted
// asynchronously so audit writes never extend custody-operation latency; a
// failed write is logged, not surfaced to the caller.
type AuditServiceImpl struct {
	auditRepo ports.AuditRepository
	log       zerolog.Logger
}

// NewAuditService creates a new AuditServiceImpl.
func NewAuditService(auditRepo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{auditRepo: auditRepo, log: log}
}

// Record appends an entry to the custody audit trail.
func (s *AuditServiceImpl) Record(ctx context.Context, entry *domain.AuditLog) {
	go func() {
		// Detach from the request context so an aborted request cannot drop
		// the trail entry.
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.auditRepo.Create(persistCtx, entry); err != nil {
			s.log.Error().Err(err).
				Str("action", string(entry.Action)).
				Str("resource_id", entry.ResourceID).
				Msg("failed to persist audit log")
		}
	}()
}
