package postgres

import (
	"context"
	"fmt"

	"escrow-settlement-engine/internal/core/domain"
)

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create inserts a settlement-event delivery record.
func (r *WebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	query := `INSERT INTO webhook_delivery_logs
		(id, session_id, recipient_id, webhook_url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		log.ID, log.SessionID, log.Recipient, log.WebhookURL,
		log.Payload, log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery log: %w", err)
	}
	return nil
}

// Update records the outcome of a delivery attempt.
func (r *WebhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	query := `UPDATE webhook_delivery_logs
		SET http_status = $1, attempt = $2, status = $3, next_retry_at = $4, last_error = $5, updated_at = $6
		WHERE id = $7`

	_, err := r.pool.Exec(ctx, query,
		log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery log: %w", err)
	}
	return nil
}
