package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRepo implements ports.SessionRepository. The split ledger is stored
// as JSONB keyed by asset code.
type SessionRepo struct {
	pool Pool
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(pool Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, payer_id, recipient_id, preferred_asset, splits, total_requested,
		status, authority, authority_bump, created_at, updated_at`

// Create inserts a new payment session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.PaymentSession) error {
	splits, err := json.Marshal(s.Splits)
	if err != nil {
		return fmt.Errorf("marshal splits: %w", err)
	}

	query := `INSERT INTO payment_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.Payer, s.Recipient, s.PreferredAsset, splits, s.TotalRequested,
		string(s.Status), s.Authority, int16(s.AuthorityBump), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID fetches a session without locking.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetForUpdate fetches a session and takes its row lock. Must be called
// within a transaction; conflicting operations on the same session serialize
// here.
func (r *SessionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1 FOR UPDATE`
	return r.scanSession(tx.QueryRow(ctx, query, id))
}

// Update rewrites the session's split ledger and status.
func (r *SessionRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.PaymentSession) error {
	splits, err := json.Marshal(s.Splits)
	if err != nil {
		return fmt.Errorf("marshal splits: %w", err)
	}

	query := `UPDATE payment_sessions
		SET splits = $1, status = $2, updated_at = $3
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, splits, string(s.Status), s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update session: %s not found", s.ID)
	}
	return nil
}

// Delete removes a closed session's row.
func (r *SessionRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM payment_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete session: %s not found", id)
	}
	return nil
}

// ListByRecipient returns a recipient's sessions, newest first.
func (r *SessionRepo) ListByRecipient(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]domain.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM payment_sessions
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, recipient, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.PaymentSession
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) scanSession(row pgx.Row) (*domain.PaymentSession, error) {
	s := &domain.PaymentSession{}
	var splits []byte
	var status string
	var bump int16

	err := row.Scan(
		&s.ID, &s.Payer, &s.Recipient, &s.PreferredAsset, &splits, &s.TotalRequested,
		&status, &s.Authority, &bump, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal(splits, &s.Splits); err != nil {
		return nil, fmt.Errorf("unmarshal splits: %w", err)
	}
	s.Status = domain.SessionStatus(status)
	s.AuthorityBump = uint8(bump)
	return s, nil
}
