package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// SessionCache implements ports.SessionCache using Redis. It holds JSON
// snapshots of committed sessions; the database remains the source of truth
// and every committed transition invalidates the snapshot.
type SessionCache struct {
	client *goredis.Client
	prefix string
}

// NewSessionCache creates a new Redis-backed session cache.
func NewSessionCache(client *goredis.Client) *SessionCache {
	return &SessionCache{
		client: client,
		prefix: "session:",
	}
}

// Get retrieves a cached session snapshot.
// Returns nil, nil if the key does not exist.
func (c *SessionCache) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	val, err := c.client.Get(ctx, c.prefix+id.String()).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis session get: %w", err)
	}

	var session domain.PaymentSession
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("redis session unmarshal: %w", err)
	}
	return &session, nil
}

// Set stores a session snapshot with TTL.
func (c *SessionCache) Set(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error {
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis session marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+session.ID.String(), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis session set: %w", err)
	}
	return nil
}

// Invalidate removes a session snapshot.
func (c *SessionCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.prefix+id.String()).Err(); err != nil {
		return fmt.Errorf("redis session invalidate: %w", err)
	}
	return nil
}
