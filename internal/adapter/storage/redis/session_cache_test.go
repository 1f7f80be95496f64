package redis

import (
	"context"
	"testing"
	"time"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedSession() *domain.PaymentSession {
	return &domain.PaymentSession{
		ID:             uuid.New(),
		Payer:          uuid.New(),
		Recipient:      uuid.New(),
		PreferredAsset: "USDC",
		Splits: map[string]domain.Split{
			"USDC": {Requested: 500000, Deposited: 500000},
			"SOL":  {Requested: 500000000, Deposited: 0},
		},
		TotalRequested: 1000000,
		Status:         domain.SessionStatusPartiallyFunded,
		Authority:      "a1b2c3",
		AuthorityBump:  254,
	}
}

func TestSessionCache_SetAndGet(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewSessionCache(client)
	ctx := context.Background()

	session := cachedSession()

	// Get before set => nil
	result, err := cache.Get(ctx, session.ID)
	assert.NoError(t, err)
	assert.Nil(t, result)

	// Set
	err = cache.Set(ctx, session, 5*time.Minute)
	require.NoError(t, err)

	// Get after set round-trips the snapshot
	result, err = cache.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, session.ID, result.ID)
	assert.Equal(t, session.Status, result.Status)
	assert.Equal(t, session.Splits, result.Splits)
	assert.Equal(t, session.AuthorityBump, result.AuthorityBump)
}

func TestSessionCache_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewSessionCache(client)
	ctx := context.Background()

	session := cachedSession()
	err := cache.Set(ctx, session, 1*time.Second)
	require.NoError(t, err)

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Second)

	result, err := cache.Get(ctx, session.ID)
	assert.NoError(t, err)
	assert.Nil(t, result, "expired snapshot should return nil")
}

func TestSessionCache_Invalidate(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewSessionCache(client)
	ctx := context.Background()

	session := cachedSession()
	require.NoError(t, cache.Set(ctx, session, 5*time.Minute))

	err := cache.Invalidate(ctx, session.ID)
	require.NoError(t, err)

	result, err := cache.Get(ctx, session.ID)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestSessionCache_InvalidateMissingKey(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewSessionCache(client)

	// Deleting a key that was never set is not an error
	err := cache.Invalidate(context.Background(), uuid.New())
	assert.NoError(t, err)
}
