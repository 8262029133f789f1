package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BalanceCache is an advisory materialized balance per user. The ledger tail
// stays the source of truth; a miss or error just falls through to the store.
type BalanceCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int, bool)
	Set(ctx context.Context, userID uuid.UUID, balance int)
	Delete(ctx context.Context, userID uuid.UUID)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps a redis client as a BalanceCache. Returns nil when
// client is nil so callers can pass the result straight to NewService.
func NewRedisCache(client *redis.Client, ttl time.Duration) BalanceCache {
	if client == nil {
		return nil
	}
	return &redisCache{client: client, ttl: ttl}
}

func balanceKey(userID uuid.UUID) string {
	return "balance:" + userID.String()
}

func (c *redisCache) Get(ctx context.Context, userID uuid.UUID) (int, bool) {
	val, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		return 0, false
	}
	balance, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return balance, true
}

func (c *redisCache) Set(ctx context.Context, userID uuid.UUID, balance int) {
	c.client.Set(ctx, balanceKey(userID), strconv.Itoa(balance), c.ttl)
}

func (c *redisCache) Delete(ctx context.Context, userID uuid.UUID) {
	c.client.Del(ctx, balanceKey(userID))
}

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID) (int, bool) { return 0, false }
func (noopCache) Set(context.Context, uuid.UUID, int)        {}
func (noopCache) Delete(context.Context, uuid.UUID)          {}
