package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/leadscope/leadscope/internal/repository"
)

var _ repository.DedupStore = (*redisDedup)(nil)

const (
	lockKeyPrefix = "leadscope:run:"
	lockTTL       = time.Hour
)

type redisDedup struct {
	client *goredis.Client
}

// NewDedupStore creates a Redis-backed run/domain dedup store using SETNX.
func NewDedupStore(client *goredis.Client) repository.DedupStore {
	return &redisDedup{client: client}
}

func lockKey(runID uuid.UUID, domainName string) string {
	return fmt.Sprintf("%s%s:domain:%s", lockKeyPrefix, runID, domainName)
}

// AcquireLock uses Redis SETNX to atomically claim a run/domain pair.
func (r *redisDedup) AcquireLock(ctx context.Context, runID uuid.UUID, domainName string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(runID, domainName), time.Now().Unix(), lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock refreshes the TTL on the claim for eventual cleanup.
func (r *redisDedup) ReleaseLock(ctx context.Context, runID uuid.UUID, domainName string) error {
	return r.client.Expire(ctx, lockKey(runID, domainName), lockTTL).Err()
}
