package persistence

import (
	"context"
	"fmt"
	"time"

	"voiceout_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// SyncLock implements out.SyncLocker with a Redis SET NX lock. It is a
// best-effort guard against concurrent syncs of the same connection; the
// inquiry upsert key remains the real duplicate protection.
type SyncLock struct {
	client *redis.Client
}

func NewSyncLock(client *redis.Client) *SyncLock {
	return &SyncLock{client: client}
}

func (l *SyncLock) Acquire(ctx context.Context, connectionID int64, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockKey(connectionID), "1", ttl).Result()
}

func (l *SyncLock) Release(ctx context.Context, connectionID int64) error {
	return l.client.Del(ctx, lockKey(connectionID)).Err()
}

func lockKey(connectionID int64) string {
	return fmt.Sprintf("voiceout:sync:lock:%d", connectionID)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.SyncLocker = (*SyncLock)(nil)
