package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockTTL bounds how long an in-flight marker can outlive its worker. A
// crash mid-generation frees the item after this long at worst.
const LockTTL = 2 * time.Minute

// ItemLock implements Locker with per-item Redis SETNX markers shared by
// the api and worker processes.
type ItemLock struct {
	rdb       *redis.Client
	namespace string
}

func NewItemLock(rdb *redis.Client, namespace string) *ItemLock {
	return &ItemLock{rdb: rdb, namespace: namespace}
}

func (l *ItemLock) key(itemID int64) string {
	return fmt.Sprintf("%s:lock:%d", l.namespace, itemID)
}

func (l *ItemLock) Acquire(ctx context.Context, itemID int64) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key(itemID), 1, LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock for item %d: %w", itemID, err)
	}
	return ok, nil
}

func (l *ItemLock) Release(ctx context.Context, itemID int64) error {
	if err := l.rdb.Del(ctx, l.key(itemID)).Err(); err != nil {
		return fmt.Errorf("release lock for item %d: %w", itemID, err)
	}
	return nil
}
