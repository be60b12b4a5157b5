package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFlags stores the scheduler's machine state in Redis so the api and
// worker processes share one view of it.
type RedisFlags struct {
	rdb       *redis.Client
	statusKey string
	armedKey  string
	pausedKey string
	forceKey  string
}

func NewRedisFlags(rdb *redis.Client, namespace string) *RedisFlags {
	return &RedisFlags{
		rdb:       rdb,
		statusKey: namespace + ":sched:status",
		armedKey:  namespace + ":sched:armed",
		pausedKey: namespace + ":sched:paused",
		forceKey:  namespace + ":sched:force",
	}
}

func (f *RedisFlags) Status(ctx context.Context) (string, error) {
	status, err := f.rdb.Get(ctx, f.statusKey).Result()
	if errors.Is(err, redis.Nil) {
		return StateIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("read scheduler status: %w", err)
	}
	return status, nil
}

func (f *RedisFlags) SetStatus(ctx context.Context, status string) error {
	if err := f.rdb.Set(ctx, f.statusKey, status, 0).Err(); err != nil {
		return fmt.Errorf("set scheduler status: %w", err)
	}
	return nil
}

// TryArm claims the single armed-tick slot. Returns false if a tick is
// already pending. The TTL lets the slot free itself if the armed tick is
// lost.
func (f *RedisFlags) TryArm(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := f.rdb.SetNX(ctx, f.armedKey, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("arm tick guard: %w", err)
	}
	return ok, nil
}

func (f *RedisFlags) Disarm(ctx context.Context) error {
	if err := f.rdb.Del(ctx, f.armedKey).Err(); err != nil {
		return fmt.Errorf("disarm tick guard: %w", err)
	}
	return nil
}

func (f *RedisFlags) Paused(ctx context.Context) (bool, error) {
	n, err := f.rdb.Exists(ctx, f.pausedKey).Result()
	if err != nil {
		return false, fmt.Errorf("read paused flag: %w", err)
	}
	return n > 0, nil
}

func (f *RedisFlags) SetPaused(ctx context.Context, paused bool) error {
	var err error
	if paused {
		err = f.rdb.Set(ctx, f.pausedKey, 1, 0).Err()
	} else {
		err = f.rdb.Del(ctx, f.pausedKey).Err()
	}
	if err != nil {
		return fmt.Errorf("set paused flag: %w", err)
	}
	return nil
}

func (f *RedisFlags) Force(ctx context.Context) (bool, error) {
	n, err := f.rdb.Exists(ctx, f.forceKey).Result()
	if err != nil {
		return false, fmt.Errorf("read force flag: %w", err)
	}
	return n > 0, nil
}

func (f *RedisFlags) SetForce(ctx context.Context, force bool) error {
	var err error
	if force {
		err = f.rdb.Set(ctx, f.forceKey, 1, 0).Err()
	} else {
		err = f.rdb.Del(ctx, f.forceKey).Err()
	}
	if err != nil {
		return fmt.Errorf("set force flag: %w", err)
	}
	return nil
}
