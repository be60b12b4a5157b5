// Package autoqueue is the durable FIFO of content items awaiting audio
// generation. It lives in Redis so entries and ordering survive process
// restarts, and enqueue is idempotent: an item id appears at most once.
package autoqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var ErrEmptyQueue = errors.New("queue is empty")

// A list carries FIFO order; a companion set guards against duplicates.
// Both are mutated together inside Lua so concurrent callers cannot race
// the membership check against the push.
var (
	enqueueScript = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[1], ARGV[1])
	return 1
end
return 0`)

	dequeueScript = redis.NewScript(`
local id = redis.call("LPOP", KEYS[1])
if id then
	redis.call("SREM", KEYS[2], id)
end
return id`)
)

type Queue struct {
	rdb     *redis.Client
	listKey string
	setKey  string
}

func New(rdb *redis.Client, namespace string) *Queue {
	return &Queue{
		rdb:     rdb,
		listKey: namespace + ":queue",
		setKey:  namespace + ":queue:members",
	}
}

// Enqueue appends the item unless it is already queued. Returns whether a
// new entry was added.
func (q *Queue) Enqueue(ctx context.Context, itemID int64) (bool, error) {
	added, err := enqueueScript.Run(ctx, q.rdb, []string{q.listKey, q.setKey}, itemID).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue item %d: %w", itemID, err)
	}
	return added == 1, nil
}

// DequeueFront removes and returns the oldest queued item id.
func (q *Queue) DequeueFront(ctx context.Context) (int64, error) {
	res, err := dequeueScript.Run(ctx, q.rdb, []string{q.listKey, q.setKey}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrEmptyQueue
	}
	if err != nil {
		return 0, fmt.Errorf("dequeue: %w", err)
	}

	s, ok := res.(string)
	if !ok {
		return 0, fmt.Errorf("dequeue: unexpected reply type %T", res)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dequeue: parse id %q: %w", s, err)
	}
	return id, nil
}

// PeekFront returns the oldest queued item id without removing it.
func (q *Queue) PeekFront(ctx context.Context) (int64, error) {
	s, err := q.rdb.LIndex(ctx, q.listKey, 0).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrEmptyQueue
	}
	if err != nil {
		return 0, fmt.Errorf("peek: %w", err)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("peek: parse id %q: %w", s, err)
	}
	return id, nil
}

func (q *Queue) Size(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}

// Clear drops every queued entry.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.rdb.Del(ctx, q.listKey, q.setKey).Err(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}
