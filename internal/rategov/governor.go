// Package rategov paces audio generation: consecutive generations are
// spaced at least the configured interval apart, and no more than the
// configured cap run within any rolling hour.
package rategov

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HourWindow is the rolling window for the hourly cap. The counter key is
// given this expiry on its first increment, so the window slides with
// usage rather than snapping to calendar hours.
const HourWindow = time.Hour

// State is a snapshot of the governor's persisted counters.
type State struct {
	LastProcessedAt time.Time     // zero if nothing has run yet
	HourCount       int           // generations inside the current window
	HourTTL         time.Duration // remaining life of the window; 0 if expired or unset
}

// Decision is the outcome of a consume attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // how long to wait before trying again; 0 when allowed
}

// Decide applies the two gates in order: the hourly cap first, then the
// spacing interval. It is the pure form of the check applied atomically by
// the Redis script in TryConsume.
func Decide(st State, now time.Time, rateLimit time.Duration, maxPerHour int) Decision {
	if st.HourCount >= maxPerHour {
		retry := st.HourTTL
		if retry <= 0 {
			retry = HourWindow
		}
		return Decision{RetryAfter: retry}
	}

	if !st.LastProcessedAt.IsZero() {
		if elapsed := now.Sub(st.LastProcessedAt); elapsed < rateLimit {
			return Decision{RetryAfter: rateLimit - elapsed}
		}
	}

	return Decision{Allowed: true}
}

// tryConsumeScript is Decide plus the state mutation, in one atomic step:
// both gates are checked and, only if both pass, the last-run timestamp is
// set and the hour counter incremented (arming its expiry on first use).
// Concurrent callers therefore cannot both be allowed for the same window.
var tryConsumeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local rateLimit = tonumber(ARGV[2])
local maxPerHour = tonumber(ARGV[3])
local window = tonumber(ARGV[4])

local count = tonumber(redis.call("GET", KEYS[2]) or "0")
if count >= maxPerHour then
	local ttl = redis.call("TTL", KEYS[2])
	if ttl < 0 then
		ttl = window
	end
	return {0, ttl}
end

local last = tonumber(redis.call("GET", KEYS[1]) or "-1")
if last >= 0 and (now - last) < rateLimit then
	return {0, rateLimit - (now - last)}
end

redis.call("SET", KEYS[1], now)
local newCount = redis.call("INCR", KEYS[2])
if newCount == 1 then
	redis.call("EXPIRE", KEYS[2], window)
end
return {1, 0}`)

type Governor struct {
	rdb        *redis.Client
	lastKey    string
	hourKey    string
	rateLimit  time.Duration
	maxPerHour int
}

func New(rdb *redis.Client, namespace string, rateLimit time.Duration, maxPerHour int) *Governor {
	return &Governor{
		rdb:        rdb,
		lastKey:    namespace + ":rate:last",
		hourKey:    namespace + ":rate:hour",
		rateLimit:  rateLimit,
		maxPerHour: maxPerHour,
	}
}

// TryConsume asks for one generation slot at the given time.
func (g *Governor) TryConsume(ctx context.Context, now time.Time) (Decision, error) {
	res, err := tryConsumeScript.Run(ctx, g.rdb,
		[]string{g.lastKey, g.hourKey},
		now.Unix(),
		int(g.rateLimit/time.Second),
		g.maxPerHour,
		int(HourWindow/time.Second),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate consume: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate consume: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Second}, nil
}

// Reset clears both counters. Used when bulk generation is stopped.
func (g *Governor) Reset(ctx context.Context) error {
	if err := g.rdb.Del(ctx, g.lastKey, g.hourKey).Err(); err != nil {
		return fmt.Errorf("rate reset: %w", err)
	}
	return nil
}
