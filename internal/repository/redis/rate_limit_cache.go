package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/client"
	"neighborsos/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// slidingWindowScript trims the window, counts survivors, and records
// the new action only when it is allowed. Scores are unix
// milliseconds; members carry a uuid suffix so two actions landing in
// the same millisecond stay distinct. Returns {allowed, count,
// oldest_score} where count includes the just-added entry and
// oldest_score is the earliest surviving entry (0 when empty).
const slidingWindowScript = `
    local key = KEYS[1]
    local now = tonumber(ARGV[1])
    local window_start = tonumber(ARGV[2])
    local limit = tonumber(ARGV[3])
    local ttl = tonumber(ARGV[4])
    local member = ARGV[5]

    redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

    local count = redis.call('ZCARD', key)
    local allowed = 0

    if count < limit then
        redis.call('ZADD', key, now, member)
        redis.call('EXPIRE', key, ttl)
        count = count + 1
        allowed = 1
    end

    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local oldest_score = 0
    if oldest[2] then
        oldest_score = tonumber(oldest[2])
    end

    return {allowed, count, oldest_score}
`

// RateLimitCache is the Redis side of the sliding-window limiter. It
// only moves data; limit policy lives in the ratelimit package.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// SlidingWindow atomically evaluates one action against the window and
// records it when allowed. It reports whether the action was admitted,
// how many actions the window holds afterwards, and the score (unix
// ms) of the oldest surviving entry.
func (c *RateLimitCache) SlidingWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, int64, error) {
	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()
	ttl := int(window.Seconds()) + 1
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	result, err := c.client.Eval(ctx, slidingWindowScript,
		[]string{rateLimitPrefix + key},
		now, windowStart, limit, ttl, member)
	if err != nil {
		util.Error("Failed to execute sliding window script",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return false, 0, 0, fmt.Errorf("failed to execute sliding window script: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected result format from sliding window script")
	}

	allowed := resultSlice[0].(int64) == 1
	count := int(resultSlice[1].(int64))
	oldest := resultSlice[2].(int64)

	util.Debug("Sliding window check",
		zap.String("key", key),
		zap.Bool("allowed", allowed),
		zap.Int("count", count),
		zap.Int("limit", limit))

	return allowed, count, oldest, nil
}

// Reset drops the window for a key so a blocked caller starts fresh
// without waiting out the hour.
func (c *RateLimitCache) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, rateLimitPrefix+key); err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}
	return nil
}
