package ratelimit

import (
	"context"
	"time"

	"github.com/findosh/fintrack/internal/log"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fintrack:ratelimit:"

// checkScript runs the whole fixed-window decision server side so
// concurrent instances never race on one key. It uses the Redis clock.
//
// KEYS[1] window key; ARGV[1] max; ARGV[2] window in ms.
// Returns {allowed, count, resetAtMs}.
var checkScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local data = redis.call('HMGET', KEYS[1], 'count', 'reset')
local count = tonumber(data[1])
local reset = tonumber(data[2])

if count == nil or reset == nil or now > reset then
	reset = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
	redis.call('PEXPIREAT', KEYS[1], reset + 1)
	return {1, 1, reset}
end

if count >= max then
	return {0, count, reset}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

// RedisLimiter shares windows between server instances. Keys expire on
// their own so no sweeper is needed.
type RedisLimiter struct {
	client redis.Scripter
	logger *log.Logger
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client redis.Scripter, logger *log.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger.WithComponent(log.ComponentRateLimit)}
}

// Check records a request for identifier. When Redis is unreachable the
// request is allowed and a warning is logged.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, max int, window time.Duration) Result {
	if max <= 0 {
		return Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(window)}
	}

	res, err := checkScript.Run(ctx, l.client, []string{redisKeyPrefix + identifier}, max, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 3 {
		l.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
			"identifier", identifier, log.FieldError, err)
		return Result{Allowed: true, Remaining: max - 1, ResetAt: time.Now().Add(window)}
	}

	allowed := res[0] == 1
	remaining := 0
	if allowed {
		remaining = max - int(res[1])
	}
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]),
	}
}
