package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/skillforge-backend/internal/pkg/envutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// Client is the shared-cache surface the pipeline, rate limiter and lease
// helpers depend on. The redis implementation below is the only production
// one; tests substitute in-memory fakes.
type Client interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, val string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SetNX writes key=val only when absent. Basis for lease acquisition.
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only while it still holds val.
	CompareAndDelete(ctx context.Context, key, val string) (bool, error)
	// CompareAndExpire refreshes the TTL only while key still holds val.
	CompareAndExpire(ctx context.Context, key, val string, ttl time.Duration) (bool, error)

	// WindowTake implements one sliding-window admission step: prune entries
	// older than the window, then admit and record the request unless the cap
	// is reached. When rejected, retryAfter says when the oldest entry falls
	// out of the window.
	WindowTake(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (allowed bool, retryAfter time.Duration, err error)

	Publish(ctx context.Context, channel, payload string) error
	Close() error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisCache(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.GetEnv("REDIS_PASSWORD", "", nil),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCache{
		log: log.With("service", "RedisCache"),
		rdb: rdb,
	}, nil
}

func (c *redisCache) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisCache) SetString(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *redisCache) SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, val, ttl).Result()
}

var compareAndDeleteScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (c *redisCache) CompareAndDelete(ctx context.Context, key, val string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, c.rdb, []string{key}, val).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var compareAndExpireScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (c *redisCache) CompareAndExpire(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	n, err := compareAndExpireScript.Run(ctx, c.rdb, []string{key}, val, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var windowTakeScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
local count = redis.call("ZCARD", key)
if count < limit then
	redis.call("ZADD", key, now, member)
	redis.call("PEXPIRE", key, window)
	return {1, 0}
end
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local wait = 0
if oldest[2] then
	wait = tonumber(oldest[2]) + window - now
end
return {0, wait}
`)

// windowMember builds a ZSET member for one admitted request. The score holds
// the timestamp; the member itself only needs to be unique, or two requests in
// the same instant would collapse into one window entry.
func windowMember() string {
	return uuid.NewString()
}

func (c *redisCache) WindowTake(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (bool, time.Duration, error) {
	res, err := windowTakeScript.Run(ctx, c.rdb, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, windowMember()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected window script reply: %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}

func (c *redisCache) Publish(ctx context.Context, channel, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}
