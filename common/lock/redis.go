package lock

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed unlock.lua
var unlockScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

const (
	lockKeyPrefix = "fwlock:"
	retryInterval = 50 * time.Millisecond
)

// RedisLocker implements Locker with SET NX PX leases so the per-firmware
// upload lock holds across service instances. Releases are token-checked
// via a Lua script: an expired lease taken over by another holder is never
// deleted by the original owner.
type RedisLocker struct {
	redis    *redis.Client
	script   *redis.Script
	leaseTTL time.Duration
	logger   Logger
}

// NewRedisLocker creates a Redis-backed locker with the given lease TTL
func NewRedisLocker(redisClient *redis.Client, leaseTTL time.Duration, logger Logger) *RedisLocker {
	return &RedisLocker{
		redis:    redisClient,
		script:   redis.NewScript(unlockScript),
		leaseTTL: leaseTTL,
		logger:   logger,
	}
}

// Acquire polls SET NX until the lease is taken or ctx is done
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.redis.SetNX(ctx, redisKey, token, l.leaseTTL).Result()
		if err != nil {
			l.logger.Error("lock SETNX failed", "key", redisKey, "error", err)
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			l.logger.Debug("lock acquired", "key", redisKey)
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close closes the underlying Redis connection
func (l *RedisLocker) Close() error {
	return l.redis.Close()
}

func (l *RedisLocker) release(redisKey, token string) {
	// Release runs on a fresh context: the request context may already be
	// canceled and the lease must still be freed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.script.Run(ctx, l.redis, []string{redisKey}, token).Err(); err != nil {
		l.logger.Warn("lock release failed, lease will expire on its own",
			"key", redisKey, "error", err)
		return
	}
	l.logger.Debug("lock released", "key", redisKey)
}
