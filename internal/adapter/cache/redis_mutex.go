package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired holder cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

const acquirePollInterval = 100 * time.Millisecond

// RedisMutex implements token.Locker with SET NX PX plus a guarded release.
type RedisMutex struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ token.Locker = (*RedisMutex)(nil)

// NewRedisMutex constructs a Redis-backed distributed mutex.
func NewRedisMutex(client redis.UniversalClient, logger *zap.Logger) *RedisMutex {
	if logger == nil {
		logger = zap.L()
	}
	return &RedisMutex{client: client, logger: logger}
}

// Acquire blocks until the named lock is held or wait elapses. The lock
// itself expires after ttl so a crashed holder cannot deadlock future
// callers. The returned release function is safe to call on every exit path.
func (m *RedisMutex) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	lockToken, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := m.client.SetNX(ctx, key, lockToken, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, token.ErrLockWaitExpired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, m.client, []string{key}, lockToken).Err(); err != nil && err != redis.Nil {
			m.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
