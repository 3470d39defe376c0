package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "vodscribe:lock:"

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker is a single-instance Redis lock (SET NX PX) with owner tokens.
type Locker struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewLocker(client redis.UniversalClient, logger *zap.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		// The request context may already be done; releasing must still happen.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{lockKeyPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("lock release failed, waiting for ttl", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}
