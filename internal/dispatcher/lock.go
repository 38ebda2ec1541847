package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"boothvideo/internal/infra"
)

const DefaultLockKey = "boothvideo:tick:lease"

// releaseScript deletes the lease only while it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// LeaseStore is the part of the redis client the lease needs.
type LeaseStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLock is a lease lock held for the duration of one tick. The TTL bounds
// how long a crashed holder can block other ticks.
type RedisLock struct {
	store  LeaseStore
	key    string
	ttl    time.Duration
	logger *infra.Logger
}

func NewRedisLock(store LeaseStore, key string, ttl time.Duration, logger *infra.Logger) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	return &RedisLock{store: store, key: key, ttl: ttl, logger: infra.LoggerOrDiscard(logger)}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: acquire tick lease: %w", err)
	}
	if !ok {
		return nil, ErrTickInProgress
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.store.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", l.key).Msg("dispatcher: release tick lease failed")
		}
	}
	return release, nil
}

var _ Locker = (*RedisLock)(nil)
