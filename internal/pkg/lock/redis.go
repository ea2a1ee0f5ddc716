package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete script
type RedisLocker struct {
	cli  *redis.Client
	opts Options
}

func NewRedisLocker(cli *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{cli: cli, opts: opts.withDefaults()}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = l.opts.TTL
	}
	token := uuid.NewString()
	err := retry(ctx, l.opts, func() (bool, error) {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return luaUnlock.Run(ctx, l.cli, []string{key}, token).Err()
}
