package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli
}

func testKey(t *testing.T, cli *redis.Client) string {
	key := UserKey(uuid.NewString())
	t.Cleanup(func() { cli.Del(context.Background(), key) })
	return key
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	cli := setupTestRedis(t)
	l := NewRedisLocker(cli, Options{Wait: 30 * time.Millisecond, RetryDelay: 5 * time.Millisecond})
	ctx := context.Background()
	key := testKey(t, cli)

	token, err := l.TryLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if ttl := cli.PTTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected key to carry the lock ttl, got %s", ttl)
	}
	if _, err := l.TryLock(ctx, key, time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	if err := l.Unlock(ctx, key, token); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if n := cli.Exists(ctx, key).Val(); n != 0 {
		t.Fatal("unlock must delete the key")
	}
	if _, err := l.TryLock(ctx, key, time.Minute); err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
}

func TestRedisLockerIgnoresForeignToken(t *testing.T) {
	cli := setupTestRedis(t)
	l := NewRedisLocker(cli, Options{Wait: 10 * time.Millisecond, RetryDelay: 5 * time.Millisecond})
	ctx := context.Background()
	key := testKey(t, cli)

	token, err := l.TryLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := l.Unlock(ctx, key, "someone-else"); err != nil {
		t.Fatalf("foreign unlock: %v", err)
	}
	if got := cli.Get(ctx, key).Val(); got != token {
		t.Fatalf("foreign token released the lock, holder is now %q", got)
	}
}

func TestRedisLockerWaitsOutExpiredHolder(t *testing.T) {
	cli := setupTestRedis(t)
	ctx := context.Background()
	key := testKey(t, cli)

	first := NewRedisLocker(cli, Options{})
	if _, err := first.TryLock(ctx, key, 50*time.Millisecond); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	// The retry window outlasts the holder's ttl
	second := NewRedisLocker(cli, Options{Wait: time.Second, RetryDelay: 10 * time.Millisecond})
	start := time.Now()
	if _, err := second.TryLock(ctx, key, time.Minute); err != nil {
		t.Fatalf("expected lock after ttl, got %v", err)
	}
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Fatalf("lock taken before the holder expired (%s)", waited)
	}
}
