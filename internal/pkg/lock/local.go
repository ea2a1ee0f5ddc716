package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is the single-instance Locker used when Redis is not configured
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	opts Options
	now  func() time.Time
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localEntry),
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = l.opts.TTL
	}
	token := uuid.NewString()
	err := retry(ctx, l.opts, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		now := l.now()
		if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
			return false, nil
		}
		l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[key]; ok && e.token == token {
		delete(l.held, key)
	}
	return nil
}
