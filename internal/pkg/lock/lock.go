// Package lock serializes work per key across API instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the key stays held for the whole wait window.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out tokens for exclusive keys. Unlock only releases a key
// still held with the same token.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Options tune the retry loop shared by the implementations
type Options struct {
	TTL        time.Duration
	Wait       time.Duration
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 2 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 25 * time.Millisecond
	}
	return o
}

// retry calls attempt until it reports success, the wait window closes or ctx is done.
func retry(ctx context.Context, opts Options, attempt func() (bool, error)) error {
	deadline := time.Now().Add(opts.Wait)
	for {
		ok, err := attempt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
}

// UserKey is the lock key guarding one user's ledger
func UserKey(userID string) string {
	return "lock:ledger:user:" + userID
}
