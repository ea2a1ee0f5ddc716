package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the object store holding product covers and downloadable assets.
type Storage interface {
	// Put stores an object under key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes an object. Returns nil if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL for a publicly readable key.
	GetURL(key string) string

	// PresignGet returns a time-limited download URL for a private key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
