package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Scope.Get for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// Scope is a flat key/value namespace. The persistent scope outlives the
// process; the session scope lives for one browsing session, CLI login or
// TTL window.
type Scope interface {
	// Backend names the implementation ("file", "sqlite", "memory", "redis").
	Backend() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// PathScope is implemented by scopes backed by a single local file, which
// the watcher can observe directly.
type PathScope interface {
	Scope
	Path() string
}
