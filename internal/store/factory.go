package store

import (
	"context"
	"fmt"
	"time"
)

// Scope names, used to partition shared SQLite files and Redis keyspaces.
const (
	ScopePersistent = "persistent"
	ScopeSession    = "session"
)

// ScopeOptions selects and configures a scope backend.
type ScopeOptions struct {
	Name     string
	Backend  string // file, sqlite, memory, redis
	Path     string
	TTL      time.Duration
	RedisURL string
}

// OpenScope creates the scope described by opts.
func OpenScope(ctx context.Context, opts ScopeOptions) (Scope, error) {
	switch opts.Backend {
	case "", "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("%s scope: file backend needs a path", opts.Name)
		}
		return NewFileScope(opts.Path, WithFileTTL(opts.TTL)), nil
	case "sqlite":
		if opts.Path == "" {
			return nil, fmt.Errorf("%s scope: sqlite backend needs a path", opts.Name)
		}
		return NewSQLiteScope(opts.Path, opts.Name, WithSQLiteTTL(opts.TTL))
	case "memory":
		return NewMemoryScope(opts.TTL), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("%s scope: redis backend needs storage.redis_url", opts.Name)
		}
		client, err := OpenRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisScope(client, opts.Name, opts.TTL), nil
	default:
		return nil, fmt.Errorf("%s scope: unknown backend %q", opts.Name, opts.Backend)
	}
}
