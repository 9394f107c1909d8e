package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// DefaultRedisPrefix namespaces every key written by bsqa.
const DefaultRedisPrefix = "bsqa:"

// RedisScope keeps a scope in Redis, letting several `bsqa serve`
// instances share one login. Expiry is delegated to Redis key TTLs.
type RedisScope struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis parses url, connects and pings.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.ErrNetwork("connecting to redis").WithCause(err)
	}
	return client, nil
}

// NewRedisScope wraps an open client. scope is appended to the prefix so
// the persistent and session scopes never collide.
func NewRedisScope(client *redis.Client, scope string, ttl time.Duration) *RedisScope {
	return &RedisScope{
		client: client,
		prefix: DefaultRedisPrefix + scope + ":",
		ttl:    ttl,
	}
}

// Backend implements Scope.
func (s *RedisScope) Backend() string { return "redis" }

// Get implements Scope.
func (s *RedisScope) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, core.ErrStorage(core.CodeStorageRead, "reading "+key).WithCause(err)
	}
	return b, nil
}

// Set implements Scope.
func (s *RedisScope) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "writing "+key).WithCause(err)
	}
	return nil
}

// Delete implements Scope.
func (s *RedisScope) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "deleting "+key).WithCause(err)
	}
	return nil
}

// Close implements Scope.
func (s *RedisScope) Close() error {
	return s.client.Close()
}
