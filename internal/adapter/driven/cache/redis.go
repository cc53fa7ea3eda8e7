package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FetchCache = (*Redis)(nil)

// Redis stores fetch responses in a Redis server with native expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the server described by a redis:// URL. The
// connection is lazy; Ping verifies it.
func NewRedis(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the value stored under key, or driven.ErrCacheMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, driven.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache key %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("writing cache key %s: %w", key, err)
	}
	return nil
}
