package driven

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by FetchCache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// FetchCache is an optional read-through cache of upstream responses.
// Callers treat any error as a miss.
type FetchCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
