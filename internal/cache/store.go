package cache

import (
	"context"
	"time"
)

// Store is the shared read-through cache used by the engine for preference
// and template lookups. Writers must invalidate synchronously via Delete.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
