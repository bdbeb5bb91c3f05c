package core

import (
	"context"
	"time"
)

// Cache is any service that can store short-lived serialized values.
type Cache interface {
	// Get unmarshals the cached value for key into dest; ok reports a hit.
	Get(ctx context.Context, key string, dest interface{}) (ok bool, err error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
