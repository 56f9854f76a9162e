package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Remember returns the cached value for key or computes and stores it. Cache
// failures fall through to compute; a failed store is ignored.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var v T
	if c != nil {
		if hit, err := c.GetJSON(ctx, key, &v); err == nil && hit {
			return v, nil
		}
	}
	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if c != nil {
		_ = c.SetJSON(ctx, key, v, ttl)
	}
	return v, nil
}
