package apiclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultStaleTime = 30 * time.Second

// QueryCache keeps fetched results for a stale time and collapses concurrent
// fetches of the same key into one call.
type QueryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	gen     uint64

	group singleflight.Group
}

type cacheEntry struct {
	val any
	at  time.Time
}

func NewQueryCache(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultStaleTime
	}
	return &QueryCache{ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

// Fetch returns the cached value for key or calls fn. Errors are not cached.
func (q *QueryCache) Fetch(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	q.mu.Lock()
	if e, ok := q.entries[key]; ok && q.now().Sub(e.at) < q.ttl {
		q.mu.Unlock()
		return e.val, nil
	}
	gen := q.gen
	q.mu.Unlock()

	ch := q.group.DoChan(key, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		q.mu.Lock()
		// an Invalidate during the fetch makes this result stale already
		if q.gen == gen {
			q.entries[key] = cacheEntry{val: v, at: q.now()}
		}
		q.mu.Unlock()
		return v, nil
	})

	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every key starting with prefix; "" drops everything.
func (q *QueryCache) Invalidate(prefix string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	for k := range q.entries {
		if strings.HasPrefix(k, prefix) {
			delete(q.entries, k)
			q.group.Forget(k)
		}
	}
}

// Query is the typed form of QueryCache.Fetch.
func Query[T any](ctx context.Context, q *QueryCache, key string, fn func(context.Context) (T, error)) (T, error) {
	v, err := q.Fetch(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
