package appcache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Cache.Match when no entry matches.
var ErrNotFound = errors.New("cache entry not found")

// Storage is a set of named caches.
type Storage interface {
	// Open returns the named cache, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a cache and its entries. It reports whether the cache
	// existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// Cache is a single named cache.
type Cache interface {
	Name() string
	// Match returns the entry stored under key or ErrNotFound.
	Match(ctx context.Context, key string) (*Entry, error)
	// Keys lists entry keys in insertion order.
	Keys(ctx context.Context) ([]string, error)
	// PutAll stores every entry or, on error, none of them.
	PutAll(ctx context.Context, entries []*Entry) error
	Delete(ctx context.Context, key string) (bool, error)
}

// matchRelaxed finds the first entry whose key matches key once method and
// query string are ignored on both sides.
func matchRelaxed(ctx context.Context, c Cache, key string) (*Entry, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	want := relaxedKey(key)
	for _, k := range keys {
		if relaxedKey(k) == want {
			return c.Match(ctx, k)
		}
	}
	return nil, ErrNotFound
}
