// Package cache provides the TTL caches shared by the search engine and the
// regulatory verifier. Entries are opaque bytes; GetJSON and SetJSON handle
// encoding.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Cache is a TTL key/value store.
type Cache interface {
	// Get returns the value for key. A missing or expired key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// GetJSON reads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var out T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, eris.Wrapf(err, "cache: decode %s", key)
	}
	return out, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", key)
	}
	return c.Set(ctx, key, raw, ttl)
}
