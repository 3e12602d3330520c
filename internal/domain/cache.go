package domain

import (
	"context"
	"time"
)

// LockManager provides per-key mutual exclusion. Acquire is non-blocking: it
// returns ErrLockHeld when another holder owns the key. The returned unlock
// function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ListingCache is a read-through cache in front of the listing store, used by
// the read API only. A miss returns ErrNotFound; the caller falls back to the
// store and repopulates. Mutations invalidate.
type ListingCache interface {
	Get(ctx context.Context, key AssetKey) (Listing, error)
	Set(ctx context.Context, key AssetKey, l Listing) error
	Invalidate(ctx context.Context, key AssetKey) error
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventBus fans successful mutation events out to external observers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
