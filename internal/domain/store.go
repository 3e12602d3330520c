package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore is a keyed map from AssetKey to Listing. It is purely
// mechanical: no validation, no business rules. Get returns ErrNotFound when
// no row exists. Put overwrites. Remove of a missing key returns ErrNotFound.
//
// Implementations must not expose partial writes: a concurrent reader of the
// same key sees either the row before a mutation or the row after it.
type ListingStore interface {
	Get(ctx context.Context, key AssetKey) (Listing, error)
	Put(ctx context.Context, key AssetKey, l Listing) error
	Remove(ctx context.Context, key AssetKey) error
	List(ctx context.Context, opts ListOpts) ([]ListingRecord, error)
	Count(ctx context.Context) (int64, error)
}

// AuditStore persists the append-only record of successful mutations.
type AuditStore interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	// ListRange returns events with id greater than afterID and created
	// strictly before the cutoff, oldest first. Used by the archiver as a
	// resumable cursor over the append-only log.
	ListRange(ctx context.Context, afterID int64, before time.Time, limit int) ([]Event, error)
}
