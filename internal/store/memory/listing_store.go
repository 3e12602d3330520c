// Package memory implements the domain store interfaces in process memory.
// It backs deployments without a configured database and the test suites.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// ListingStore implements domain.ListingStore with a mutex-guarded map.
// Reads and writes of a key are atomic; iteration for List works on a copy.
type ListingStore struct {
	mu   sync.RWMutex
	rows map[string]domain.ListingRecord
}

// NewListingStore creates an empty ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{rows: make(map[string]domain.ListingRecord)}
}

// Get returns the listing stored under key, or domain.ErrNotFound.
func (s *ListingStore) Get(_ context.Context, key domain.AssetKey) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.rows[key.String()]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return rec.Listing, nil
}

// Put stores l under key, overwriting any previous row.
func (s *ListingStore) Put(_ context.Context, key domain.AssetKey, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[key.String()] = domain.ListingRecord{Key: key, Listing: l}
	return nil
}

// Remove deletes the row under key, or returns domain.ErrNotFound.
func (s *ListingStore) Remove(_ context.Context, key domain.AssetKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := key.String()
	if _, ok := s.rows[ks]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, ks)
	return nil
}

// List returns listings ordered by creation time, newest first.
func (s *ListingStore) List(_ context.Context, opts domain.ListOpts) ([]domain.ListingRecord, error) {
	s.mu.RLock()
	recs := make([]domain.ListingRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Listing.CreatedAt.After(recs[j].Listing.CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// Count returns the number of stored listings.
func (s *ListingStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
