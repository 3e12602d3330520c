package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chainbazaar/escrowd/internal/domain"
)

// AuditStore implements domain.AuditStore as an in-memory append-only slice.
type AuditStore struct {
	mu     sync.RWMutex
	nextID int64
	events []domain.Event
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Append records one event, assigning it the next sequence id.
func (s *AuditStore) Append(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = s.nextID
	s.nextID++
	s.events = append(s.events, ev)
	return nil
}

// List returns events newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		out = append(out, s.events[i])
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListRange returns events with id greater than afterID and created strictly
// before the cutoff, oldest first.
func (s *AuditStore) ListRange(_ context.Context, afterID int64, before time.Time, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.ID <= afterID || !ev.CreatedAt.Before(before) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
