// Package service sits between the HTTP surface and the engine. Mutations
// delegate to the engine and invalidate the read cache; reads go through the
// cache when one is configured.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/engine"
)

// FaultAlerter pages operators about settlement faults. The concrete
// implementation lives in the notify package.
type FaultAlerter interface {
	SettlementFault(ctx context.Context, fault *domain.SettlementFault) error
}

// ListingService exposes the listing lifecycle and read queries to the HTTP
// handlers.
type ListingService struct {
	engine   *engine.Engine
	listings domain.ListingStore
	audit    domain.AuditStore
	cache    domain.ListingCache
	alerter  FaultAlerter
	logger   *slog.Logger
}

// NewListingService creates a ListingService. cache may be nil; reads then go
// straight to the store.
func NewListingService(
	eng *engine.Engine,
	listings domain.ListingStore,
	audit domain.AuditStore,
	cache domain.ListingCache,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		engine:   eng,
		listings: listings,
		audit:    audit,
		cache:    cache,
		logger:   logger.With(slog.String("component", "listing_service")),
	}
}

// Create lists an asset for sale.
func (s *ListingService) Create(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
	if err := s.engine.CreateListing(ctx, caller, key, price); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// Update changes the price of an existing listing.
func (s *ListingService) Update(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
	if err := s.engine.UpdateListing(ctx, caller, key, price); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// Cancel removes a listing.
func (s *ListingService) Cancel(ctx context.Context, caller common.Address, key domain.AssetKey) error {
	if err := s.engine.CancelListing(ctx, caller, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// WithAlerter attaches a fault alerter so settlement faults page an operator.
// Without one, faults are only logged by the engine.
func (s *ListingService) WithAlerter(a FaultAlerter) *ListingService {
	s.alerter = a
	return s
}

// Purchase buys a listed asset. The cache entry is dropped up front: even a
// failed purchase may have removed and restored the row, and a stale cached
// price must not survive that.
func (s *ListingService) Purchase(ctx context.Context, buyer common.Address, key domain.AssetKey, payment *big.Int) error {
	s.invalidate(ctx, key)
	err := s.engine.PurchaseListing(ctx, buyer, key, payment)
	s.invalidate(ctx, key)

	var fault *domain.SettlementFault
	if errors.As(err, &fault) && s.alerter != nil {
		// Deliver the page off the request path; the request is already lost.
		go func() {
			alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if alertErr := s.alerter.SettlementFault(alertCtx, fault); alertErr != nil {
				s.logger.Error("settlement fault alert failed",
					slog.String("key", key.String()),
					slog.String("error", alertErr.Error()),
				)
			}
		}()
	}
	return err
}

// Get returns the listing for key, consulting the cache first.
func (s *ListingService) Get(ctx context.Context, key domain.AssetKey) (domain.Listing, error) {
	if s.cache != nil {
		l, err := s.cache.Get(ctx, key)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cache read failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	l, err := s.listings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("listing_service: get %s: %w", key, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, key, l); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache write failed",
				slog.String("key", key.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return l, nil
}

// List returns active listings, newest first, with pagination, plus the total
// count.
func (s *ListingService) List(ctx context.Context, opts domain.ListOpts) ([]domain.ListingRecord, int64, error) {
	records, err := s.listings.List(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing_service: list: %w", err)
	}
	total, err := s.listings.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing_service: count: %w", err)
	}
	return records, total, nil
}

// Audit returns audit events, newest first, with pagination.
func (s *ListingService) Audit(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	events, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: audit: %w", err)
	}
	return events, nil
}

func (s *ListingService) invalidate(ctx context.Context, key domain.AssetKey) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
}
