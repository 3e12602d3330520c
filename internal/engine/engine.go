// Package engine implements the listing lifecycle state machine and the
// atomic payment-for-asset swap. Every operation on a key runs under a
// per-key lock covering its precondition checks and store mutation; the lock
// is released before any external boundary call is made, so the engine's own
// state is already final when untrusted code can run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainbazaar/escrowd/internal/domain"
)

const (
	// lockTTL bounds how long a crashed holder can wedge a key.
	lockTTL = 10 * time.Second
	// lockRetryInterval is the poll interval while another operation on the
	// same key holds the lock.
	lockRetryInterval = 10 * time.Millisecond
)

// Engine is the listing lifecycle coordinator. It composes the listing store,
// the ownership guard, the payment swap, the per-key lock manager, and the
// audit trail.
type Engine struct {
	listings domain.ListingStore
	guard    *OwnershipGuard
	swap     *PaymentSwap
	locks    domain.LockManager
	audit    domain.AuditStore
	sinks    []domain.Sink
	logger   *slog.Logger
}

// New creates an Engine with all required dependencies.
func New(
	listings domain.ListingStore,
	guard *OwnershipGuard,
	swap *PaymentSwap,
	locks domain.LockManager,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		listings: listings,
		guard:    guard,
		swap:     swap,
		locks:    locks,
		audit:    audit,
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// AddSink registers an additional consumer for successful mutation events.
// Sinks are invoked after the audit record is written.
func (e *Engine) AddSink(sink domain.Sink) {
	e.sinks = append(e.sinks, sink)
}

// CreateListing lists an asset for sale at the given price. The caller must
// be the current owner and must have authorized the engine to transfer the
// asset.
func (e *Engine) CreateListing(ctx context.Context, caller common.Address, key domain.AssetKey, price *big.Int) error {
	if !key.Valid() {
		return fmt.Errorf("engine: create: invalid asset key")
	}
	if price == nil || price.Sign() <= 0 {
		return domain.ErrInvalidPrice
	}

	unlock, err := e.lockKey(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: create %s: %w", key, err)
	}
	defer unlock()

	_, err = e.listings.Get(ctx, key)
	switch {
	case err == nil:
		return domain.ErrAlreadyListed
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("engine: create %s: %w", key, err)
	}

	if err := e.guard.VerifyOwnerAndApproval(ctx, key, caller); err != nil {
		return err
	}

	now := time.Now().UTC()
	l := domain.Listing{Price: price, Seller: caller, CreatedAt: now, UpdatedAt: now}
	if err := e.listings.Put(ctx, key, l); err != nil {
		return fmt.Errorf("engine: create %s: %w", key, err)
	}

	e.emit(ctx, domain.Event{
		Kind:   domain.EventListingCreated,
		Key:    key,
		Seller: caller,
		Price:  price,
	})
	return nil
}

// UpdateListing changes the price of an existing listing. Ownership and
// approval are re-verified: title may have changed hands since the listing
// was created. The stored seller is not changed.
func (e *Engine) UpdateListing(ctx context.Context, caller common.Address, key domain.AssetKey, newPrice *big.Int) error {
	unlock, err := e.lockKey(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: update %s: %w", key, err)
	}
	defer unlock()

	l, err := e.listings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotListed
		}
		return fmt.Errorf("engine: update %s: %w", key, err)
	}

	if newPrice == nil || newPrice.Sign() <= 0 {
		return domain.ErrInvalidPrice
	}

	if err := e.guard.VerifyOwnerAndApproval(ctx, key, caller); err != nil {
		return err
	}

	l.Price = newPrice
	l.UpdatedAt = time.Now().UTC()
	if err := e.listings.Put(ctx, key, l); err != nil {
		return fmt.Errorf("engine: update %s: %w", key, err)
	}

	e.emit(ctx, domain.Event{
		Kind:   domain.EventListingUpdated,
		Key:    key,
		Seller: l.Seller,
		Price:  newPrice,
	})
	return nil
}

// CancelListing removes a listing. No transfer of any kind occurs.
func (e *Engine) CancelListing(ctx context.Context, caller common.Address, key domain.AssetKey) error {
	unlock, err := e.lockKey(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: cancel %s: %w", key, err)
	}
	defer unlock()

	l, err := e.listings.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotListed
		}
		return fmt.Errorf("engine: cancel %s: %w", key, err)
	}

	if err := e.guard.VerifyOwnerAndApproval(ctx, key, caller); err != nil {
		return err
	}

	if err := e.listings.Remove(ctx, key); err != nil {
		return fmt.Errorf("engine: cancel %s: %w", key, err)
	}

	e.emit(ctx, domain.Event{
		Kind:   domain.EventListingCanceled,
		Key:    key,
		Seller: l.Seller,
	})
	return nil
}

// PurchaseListing buys a listed asset. Anyone may buy; the only precondition
// besides the listing existing is that payment equals the stored price
// exactly. The listing row is removed, and the per-key lock released, before
// either external transfer runs: a reentrant purchase attempt on the same key
// observes ErrNotListed instead of double-spending the listing.
func (e *Engine) PurchaseListing(ctx context.Context, buyer common.Address, key domain.AssetKey, payment *big.Int) error {
	unlock, err := e.lockKey(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: purchase %s: %w", key, err)
	}

	l, err := e.listings.Get(ctx, key)
	if err != nil {
		unlock()
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotListed
		}
		return fmt.Errorf("engine: purchase %s: %w", key, err)
	}

	if payment == nil || payment.Cmp(l.Price) != 0 {
		unlock()
		return domain.ErrIncorrectPayment
	}

	if err := e.listings.Remove(ctx, key); err != nil {
		unlock()
		return fmt.Errorf("engine: purchase %s: %w", key, err)
	}
	unlock()

	if err := e.swap.Settle(ctx, key, l, buyer); err != nil {
		var fault *domain.SettlementFault
		if errors.As(err, &fault) {
			// The asset left custody and could not be recovered. The listing
			// stays removed; this is an operator-level incident, not a state
			// to silently restore.
			e.logger.ErrorContext(ctx, "settlement fault",
				slog.String("key", key.String()),
				slog.String("error", fault.Error()),
			)
			return err
		}
		e.restoreListing(ctx, key, l)
		return err
	}

	e.emit(ctx, domain.Event{
		Kind:   domain.EventListingPurchased,
		Key:    key,
		Seller: l.Seller,
		Buyer:  buyer,
		Price:  l.Price,
	})
	return nil
}

// restoreListing compensates a failed purchase by reinstating the removed
// row, provided the key has not been relisted in the meantime.
func (e *Engine) restoreListing(ctx context.Context, key domain.AssetKey, l domain.Listing) {
	unlock, err := e.lockKey(ctx, key)
	if err != nil {
		e.logger.ErrorContext(ctx, "listing restore: lock failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	_, err = e.listings.Get(ctx, key)
	switch {
	case err == nil:
		// Relisted while the failed swap was in flight. The newer row wins.
		e.logger.WarnContext(ctx, "listing restore skipped: key relisted",
			slog.String("key", key.String()),
		)
		return
	case !errors.Is(err, domain.ErrNotFound):
		e.logger.ErrorContext(ctx, "listing restore: read failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := e.listings.Put(ctx, key, l); err != nil {
		e.logger.ErrorContext(ctx, "listing restore: write failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
}

// lockKey acquires the per-key lock, polling while another operation holds
// it. It honours ctx for cancellation.
func (e *Engine) lockKey(ctx context.Context, key domain.AssetKey) (func(), error) {
	lk := "listing:" + key.String()
	for {
		unlock, err := e.locks.Acquire(ctx, lk, lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// emit writes the audit record and fans the event out to registered sinks.
// The mutation has already committed; an audit failure is logged, not
// propagated.
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	ev.CreatedAt = time.Now().UTC()

	if err := e.audit.Append(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "audit append failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("key", ev.Key.String()),
			slog.String("error", err.Error()),
		)
	}

	for _, sink := range e.sinks {
		sink.Emit(ctx, ev)
	}
}
